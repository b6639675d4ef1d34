package coordinator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meetbrief/meetbrief/pkg/errors"
	"github.com/meetbrief/meetbrief/pkg/meeting"
	"github.com/meetbrief/meetbrief/pkg/pipeline/observability"
	"github.com/meetbrief/meetbrief/pkg/pipeline/queues"
	"github.com/meetbrief/meetbrief/pkg/pipeline/store"
	"github.com/meetbrief/meetbrief/pkg/pipeline/workers"
)

type fixture struct {
	coord      *Coordinator
	store      *store.MemoryStore
	transcribe *queues.MemoryQueue
	diarize    *queues.MemoryQueue
	analyze    *queues.MemoryQueue
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:      store.NewMemoryStore(),
		transcribe: queues.NewMemoryQueue(queues.Config{Name: "transcribe", MaxDepth: 100, MaxRetries: 3}),
		diarize:    queues.NewMemoryQueue(queues.Config{Name: "diarize", MaxDepth: 100, MaxRetries: 3}),
		analyze:    queues.NewMemoryQueue(queues.Config{Name: "analyze", MaxDepth: 100, MaxRetries: 3}),
	}
	opts = append([]Option{
		WithMetrics(observability.NewPipelineMetrics(prometheus.NewRegistry())),
	}, opts...)
	f.coord = New(f.store, f.transcribe, f.diarize, f.analyze, opts...)
	t.Cleanup(func() {
		f.transcribe.Close()
		f.diarize.Close()
		f.analyze.Close()
	})
	return f
}

func (f *fixture) submit(t *testing.T, mode meeting.Mode) *meeting.Job {
	t.Helper()
	job, err := f.coord.Submit(context.Background(), &SubmitRequest{
		AudioRef: "audio/rec.wav",
		Mode:     mode,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return job
}

func transcriptResult(jobID string, version uint64) *workers.StageResult {
	return &workers.StageResult{
		JobID:   jobID,
		Version: version,
		Stage:   meeting.StageTranscribe,
		Transcript: []meeting.TranscriptSegment{
			{Start: 0, End: 5, Text: "welcome everyone"},
			{Start: 5, End: 10, Text: "thanks for joining"},
		},
		Language: "en",
	}
}

func speakerResult(jobID string, version uint64) *workers.StageResult {
	return &workers.StageResult{
		JobID:   jobID,
		Version: version,
		Stage:   meeting.StageDiarize,
		Speakers: []meeting.SpeakerSegment{
			{Start: 0, End: 5, Speaker: "SPEAKER_00"},
			{Start: 5, End: 10, Speaker: "SPEAKER_01"},
		},
	}
}

func analysisResult(jobID string, version uint64) *workers.StageResult {
	return &workers.StageResult{
		JobID:   jobID,
		Version: version,
		Stage:   meeting.StageAnalysis,
		Analysis: &meeting.AnalysisResult{
			Summary:     "## Topic\nWeekly sync.",
			ActionItems: []meeting.ActionItem{{Description: "ship it"}},
			Decisions:   []meeting.Decision{},
			GeneratedAt: time.Now().UTC(),
		},
	}
}

func (f *fixture) get(t *testing.T, id string) *meeting.Job {
	t.Helper()
	job, err := f.coord.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return job
}

func TestSubmitDispatchesBothStages(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)

	if job.Status != meeting.StatusTranscribing {
		t.Errorf("status = %s, want transcribing", job.Status)
	}
	if job.Version != 1 {
		t.Errorf("version = %d, want 1", job.Version)
	}
	if depth, _ := f.transcribe.Depth(context.Background()); depth != 1 {
		t.Errorf("transcribe depth = %d, want 1", depth)
	}
	if depth, _ := f.diarize.Depth(context.Background()); depth != 1 {
		t.Errorf("diarize depth = %d, want 1", depth)
	}
}

func TestSubmitRejectsEmptyAudioRef(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Submit(context.Background(), &SubmitRequest{})
	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitCapacity(t *testing.T) {
	f := &fixture{
		store:      store.NewMemoryStore(),
		transcribe: queues.NewMemoryQueue(queues.Config{Name: "transcribe", MaxDepth: 1, MaxRetries: 3}),
		diarize:    queues.NewMemoryQueue(queues.Config{Name: "diarize", MaxDepth: 100, MaxRetries: 3}),
		analyze:    queues.NewMemoryQueue(queues.Config{Name: "analyze", MaxDepth: 100, MaxRetries: 3}),
	}
	f.coord = New(f.store, f.transcribe, f.diarize, f.analyze,
		WithMetrics(observability.NewPipelineMetrics(prometheus.NewRegistry())))

	if _, err := f.coord.Submit(context.Background(), &SubmitRequest{AudioRef: "a"}); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	_, err := f.coord.Submit(context.Background(), &SubmitRequest{AudioRef: "b"})
	if !errors.IsCapacity(err) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	// The rejected submission never became a job.
	jobs, _ := f.coord.List(context.Background())
	if len(jobs) != 1 {
		t.Errorf("job count = %d, want 1", len(jobs))
	}
}

func TestNewWithInjectedMetricsRepeatable(t *testing.T) {
	// Two coordinators in one process; the injected sinks must keep the
	// default Prometheus registry untouched or the second construction
	// panics on duplicate registration.
	newFixture(t)
	newFixture(t)
}

func TestSubmitDiarizeCapacityLeavesNoOrphan(t *testing.T) {
	f := &fixture{
		store:      store.NewMemoryStore(),
		transcribe: queues.NewMemoryQueue(queues.Config{Name: "transcribe", MaxDepth: 100, MaxRetries: 3}),
		diarize:    queues.NewMemoryQueue(queues.Config{Name: "diarize", MaxDepth: 1, MaxRetries: 3}),
		analyze:    queues.NewMemoryQueue(queues.Config{Name: "analyze", MaxDepth: 100, MaxRetries: 3}),
	}
	f.coord = New(f.store, f.transcribe, f.diarize, f.analyze,
		WithMetrics(observability.NewPipelineMetrics(prometheus.NewRegistry())))
	ctx := context.Background()

	if _, err := f.coord.Submit(ctx, &SubmitRequest{AudioRef: "a"}); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	_, err := f.coord.Submit(ctx, &SubmitRequest{AudioRef: "b"})
	if !errors.IsCapacity(err) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	// The rejection left no transcribe work behind for the abandoned job.
	if depth, _ := f.transcribe.Depth(ctx); depth != 1 {
		t.Errorf("transcribe depth = %d, want 1", depth)
	}
	// And no watchdog attempt beyond the first job's pair.
	f.coord.attemptMu.Lock()
	tracked := len(f.coord.attempts)
	f.coord.attemptMu.Unlock()
	if tracked != 2 {
		t.Errorf("tracked attempts = %d, want 2", tracked)
	}
}

func TestJoinTranscriptFirst(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)
	ctx := context.Background()

	if err := f.coord.ReportResult(ctx, transcriptResult(job.ID, 1)); err != nil {
		t.Fatalf("ReportResult(transcript) error = %v", err)
	}
	if got := f.get(t, job.ID); got.Status != meeting.StatusDiarizing {
		t.Errorf("status after transcript = %s, want diarizing", got.Status)
	}

	if err := f.coord.ReportResult(ctx, speakerResult(job.ID, 1)); err != nil {
		t.Fatalf("ReportResult(speakers) error = %v", err)
	}
	got := f.get(t, job.ID)
	if got.Status != meeting.StatusReady {
		t.Fatalf("status = %s, want ready", got.Status)
	}
	if len(got.MergedTranscript) != 2 {
		t.Fatalf("merged segments = %d, want 2", len(got.MergedTranscript))
	}
	if got.MergedTranscript[0].Speaker != "SPEAKER_00" || got.MergedTranscript[1].Speaker != "SPEAKER_01" {
		t.Errorf("speakers = %s, %s", got.MergedTranscript[0].Speaker, got.MergedTranscript[1].Speaker)
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2 after alignment", got.Version)
	}
	if len(got.SpeakerStats) != 2 {
		t.Errorf("speaker stats = %d entries, want 2", len(got.SpeakerStats))
	}
}

func TestJoinSpeakersFirst(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)
	ctx := context.Background()

	if err := f.coord.ReportResult(ctx, speakerResult(job.ID, 1)); err != nil {
		t.Fatalf("ReportResult(speakers) error = %v", err)
	}
	if got := f.get(t, job.ID); got.Status != meeting.StatusTranscribing {
		t.Errorf("status after speakers = %s, want transcribing", got.Status)
	}

	if err := f.coord.ReportResult(ctx, transcriptResult(job.ID, 1)); err != nil {
		t.Fatalf("ReportResult(transcript) error = %v", err)
	}
	if got := f.get(t, job.ID); got.Status != meeting.StatusReady {
		t.Errorf("status = %s, want ready", got.Status)
	}
}

func TestConcurrentJoinFiresOnce(t *testing.T) {
	// Both orders, many rounds: exactly one transition into aligning per
	// job, regardless of interleaving.
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		job := f.submit(t, meeting.ModeTranscribeOnly)
		ctx := context.Background()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
		}()
		go func() {
			defer wg.Done()
			f.coord.ReportResult(ctx, speakerResult(job.ID, 1))
		}()
		wg.Wait()

		got := f.get(t, job.ID)
		if got.Status != meeting.StatusReady {
			t.Fatalf("round %d: status = %s, want ready", round, got.Status)
		}
		if got.Version != 2 {
			t.Fatalf("round %d: version = %d, want exactly one alignment", round, got.Version)
		}
	}
}

func TestDiarizationFailureDegradesToUnknown(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)
	ctx := context.Background()

	f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
	f.coord.ReportResult(ctx, &workers.StageResult{
		JobID:   job.ID,
		Version: 1,
		Stage:   meeting.StageDiarize,
		Err:     errors.NewEngineError("model crashed", nil),
	})

	got := f.get(t, job.ID)
	if got.Status != meeting.StatusReady {
		t.Fatalf("status = %s, want ready despite diarization failure", got.Status)
	}
	for _, seg := range got.MergedTranscript {
		if seg.Speaker != meeting.SpeakerUnknown {
			t.Errorf("speaker = %q, want %q", seg.Speaker, meeting.SpeakerUnknown)
		}
	}
}

func TestTranscriptionFailureFailsJob(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)

	f.coord.ReportResult(context.Background(), &workers.StageResult{
		JobID:   job.ID,
		Version: 1,
		Stage:   meeting.StageTranscribe,
		Err:     errors.NewUnsupportedFormatError("cannot decode"),
	})

	got := f.get(t, job.ID)
	if got.Status != meeting.StatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.ErrorDetail == nil || got.ErrorDetail.Stage != meeting.StageTranscribe {
		t.Fatalf("error detail = %+v, want transcribe stage", got.ErrorDetail)
	}
	if !strings.Contains(got.ErrorDetail.Message, "cannot decode") {
		t.Errorf("error message = %q", got.ErrorDetail.Message)
	}
}

func TestStaleResultIgnored(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)
	ctx := context.Background()

	f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
	f.coord.ReportResult(ctx, speakerResult(job.ID, 1))

	// The re-run bumps the version; results for version 2 are now stale.
	reJob, err := f.coord.Retranscribe(ctx, job.ID)
	if err != nil {
		t.Fatalf("Retranscribe() error = %v", err)
	}
	before := f.get(t, job.ID)

	if err := f.coord.ReportResult(ctx, transcriptResult(job.ID, 2)); err != nil {
		t.Fatalf("stale ReportResult() error = %v", err)
	}
	after := f.get(t, job.ID)
	if after.Status != before.Status || after.Version != before.Version || after.TranscriptDone != before.TranscriptDone {
		t.Errorf("stale result changed job state: before %+v, after %+v", before, after)
	}
	if after.Version != reJob.Version {
		t.Errorf("version = %d, want %d", after.Version, reJob.Version)
	}
}

func TestAutoAnalysisDispatch(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeAndSummarize)
	ctx := context.Background()

	f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
	f.coord.ReportResult(ctx, speakerResult(job.ID, 1))

	got := f.get(t, job.ID)
	if got.Status != meeting.StatusSummarizing {
		t.Fatalf("status = %s, want summarizing", got.Status)
	}
	if depth, _ := f.analyze.Depth(ctx); depth != 1 {
		t.Errorf("analyze depth = %d, want 1", depth)
	}

	if err := f.coord.ReportResult(ctx, analysisResult(job.ID, got.Version)); err != nil {
		t.Fatalf("ReportResult(analysis) error = %v", err)
	}
	final := f.get(t, job.ID)
	if final.Status != meeting.StatusCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
	if final.Analysis == nil || final.Analysis.Summary == "" {
		t.Fatal("analysis result missing")
	}
	if final.Analysis.Stale {
		t.Error("fresh analysis flagged stale")
	}
}

func TestTranscribeOnlyParksAtReady(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)
	ctx := context.Background()

	f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
	f.coord.ReportResult(ctx, speakerResult(job.ID, 1))

	if got := f.get(t, job.ID); got.Status != meeting.StatusReady {
		t.Fatalf("status = %s, want ready", got.Status)
	}
	if depth, _ := f.analyze.Depth(ctx); depth != 0 {
		t.Errorf("analyze depth = %d, want 0", depth)
	}
}

func TestAnalysisFailurePersistsNoPartialResult(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeAndSummarize)
	ctx := context.Background()

	f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
	f.coord.ReportResult(ctx, speakerResult(job.ID, 1))
	version := f.get(t, job.ID).Version

	f.coord.ReportResult(ctx, &workers.StageResult{
		JobID:   job.ID,
		Version: version,
		Stage:   meeting.StageAnalysis,
		Err:     &errors.EngineError{Code: errors.CodeBadResponse, Message: "action items: not a JSON object"},
	})

	got := f.get(t, job.ID)
	if got.Status != meeting.StatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.ErrorDetail == nil || got.ErrorDetail.Stage != meeting.StageAnalysis {
		t.Fatalf("error detail = %+v, want analysis stage", got.ErrorDetail)
	}
	if got.Analysis != nil {
		t.Error("partial analysis result persisted")
	}
	if !got.HasMergedTranscript() {
		t.Error("merged transcript lost on analysis failure")
	}
}

func TestEditTranscriptFlagsAnalysisStale(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeAndSummarize)
	ctx := context.Background()

	f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
	f.coord.ReportResult(ctx, speakerResult(job.ID, 1))
	version := f.get(t, job.ID).Version
	f.coord.ReportResult(ctx, analysisResult(job.ID, version))

	edited := []meeting.MergedSegment{
		{Speaker: "SPEAKER_00", Start: 0, End: 10, Text: "corrected text"},
	}
	got, err := f.coord.EditTranscript(ctx, job.ID, edited)
	if err != nil {
		t.Fatalf("EditTranscript() error = %v", err)
	}

	if got.Status != meeting.StatusCompleted {
		t.Errorf("status changed to %s on edit", got.Status)
	}
	if got.Analysis == nil {
		t.Fatal("analysis deleted on edit, want flagged stale")
	}
	if !got.Analysis.Stale {
		t.Error("analysis not flagged stale")
	}
	if got.Analysis.Summary != "## Topic\nWeekly sync." {
		t.Errorf("prior summary not retained: %q", got.Analysis.Summary)
	}
	if got.MergedTranscript[0].Text != "corrected text" {
		t.Errorf("edit not applied: %q", got.MergedTranscript[0].Text)
	}
}

func TestEditDuringAnalysisLandsStale(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeAndSummarize)
	ctx := context.Background()

	f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
	f.coord.ReportResult(ctx, speakerResult(job.ID, 1))

	got := f.get(t, job.ID)
	if got.Status != meeting.StatusSummarizing {
		t.Fatalf("status = %s, want summarizing", got.Status)
	}

	// Edit while the analysis of the pre-edit transcript is in flight.
	edited := []meeting.MergedSegment{
		{Speaker: "SPEAKER_00", Start: 0, End: 10, Text: "corrected text"},
	}
	if _, err := f.coord.EditTranscript(ctx, job.ID, edited); err != nil {
		t.Fatalf("EditTranscript() error = %v", err)
	}

	if err := f.coord.ReportResult(ctx, analysisResult(job.ID, got.Version)); err != nil {
		t.Fatalf("ReportResult(analysis) error = %v", err)
	}

	final := f.get(t, job.ID)
	if final.Status != meeting.StatusCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
	if final.Analysis == nil || !final.Analysis.Stale {
		t.Fatal("analysis of the superseded transcript not flagged stale")
	}

	// Regenerating over the edited transcript yields a fresh result.
	regen, err := f.coord.RegenerateSummary(ctx, job.ID)
	if err != nil {
		t.Fatalf("RegenerateSummary() error = %v", err)
	}
	f.coord.ReportResult(ctx, analysisResult(job.ID, regen.Version))
	if fresh := f.get(t, job.ID); fresh.Analysis == nil || fresh.Analysis.Stale {
		t.Error("regenerated analysis flagged stale")
	}
}

func TestRateLimitFailureRecordsCause(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)
	ctx := context.Background()

	result := transcriptResult(job.ID, 1)
	result.Transcript = nil
	result.Err = errors.NewRateLimitError("quota exhausted", 30*time.Second)
	if err := f.coord.ReportResult(ctx, result); err != nil {
		t.Fatalf("ReportResult() error = %v", err)
	}

	got := f.get(t, job.ID)
	if got.Status != meeting.StatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.ErrorDetail == nil {
		t.Fatal("error detail missing")
	}
	if !strings.Contains(got.ErrorDetail.Message, "rate_limited") {
		t.Errorf("error detail %q does not name the rate limit", got.ErrorDetail.Message)
	}
	if !strings.Contains(got.ErrorDetail.Message, "retry after 30s") {
		t.Errorf("error detail %q lost the backoff hint", got.ErrorDetail.Message)
	}
}

func TestEditTranscriptIllegalWhileProcessing(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)

	_, err := f.coord.EditTranscript(context.Background(), job.ID, []meeting.MergedSegment{
		{Speaker: "A", Start: 0, End: 1, Text: "x"},
	})
	if !errors.IsInvalidState(err) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
}

func TestRegenerateSummary(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)
	ctx := context.Background()

	f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
	f.coord.ReportResult(ctx, speakerResult(job.ID, 1))
	ready := f.get(t, job.ID)

	got, err := f.coord.RegenerateSummary(ctx, job.ID)
	if err != nil {
		t.Fatalf("RegenerateSummary() error = %v", err)
	}
	if got.Status != meeting.StatusSummarizing {
		t.Errorf("status = %s, want summarizing", got.Status)
	}
	if got.Version != ready.Version+1 {
		t.Errorf("version = %d, want %d", got.Version, ready.Version+1)
	}
	if depth, _ := f.analyze.Depth(ctx); depth != 1 {
		t.Errorf("analyze depth = %d, want 1", depth)
	}

	// A second regenerate while one is running is refused.
	if _, err := f.coord.RegenerateSummary(ctx, job.ID); !errors.IsInFlight(err) {
		t.Errorf("expected in-flight error, got %v", err)
	}
}

func TestRegenerateSummaryRequiresMergedTranscript(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)
	ctx := context.Background()

	f.coord.ReportResult(ctx, &workers.StageResult{
		JobID:   job.ID,
		Version: 1,
		Stage:   meeting.StageTranscribe,
		Err:     errors.NewEngineError("engine down", nil),
	})

	_, err := f.coord.RegenerateSummary(ctx, job.ID)
	if !errors.IsInvalidState(err) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
}

func TestRetranscribeClearsDerivedFields(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeAndSummarize)
	ctx := context.Background()

	f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
	f.coord.ReportResult(ctx, speakerResult(job.ID, 1))
	version := f.get(t, job.ID).Version
	f.coord.ReportResult(ctx, analysisResult(job.ID, version))

	got, err := f.coord.Retranscribe(ctx, job.ID)
	if err != nil {
		t.Fatalf("Retranscribe() error = %v", err)
	}
	if got.Status != meeting.StatusTranscribing {
		t.Errorf("status = %s, want transcribing", got.Status)
	}
	if got.TranscriptSegments != nil || got.SpeakerSegments != nil || got.MergedTranscript != nil {
		t.Error("derived segment fields not cleared")
	}
	if got.Analysis != nil {
		t.Error("analysis not cleared")
	}
	if got.TranscriptDone || got.DiarizationDone {
		t.Error("join flags not reset")
	}

	// Both stages were dispatched again.
	if depth, _ := f.transcribe.Depth(ctx); depth != 2 {
		t.Errorf("transcribe depth = %d, want 2", depth)
	}
	if depth, _ := f.diarize.Depth(ctx); depth != 2 {
		t.Errorf("diarize depth = %d, want 2", depth)
	}
}

func TestRetranscribeIllegalWhileInFlight(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, meeting.ModeTranscribeOnly)

	_, err := f.coord.Retranscribe(context.Background(), job.ID)
	if !errors.IsInFlight(err) {
		t.Fatalf("expected in-flight error, got %v", err)
	}
}

type captureReleaser struct {
	mu       sync.Mutex
	released []string
}

func (r *captureReleaser) Release(_ context.Context, audioRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, audioRef)
	return nil
}

func TestDeleteReleasesAudio(t *testing.T) {
	releaser := &captureReleaser{}
	f := newFixture(t, WithAudioReleaser(releaser))
	job := f.submit(t, meeting.ModeTranscribeOnly)
	ctx := context.Background()

	if err := f.coord.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.coord.Get(ctx, job.ID); !errors.IsNotFound(err) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
	if len(releaser.released) != 1 || releaser.released[0] != "audio/rec.wav" {
		t.Errorf("released = %v", releaser.released)
	}

	// An in-flight result for the deleted job is dropped quietly.
	if err := f.coord.ReportResult(ctx, transcriptResult(job.ID, 1)); err != nil {
		t.Errorf("ReportResult() after delete error = %v", err)
	}
}

func TestDeadlineWatchdogFailsStuckJob(t *testing.T) {
	f := newFixture(t,
		WithDeadlines(Deadlines{
			Transcribe: 10 * time.Millisecond,
			Diarize:    10 * time.Millisecond,
			Analyze:    10 * time.Millisecond,
		}),
		WithWatchdogInterval(10*time.Millisecond),
	)
	f.coord.Start()
	defer f.coord.Stop()

	job := f.submit(t, meeting.ModeTranscribeOnly)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := f.get(t, job.ID)
		if got.Status == meeting.StatusError {
			if got.ErrorDetail == nil || got.ErrorDetail.Stage != meeting.StageTranscribe {
				t.Fatalf("error detail = %+v, want transcribe stage", got.ErrorDetail)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watchdog never failed the stuck job")
}

func TestSkipDiarization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.coord.Submit(ctx, &SubmitRequest{
		AudioRef:        "audio/rec.wav",
		Mode:            meeting.ModeTranscribeOnly,
		SkipDiarization: true,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if depth, _ := f.diarize.Depth(ctx); depth != 0 {
		t.Errorf("diarize depth = %d, want 0", depth)
	}

	f.coord.ReportResult(ctx, transcriptResult(job.ID, 1))
	got := f.get(t, job.ID)
	if got.Status != meeting.StatusReady {
		t.Fatalf("status = %s, want ready", got.Status)
	}
	for _, seg := range got.MergedTranscript {
		if seg.Speaker != meeting.SpeakerUnknown {
			t.Errorf("speaker = %q, want %q", seg.Speaker, meeting.SpeakerUnknown)
		}
	}
}
