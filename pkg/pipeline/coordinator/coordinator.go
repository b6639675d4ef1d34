// Package coordinator owns the per-meeting state machine. All job mutation
// funnels through here under a per-job lock: worker results, transcript
// edits, re-runs, and deletion. Workers only push results; they never touch
// job records.
package coordinator

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meetbrief/meetbrief/pkg/errors"
	"github.com/meetbrief/meetbrief/pkg/logging"
	"github.com/meetbrief/meetbrief/pkg/meeting"
	"github.com/meetbrief/meetbrief/pkg/pipeline/align"
	"github.com/meetbrief/meetbrief/pkg/pipeline/observability"
	"github.com/meetbrief/meetbrief/pkg/pipeline/queues"
	"github.com/meetbrief/meetbrief/pkg/pipeline/store"
	"github.com/meetbrief/meetbrief/pkg/pipeline/workers"
)

// AudioReleaser frees the stored recording when a job is deleted. The
// upload subsystem implements it; the pipeline never owns audio bytes.
type AudioReleaser interface {
	Release(ctx context.Context, audioRef string) error
}

// Deadlines bound each dispatched stage attempt. An attempt with no result
// before its deadline is treated as a stage failure by the watchdog.
type Deadlines struct {
	Transcribe time.Duration `yaml:"transcribe"`
	Diarize    time.Duration `yaml:"diarize"`
	Analyze    time.Duration `yaml:"analyze"`
}

// DefaultDeadlines returns generous bounds for GPU-backed engines.
func DefaultDeadlines() Deadlines {
	return Deadlines{
		Transcribe: 30 * time.Minute,
		Diarize:    30 * time.Minute,
		Analyze:    10 * time.Minute,
	}
}

const lockStripes = 64

// Coordinator drives meeting jobs through the pipeline.
type Coordinator struct {
	store       store.Store
	transcribeQ queues.Queue
	diarizeQ    queues.Queue
	analyzeQ    queues.Queue

	logger    logging.Logger
	metrics   *observability.PipelineMetrics
	releaser  AudioReleaser
	deadlines Deadlines

	// Per-job serialization. Stripes bound memory; collisions only cost
	// contention, never correctness.
	locks [lockStripes]sync.Mutex

	// In-flight stage attempts watched for deadline expiry.
	attemptMu sync.Mutex
	attempts  map[attemptKey]time.Time

	watchdogInterval time.Duration
	stopCh           chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
}

type attemptKey struct {
	jobID   string
	version uint64
	stage   meeting.Stage
}

var _ workers.ResultReporter = (*Coordinator)(nil)

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.PipelineMetrics) Option {
	return func(c *Coordinator) { c.metrics = metrics }
}

// WithAudioReleaser sets the hook that frees audio on job deletion.
func WithAudioReleaser(releaser AudioReleaser) Option {
	return func(c *Coordinator) { c.releaser = releaser }
}

// WithDeadlines overrides the per-stage deadlines.
func WithDeadlines(d Deadlines) Option {
	return func(c *Coordinator) { c.deadlines = d }
}

// WithWatchdogInterval overrides how often expired attempts are collected.
func WithWatchdogInterval(interval time.Duration) Option {
	return func(c *Coordinator) { c.watchdogInterval = interval }
}

// New creates a Coordinator over the given store and stage queues.
func New(s store.Store, transcribeQ, diarizeQ, analyzeQ queues.Queue, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:            s,
		transcribeQ:      transcribeQ,
		diarizeQ:         diarizeQ,
		analyzeQ:         analyzeQ,
		logger:           logging.NewNopLogger(),
		deadlines:        DefaultDeadlines(),
		attempts:         make(map[attemptKey]time.Time),
		watchdogInterval: 30 * time.Second,
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Defaulted after the options so an injected sink never leaves a
	// duplicate registration on the default registry.
	if c.metrics == nil {
		c.metrics = observability.DefaultPipelineMetrics()
	}
	return c
}

// Start launches the deadline watchdog.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.watchdogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.expireAttempts(context.Background())
			}
		}
	}()
}

// Stop halts the watchdog. Pending worker results are still accepted.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Coordinator) lockFor(jobID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(jobID))
	return &c.locks[h.Sum32()%lockStripes]
}

// SubmitRequest describes a new meeting job.
type SubmitRequest struct {
	Title    string
	AudioRef string
	Mode     meeting.Mode

	// Language is an optional hint for the speech-to-text engine.
	Language string

	// NumSpeakers is an optional hint for the diarization engine.
	NumSpeakers int

	// SkipDiarization submits a transcript-only run; every merged segment
	// gets the unknown speaker label.
	SkipDiarization bool
}

// Submit creates a job and dispatches transcription and diarization
// concurrently. Returns a capacity error when a stage queue is full, in
// which case no job is persisted.
func (c *Coordinator) Submit(ctx context.Context, req *SubmitRequest) (*meeting.Job, error) {
	if req.AudioRef == "" {
		return nil, fmt.Errorf("%w: audio_ref is required", errors.ErrValidation)
	}
	mode := req.Mode
	if mode == "" {
		mode = meeting.ModeTranscribeAndSummarize
	}
	if mode != meeting.ModeTranscribeOnly && mode != meeting.ModeTranscribeAndSummarize {
		return nil, fmt.Errorf("%w: unknown mode %q", errors.ErrValidation, req.Mode)
	}

	now := time.Now().UTC()
	job := &meeting.Job{
		ID:               uuid.New().String(),
		Title:            req.Title,
		AudioRef:         req.AudioRef,
		Mode:             mode,
		Status:           meeting.StatusPending,
		Language:         req.Language,
		NumSpeakers:      req.NumSpeakers,
		Version:          1,
		DiarizationAsked: !req.SkipDiarization,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.SkipDiarization {
		// Nothing to join against; the transcript alone triggers alignment.
		job.DiarizationDone = true
	}

	if err := c.dispatchTranscription(ctx, job); err != nil {
		return nil, err
	}

	job.Status = meeting.StatusTranscribing
	if err := c.store.Create(ctx, job); err != nil {
		return nil, err
	}

	c.metrics.RecordSubmitted(string(mode))
	c.metrics.RecordTransition(string(meeting.StatusPending), string(meeting.StatusTranscribing))
	c.logger.Info("job submitted",
		logging.F("job_id", job.ID),
		logging.F("mode", string(mode)),
		logging.F("diarization", job.DiarizationAsked))
	return job.Clone(), nil
}

// dispatchTranscription enqueues the diarize item (when asked) and then
// the transcribe item, and registers their deadlines with the watchdog.
// The transcribe item goes last and watchdog tracking happens only after
// every enqueue succeeded, so a capacity rejection never leaves the
// expensive transcription work or a tracked attempt behind for a job the
// caller then abandons.
func (c *Coordinator) dispatchTranscription(ctx context.Context, job *meeting.Job) error {
	now := time.Now()

	var dMsg *queues.DiarizeMessage
	if job.DiarizationAsked {
		dMsg = &queues.DiarizeMessage{
			JobID:       job.ID,
			Version:     job.Version,
			AudioRef:    job.AudioRef,
			NumSpeakers: job.NumSpeakers,
			Deadline:    now.Add(c.deadlines.Diarize),
		}
		if err := c.diarizeQ.Enqueue(ctx, dMsg); err != nil {
			return err
		}
		c.metrics.RecordEnqueue(c.diarizeQ.Name(), "normal")
	}

	tMsg := &queues.TranscribeMessage{
		JobID:    job.ID,
		Version:  job.Version,
		AudioRef: job.AudioRef,
		Language: job.Language,
		Deadline: now.Add(c.deadlines.Transcribe),
	}
	if err := c.transcribeQ.Enqueue(ctx, tMsg); err != nil {
		return err
	}
	c.metrics.RecordEnqueue(c.transcribeQ.Name(), "normal")

	c.trackAttempt(job.ID, job.Version, meeting.StageTranscribe, tMsg.Deadline)
	if dMsg != nil {
		c.trackAttempt(job.ID, job.Version, meeting.StageDiarize, dMsg.Deadline)
	}
	return nil
}

// dispatchAnalysis enqueues the analyze item for the job's current merged
// transcript.
func (c *Coordinator) dispatchAnalysis(ctx context.Context, job *meeting.Job) error {
	// The new attempt covers the transcript as it stands now.
	job.EditedDuringAnalysis = false
	msg := &queues.AnalyzeMessage{
		JobID:      job.ID,
		Version:    job.Version,
		Transcript: job.MergedTranscript,
		Deadline:   time.Now().Add(c.deadlines.Analyze),
	}
	if err := c.analyzeQ.Enqueue(ctx, msg); err != nil {
		return err
	}
	c.metrics.RecordEnqueue(c.analyzeQ.Name(), "normal")
	c.trackAttempt(job.ID, job.Version, meeting.StageAnalysis, msg.Deadline)
	return nil
}

// ReportResult applies one stage outcome to the job, under the job's lock.
// Results tagged with an outdated version are dropped without any state
// change. Implements workers.ResultReporter.
func (c *Coordinator) ReportResult(ctx context.Context, result *workers.StageResult) error {
	mu := c.lockFor(result.JobID)
	mu.Lock()
	defer mu.Unlock()

	job, err := c.store.Get(ctx, result.JobID)
	if err != nil {
		if errors.IsNotFound(err) {
			// Deleted while in flight; nothing to update.
			c.clearAttempt(result.JobID, result.Version, result.Stage)
			c.logger.Debug("result for deleted job dropped", logging.F("job_id", result.JobID))
			return nil
		}
		return err
	}

	if result.Version != job.Version {
		c.clearAttempt(result.JobID, result.Version, result.Stage)
		c.metrics.RecordStaleResult(string(result.Stage))
		c.logger.Debug("stale result dropped",
			logging.F("job_id", job.ID),
			logging.F("result_version", result.Version),
			logging.F("job_version", job.Version),
			logging.F("stage", string(result.Stage)))
		return nil
	}

	c.clearAttempt(result.JobID, result.Version, result.Stage)

	switch result.Stage {
	case meeting.StageTranscribe:
		return c.applyTranscribe(ctx, job, result)
	case meeting.StageDiarize:
		return c.applyDiarize(ctx, job, result)
	case meeting.StageAnalysis:
		return c.applyAnalysis(ctx, job, result)
	default:
		return fmt.Errorf("%w: unexpected stage %q", errors.ErrValidation, result.Stage)
	}
}

func (c *Coordinator) applyTranscribe(ctx context.Context, job *meeting.Job, result *workers.StageResult) error {
	if !job.Status.Processing() {
		c.logger.Debug("transcribe result for settled job dropped",
			logging.F("job_id", job.ID),
			logging.F("status", string(job.Status)))
		return nil
	}

	if result.Err != nil {
		return c.failJob(ctx, job, meeting.StageTranscribe, result.Err)
	}

	job.TranscriptSegments = result.Transcript
	if result.Language != "" {
		job.Language = result.Language
	}
	job.TranscriptDone = true
	return c.evaluateJoin(ctx, job)
}

func (c *Coordinator) applyDiarize(ctx context.Context, job *meeting.Job, result *workers.StageResult) error {
	if !job.Status.Processing() {
		c.logger.Debug("diarize result for settled job dropped",
			logging.F("job_id", job.ID),
			logging.F("status", string(job.Status)))
		return nil
	}

	if result.Err != nil {
		// A transcript without speakers is still a transcript. The merge
		// labels every segment unknown instead of failing the job.
		c.logger.Warn("diarization failed, continuing without speakers",
			logging.F("job_id", job.ID),
			logging.Err(result.Err))
		job.SpeakerSegments = nil
	} else {
		job.SpeakerSegments = result.Speakers
	}
	job.DiarizationDone = true
	return c.evaluateJoin(ctx, job)
}

// evaluateJoin fires the transition into aligning exactly once, when both
// completion flags are set. Runs under the job lock, so near-simultaneous
// completions cannot both trigger the merge.
func (c *Coordinator) evaluateJoin(ctx context.Context, job *meeting.Job) error {
	if !job.TranscriptDone || !job.DiarizationDone {
		// The other engine is still running; record progress only.
		if job.TranscriptDone && !job.DiarizationDone {
			c.transition(job, meeting.StatusDiarizing)
		}
		return c.persist(ctx, job)
	}

	c.transition(job, meeting.StatusAligning)

	merged, err := align.Merge(job.TranscriptSegments, job.SpeakerSegments)
	if err != nil {
		return c.failJob(ctx, job, meeting.StageAlign, err)
	}
	job.MergedTranscript = merged
	job.SpeakerStats = align.Stats(merged)
	job.Version++

	c.transition(job, meeting.StatusReady)
	c.metrics.RecordFinished(string(meeting.StatusReady))

	if job.Mode == meeting.ModeTranscribeAndSummarize {
		if err := c.dispatchAnalysis(ctx, job); err != nil {
			if errors.IsCapacity(err) {
				// Park at ready; the user can regenerate once the queue
				// drains.
				c.logger.Warn("analysis queue full, job parked at ready",
					logging.F("job_id", job.ID))
				return c.persist(ctx, job)
			}
			return err
		}
		c.transition(job, meeting.StatusSummarizing)
	}

	return c.persist(ctx, job)
}

func (c *Coordinator) applyAnalysis(ctx context.Context, job *meeting.Job, result *workers.StageResult) error {
	if job.Status != meeting.StatusSummarizing {
		c.logger.Debug("analysis result outside summarizing dropped",
			logging.F("job_id", job.ID),
			logging.F("status", string(job.Status)))
		return nil
	}

	if result.Err != nil {
		return c.failJob(ctx, job, meeting.StageAnalysis, result.Err)
	}

	analysis := *result.Analysis
	// An edit made while this attempt was running means the result covers
	// the pre-edit transcript; it lands already stale.
	analysis.Stale = job.EditedDuringAnalysis
	job.EditedDuringAnalysis = false
	if analysis.GeneratedAt.IsZero() {
		analysis.GeneratedAt = time.Now().UTC()
	}
	job.Analysis = &analysis
	job.Version++

	c.transition(job, meeting.StatusCompleted)
	c.metrics.RecordFinished(string(meeting.StatusCompleted))
	return c.persist(ctx, job)
}

// failJob moves the job to error with the failing stage recorded.
func (c *Coordinator) failJob(ctx context.Context, job *meeting.Job, stage meeting.Stage, cause error) error {
	message := cause.Error()
	if ee, ok := errors.AsEngineError(cause); ok && ee.RetryAfter > 0 {
		// Surface the engine's backoff hint so the user knows when a
		// manual retry is worth attempting.
		message = fmt.Sprintf("%s (retry after %s)", message, ee.RetryAfter)
	}
	job.ErrorDetail = &meeting.ErrorDetail{
		Stage:   stage,
		Message: message,
	}
	job.Version++

	c.transition(job, meeting.StatusError)
	c.metrics.RecordFinished(string(meeting.StatusError))
	c.logger.Warn("job failed",
		logging.F("job_id", job.ID),
		logging.F("stage", string(stage)),
		logging.Err(cause))
	return c.persist(ctx, job)
}

func (c *Coordinator) transition(job *meeting.Job, to meeting.Status) {
	c.metrics.RecordTransition(string(job.Status), string(to))
	job.Status = to
}

func (c *Coordinator) persist(ctx context.Context, job *meeting.Job) error {
	job.UpdatedAt = time.Now().UTC()
	return c.store.Update(ctx, job)
}

// EditTranscript overwrites the merged transcript with the user's edited
// segments. Any existing analysis result is flagged stale but kept; it is
// never regenerated automatically. Illegal while transcription is running.
func (c *Coordinator) EditTranscript(ctx context.Context, jobID string, segments []meeting.MergedSegment) (*meeting.Job, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: edited transcript is empty", errors.ErrValidation)
	}

	mu := c.lockFor(jobID)
	mu.Lock()
	defer mu.Unlock()

	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Processing() {
		return nil, fmt.Errorf("%w: cannot edit transcript while %s", errors.ErrInvalidState, job.Status)
	}
	if !job.HasMergedTranscript() {
		return nil, fmt.Errorf("%w: job has no merged transcript", errors.ErrInvalidState)
	}

	job.MergedTranscript = append([]meeting.MergedSegment(nil), segments...)
	job.SpeakerStats = align.Stats(job.MergedTranscript)
	if job.Analysis != nil {
		job.Analysis.Stale = true
	}
	if job.Status == meeting.StatusSummarizing {
		// The running analysis attempt covers the pre-edit transcript.
		job.EditedDuringAnalysis = true
	}

	if err := c.persist(ctx, job); err != nil {
		return nil, err
	}
	c.logger.Info("transcript edited", logging.F("job_id", jobID))
	return job.Clone(), nil
}

// RegenerateSummary re-runs the full analysis sequence over the current
// merged transcript. Legal whenever a merged transcript exists and no
// analysis attempt is already in flight.
func (c *Coordinator) RegenerateSummary(ctx context.Context, jobID string) (*meeting.Job, error) {
	mu := c.lockFor(jobID)
	mu.Lock()
	defer mu.Unlock()

	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == meeting.StatusSummarizing {
		return nil, fmt.Errorf("%w: analysis already running", errors.ErrInFlight)
	}
	if job.Status.Processing() {
		return nil, fmt.Errorf("%w: transcription still running", errors.ErrInFlight)
	}
	if !job.HasMergedTranscript() {
		return nil, fmt.Errorf("%w: job has no merged transcript", errors.ErrInvalidState)
	}

	// Invalidate any result still in flight for the previous attempt.
	job.Version++
	job.ErrorDetail = nil

	if err := c.dispatchAnalysis(ctx, job); err != nil {
		return nil, err
	}
	c.transition(job, meeting.StatusSummarizing)

	if err := c.persist(ctx, job); err != nil {
		return nil, err
	}
	c.logger.Info("analysis re-dispatched", logging.F("job_id", jobID), logging.F("version", job.Version))
	return job.Clone(), nil
}

// Retranscribe discards all derived artifacts and runs the job through the
// whole pipeline again. Legal only from ready, completed, or error.
func (c *Coordinator) Retranscribe(ctx context.Context, jobID string) (*meeting.Job, error) {
	mu := c.lockFor(jobID)
	mu.Lock()
	defer mu.Unlock()

	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("%w: job is %s", errors.ErrInFlight, job.Status)
	}

	// The bump makes any still-travelling result for the old attempt
	// stale.
	job.Version++
	job.TranscriptDone = false
	job.DiarizationDone = !job.DiarizationAsked
	job.TranscriptSegments = nil
	job.SpeakerSegments = nil
	job.MergedTranscript = nil
	job.SpeakerStats = nil
	job.Analysis = nil
	job.ErrorDetail = nil
	job.EditedDuringAnalysis = false

	c.transition(job, meeting.StatusPending)
	if err := c.dispatchTranscription(ctx, job); err != nil {
		return nil, err
	}
	c.transition(job, meeting.StatusTranscribing)

	if err := c.persist(ctx, job); err != nil {
		return nil, err
	}
	c.logger.Info("retranscription dispatched", logging.F("job_id", jobID), logging.F("version", job.Version))
	return job.Clone(), nil
}

// Delete removes the job record and releases its audio.
func (c *Coordinator) Delete(ctx context.Context, jobID string) error {
	mu := c.lockFor(jobID)
	mu.Lock()
	defer mu.Unlock()

	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, jobID); err != nil {
		return err
	}

	if c.releaser != nil {
		if err := c.releaser.Release(ctx, job.AudioRef); err != nil {
			// The record is gone; the audio leak is recoverable out of
			// band.
			c.logger.Error("audio release failed",
				logging.F("job_id", jobID),
				logging.F("audio_ref", job.AudioRef),
				logging.Err(err))
		}
	}
	c.logger.Info("job deleted", logging.F("job_id", jobID))
	return nil
}

// Get returns a copy of the job.
func (c *Coordinator) Get(ctx context.Context, jobID string) (*meeting.Job, error) {
	return c.store.Get(ctx, jobID)
}

// List returns copies of all jobs, newest first.
func (c *Coordinator) List(ctx context.Context) ([]*meeting.Job, error) {
	return c.store.List(ctx)
}

func (c *Coordinator) trackAttempt(jobID string, version uint64, stage meeting.Stage, deadline time.Time) {
	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()
	c.attempts[attemptKey{jobID: jobID, version: version, stage: stage}] = deadline
}

func (c *Coordinator) clearAttempt(jobID string, version uint64, stage meeting.Stage) {
	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()
	delete(c.attempts, attemptKey{jobID: jobID, version: version, stage: stage})
}

// expireAttempts fails every stage attempt whose deadline has passed.
// Expiry goes through the normal result path, so the version check still
// protects against racing a late result.
func (c *Coordinator) expireAttempts(ctx context.Context) {
	now := time.Now()

	c.attemptMu.Lock()
	var expired []attemptKey
	for key, deadline := range c.attempts {
		if now.After(deadline) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(c.attempts, key)
	}
	c.attemptMu.Unlock()

	for _, key := range expired {
		c.metrics.RecordDeadlineExpiry(string(key.stage))
		c.logger.Warn("stage deadline expired",
			logging.F("job_id", key.jobID),
			logging.F("stage", string(key.stage)))
		err := c.ReportResult(ctx, &workers.StageResult{
			JobID:   key.jobID,
			Version: key.version,
			Stage:   key.stage,
			Err:     fmt.Errorf("no result before deadline"),
		})
		if err != nil {
			c.logger.Error("deadline expiry not applied",
				logging.F("job_id", key.jobID),
				logging.Err(err))
		}
	}
}
