// Package meeting defines the meeting job domain model shared across the
// processing pipeline.
package meeting

import "time"

// Status is the lifecycle state of a meeting job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTranscribing Status = "transcribing"
	StatusDiarizing    Status = "diarizing"
	StatusAligning     Status = "aligning"
	StatusReady        Status = "ready"
	StatusSummarizing  Status = "summarizing"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// Terminal reports whether the status is an end state for a processing
// attempt. Terminal jobs can be re-dispatched by explicit user action only.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusCompleted || s == StatusError
}

// Processing reports whether a worker attempt is currently in flight for
// the transcription phase of the pipeline. Transcript edits are illegal
// while processing.
func (s Status) Processing() bool {
	switch s {
	case StatusPending, StatusTranscribing, StatusDiarizing, StatusAligning:
		return true
	}
	return false
}

// Stage identifies one pipeline phase.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageDiarize    Stage = "diarize"
	StageAlign      Stage = "align"
	StageAnalysis   Stage = "analysis"
)

// Mode selects how far the pipeline runs after upload.
type Mode string

const (
	// ModeTranscribeOnly stops at a ready transcript; analysis runs only on
	// an explicit regenerate request.
	ModeTranscribeOnly Mode = "transcribe_only"

	// ModeTranscribeAndSummarize dispatches analysis automatically once the
	// merged transcript is ready.
	ModeTranscribeAndSummarize Mode = "transcribe_and_summarize"
)

// SpeakerUnknown is the sentinel label assigned to transcript segments that
// no diarization segment overlaps.
const SpeakerUnknown = "unknown"

// TranscriptSegment is one time-stamped text span from the speech-to-text
// engine. Times are seconds from the start of the recording.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SpeakerSegment is one time-stamped speaker label span from the
// diarization engine.
type SpeakerSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// MergedSegment is one speaker-attributed transcript span produced by the
// alignment merger.
type MergedSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// SpeakerStats summarizes one speaker's share of a merged transcript.
type SpeakerStats struct {
	Speaker      string  `json:"speaker"`
	Duration     float64 `json:"duration_secs"`
	Percentage   float64 `json:"percentage"`
	SegmentCount int     `json:"segment_count"`
}

// ActionItem is one extracted follow-up task.
type ActionItem struct {
	Description string `json:"description"`
	Owner       string `json:"owner,omitempty"`
	Due         string `json:"due,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// Decision is one extracted agreement reached in the meeting.
type Decision struct {
	Description string `json:"description"`
	Rationale   string `json:"rationale,omitempty"`
}

// AnalysisResult aggregates the three LLM extractions. All three are
// present before a job is marked completed; partial results are never
// persisted as final.
type AnalysisResult struct {
	Summary     string       `json:"summary"`
	ActionItems []ActionItem `json:"action_items"`
	Decisions   []Decision   `json:"decisions"`

	// Stale is set when the merged transcript is edited after this result
	// was generated. The prior content is retained until an explicit
	// regeneration replaces it.
	Stale bool `json:"stale,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// ErrorDetail records the failing stage and cause for jobs in error status.
type ErrorDetail struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// Job is one meeting's end-to-end processing unit. All mutation goes
// through the coordinator under the job's own lock; everything handed out
// of the store is a copy.
type Job struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	AudioRef string `json:"audio_ref"`
	Mode     Mode   `json:"mode"`
	Status   Status `json:"status"`

	// Language is an optional hint forwarded to the speech-to-text engine;
	// after transcription it holds the detected language.
	Language string `json:"language,omitempty"`

	// NumSpeakers is an optional hint for the diarization engine; zero
	// means auto-detect.
	NumSpeakers int `json:"num_speakers,omitempty"`

	// Version increments whenever in-flight work must be invalidated:
	// alignment completion, analysis completion, failure, and re-runs.
	// Worker results tagged with an older version are dropped. The
	// transcribe/diarize fan-out shares one version so the join can fire.
	Version uint64 `json:"version"`

	// Join flags for the transcribe/diarize fan-out. The transition to
	// aligning fires only once both are set.
	TranscriptDone   bool `json:"transcript_done"`
	DiarizationDone  bool `json:"diarization_done"`
	DiarizationAsked bool `json:"diarization_asked"`

	// EditedDuringAnalysis marks a transcript edit made while an analysis
	// attempt was in flight. The landing result no longer matches the
	// current transcript and is flagged stale on arrival.
	EditedDuringAnalysis bool `json:"edited_during_analysis,omitempty"`

	TranscriptSegments []TranscriptSegment `json:"transcript_segments,omitempty"`
	SpeakerSegments    []SpeakerSegment    `json:"speaker_segments,omitempty"`
	MergedTranscript   []MergedSegment     `json:"merged_transcript,omitempty"`
	SpeakerStats       []SpeakerStats      `json:"speaker_stats,omitempty"`

	Analysis    *AnalysisResult `json:"analysis_result,omitempty"`
	ErrorDetail *ErrorDetail    `json:"error_detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the job so store readers never share slices
// with the coordinator's working copy.
func (j *Job) Clone() *Job {
	c := *j
	c.TranscriptSegments = append([]TranscriptSegment(nil), j.TranscriptSegments...)
	c.SpeakerSegments = append([]SpeakerSegment(nil), j.SpeakerSegments...)
	c.MergedTranscript = append([]MergedSegment(nil), j.MergedTranscript...)
	c.SpeakerStats = append([]SpeakerStats(nil), j.SpeakerStats...)
	if j.Analysis != nil {
		a := *j.Analysis
		a.ActionItems = append([]ActionItem(nil), j.Analysis.ActionItems...)
		a.Decisions = append([]Decision(nil), j.Analysis.Decisions...)
		c.Analysis = &a
	}
	if j.ErrorDetail != nil {
		d := *j.ErrorDetail
		c.ErrorDetail = &d
	}
	return &c
}

// HasMergedTranscript reports whether the alignment stage has produced (or
// an edit has replaced) the speaker-attributed transcript.
func (j *Job) HasMergedTranscript() bool {
	return len(j.MergedTranscript) > 0
}
