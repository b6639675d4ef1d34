// Package workers runs the stage worker pools. Each worker dequeues work
// items, calls the engine for its stage, and hands the outcome back to the
// coordinator. Workers never mutate job state themselves.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/meetbrief/meetbrief/pkg/logging"
	"github.com/meetbrief/meetbrief/pkg/meeting"
	"github.com/meetbrief/meetbrief/pkg/pipeline/analysis"
	"github.com/meetbrief/meetbrief/pkg/pipeline/engines"
	"github.com/meetbrief/meetbrief/pkg/pipeline/observability"
	"github.com/meetbrief/meetbrief/pkg/pipeline/queues"
)

// StageResult is the outcome of one stage attempt, success or failure.
// Exactly one of the payload fields matches the stage; Err is set instead
// of a payload when the attempt failed.
type StageResult struct {
	JobID   string
	Version uint64
	Stage   meeting.Stage

	Transcript []meeting.TranscriptSegment
	Language   string
	Speakers   []meeting.SpeakerSegment
	Analysis   *meeting.AnalysisResult

	Err error
}

// ResultReporter receives stage outcomes. The coordinator implements it;
// version checks and state transitions happen there, under the job lock.
type ResultReporter interface {
	ReportResult(ctx context.Context, result *StageResult) error
}

// TranscribeHandler runs speech-to-text work items.
type TranscribeHandler struct {
	engine   engines.TranscriptionEngine
	reporter ResultReporter
	logger   logging.Logger
	metrics  *observability.PipelineMetrics
}

// NewTranscribeHandler creates a handler that transcribes via the given
// engine and reports through the given reporter.
func NewTranscribeHandler(engine engines.TranscriptionEngine, reporter ResultReporter, logger logging.Logger, metrics *observability.PipelineMetrics) *TranscribeHandler {
	return &TranscribeHandler{engine: engine, reporter: reporter, logger: logger, metrics: metrics}
}

// Handle processes one transcribe message.
func (h *TranscribeHandler) Handle(ctx context.Context, msg queues.Message) error {
	tm, ok := msg.(*queues.TranscribeMessage)
	if !ok {
		return fmt.Errorf("unexpected message type %T on transcribe queue", msg)
	}

	start := time.Now()
	result, err := h.engine.Transcribe(ctx, &engines.TranscribeRequest{
		AudioRef: tm.AudioRef,
		Language: tm.Language,
	})

	sr := &StageResult{JobID: tm.JobID, Version: tm.Version, Stage: meeting.StageTranscribe}
	if err != nil {
		h.logger.Warn("transcription failed",
			logging.F("job_id", tm.JobID),
			logging.Err(err))
		h.metrics.RecordStageDuration(string(meeting.StageTranscribe), "failure", time.Since(start).Seconds())
		sr.Err = err
	} else {
		h.metrics.RecordStageDuration(string(meeting.StageTranscribe), "success", time.Since(start).Seconds())
		sr.Transcript = result.Segments
		sr.Language = result.Language
	}

	return h.reporter.ReportResult(ctx, sr)
}

// DiarizeHandler runs speaker-diarization work items.
type DiarizeHandler struct {
	engine   engines.DiarizationEngine
	reporter ResultReporter
	logger   logging.Logger
	metrics  *observability.PipelineMetrics
}

// NewDiarizeHandler creates a handler that diarizes via the given engine
// and reports through the given reporter.
func NewDiarizeHandler(engine engines.DiarizationEngine, reporter ResultReporter, logger logging.Logger, metrics *observability.PipelineMetrics) *DiarizeHandler {
	return &DiarizeHandler{engine: engine, reporter: reporter, logger: logger, metrics: metrics}
}

// Handle processes one diarize message.
func (h *DiarizeHandler) Handle(ctx context.Context, msg queues.Message) error {
	dm, ok := msg.(*queues.DiarizeMessage)
	if !ok {
		return fmt.Errorf("unexpected message type %T on diarize queue", msg)
	}

	start := time.Now()
	result, err := h.engine.Diarize(ctx, &engines.DiarizeRequest{
		AudioRef:    dm.AudioRef,
		NumSpeakers: dm.NumSpeakers,
	})

	sr := &StageResult{JobID: dm.JobID, Version: dm.Version, Stage: meeting.StageDiarize}
	if err != nil {
		h.logger.Warn("diarization failed",
			logging.F("job_id", dm.JobID),
			logging.Err(err))
		h.metrics.RecordStageDuration(string(meeting.StageDiarize), "failure", time.Since(start).Seconds())
		sr.Err = err
	} else {
		h.metrics.RecordStageDuration(string(meeting.StageDiarize), "success", time.Since(start).Seconds())
		sr.Speakers = result.Segments
	}

	return h.reporter.ReportResult(ctx, sr)
}

// AnalyzeHandler runs LLM analysis work items.
type AnalyzeHandler struct {
	analyzer *analysis.Analyzer
	reporter ResultReporter
	logger   logging.Logger
	metrics  *observability.PipelineMetrics
}

// NewAnalyzeHandler creates a handler that analyzes merged transcripts and
// reports through the given reporter.
func NewAnalyzeHandler(analyzer *analysis.Analyzer, reporter ResultReporter, logger logging.Logger, metrics *observability.PipelineMetrics) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer, reporter: reporter, logger: logger, metrics: metrics}
}

// Handle processes one analyze message.
func (h *AnalyzeHandler) Handle(ctx context.Context, msg queues.Message) error {
	am, ok := msg.(*queues.AnalyzeMessage)
	if !ok {
		return fmt.Errorf("unexpected message type %T on analyze queue", msg)
	}

	start := time.Now()
	result, err := h.analyzer.Run(ctx, am.Transcript)

	sr := &StageResult{JobID: am.JobID, Version: am.Version, Stage: meeting.StageAnalysis}
	if err != nil {
		h.logger.Warn("analysis failed",
			logging.F("job_id", am.JobID),
			logging.Err(err))
		h.metrics.RecordStageDuration(string(meeting.StageAnalysis), "failure", time.Since(start).Seconds())
		sr.Err = err
	} else {
		h.metrics.RecordStageDuration(string(meeting.StageAnalysis), "success", time.Since(start).Seconds())
		sr.Analysis = result
	}

	return h.reporter.ReportResult(ctx, sr)
}
