// Package queues provides the durable task queue carrying stage-tagged work
// items between the coordinator and the worker processes.
package queues

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/meetbrief/meetbrief/pkg/meeting"
)

// Queue errors.
var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMessageNotFound    = errors.New("message not found")
	ErrQueueClosed        = errors.New("queue is closed")
)

// Priority orders work within a queue. Re-runs go in ahead of fresh
// submissions since a user is actively waiting on them.
type Priority int

const (
	PriorityNormal Priority = 0
	PriorityRerun  Priority = 1
)

// Message is the base interface for all queue messages a worker can pull.
type Message interface {
	// GetJobID returns the meeting job this work item belongs to.
	GetJobID() string
	// GetVersion returns the job version the item was dispatched for.
	// Results for older versions are dropped by the coordinator.
	GetVersion() uint64
	// GetStage returns the pipeline stage the item drives.
	GetStage() meeting.Stage
	// GetPriority returns the message priority.
	GetPriority() Priority
	// GetDeadline returns the wall-clock time after which the coordinator
	// treats the item as failed.
	GetDeadline() time.Time
}

// TranscribeMessage asks a transcription worker to run speech-to-text over
// the job's audio.
type TranscribeMessage struct {
	JobID    string    `json:"job_id"`
	Version  uint64    `json:"version"`
	AudioRef string    `json:"audio_ref"`
	Language string    `json:"language,omitempty"`
	Priority Priority  `json:"priority"`
	Deadline time.Time `json:"deadline"`
}

func (m *TranscribeMessage) GetJobID() string         { return m.JobID }
func (m *TranscribeMessage) GetVersion() uint64       { return m.Version }
func (m *TranscribeMessage) GetStage() meeting.Stage  { return meeting.StageTranscribe }
func (m *TranscribeMessage) GetPriority() Priority    { return m.Priority }
func (m *TranscribeMessage) GetDeadline() time.Time   { return m.Deadline }

// DiarizeMessage asks a diarization worker to label speaker turns in the
// job's audio.
type DiarizeMessage struct {
	JobID       string    `json:"job_id"`
	Version     uint64    `json:"version"`
	AudioRef    string    `json:"audio_ref"`
	NumSpeakers int       `json:"num_speakers,omitempty"`
	Priority    Priority  `json:"priority"`
	Deadline    time.Time `json:"deadline"`
}

func (m *DiarizeMessage) GetJobID() string        { return m.JobID }
func (m *DiarizeMessage) GetVersion() uint64      { return m.Version }
func (m *DiarizeMessage) GetStage() meeting.Stage { return meeting.StageDiarize }
func (m *DiarizeMessage) GetPriority() Priority   { return m.Priority }
func (m *DiarizeMessage) GetDeadline() time.Time  { return m.Deadline }

// AnalyzeMessage asks an analysis worker to run the LLM extraction sequence
// over the merged transcript.
type AnalyzeMessage struct {
	JobID      string                  `json:"job_id"`
	Version    uint64                  `json:"version"`
	Transcript []meeting.MergedSegment `json:"transcript"`
	Priority   Priority                `json:"priority"`
	Deadline   time.Time               `json:"deadline"`
}

func (m *AnalyzeMessage) GetJobID() string        { return m.JobID }
func (m *AnalyzeMessage) GetVersion() uint64      { return m.Version }
func (m *AnalyzeMessage) GetStage() meeting.Stage { return meeting.StageAnalysis }
func (m *AnalyzeMessage) GetPriority() Priority   { return m.Priority }
func (m *AnalyzeMessage) GetDeadline() time.Time  { return m.Deadline }

// QueuedMessage wraps a message with delivery metadata.
type QueuedMessage struct {
	ID         string          `json:"id"`
	Stage      meeting.Stage   `json:"stage"`
	Message    json.RawMessage `json:"message"`
	Priority   Priority        `json:"priority"`
	RetryCount int             `json:"retry_count"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ParseMessage decodes the raw payload according to the stage tag.
func (qm *QueuedMessage) ParseMessage() (Message, error) {
	switch qm.Stage {
	case meeting.StageTranscribe:
		var msg TranscribeMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case meeting.StageDiarize:
		var msg DiarizeMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case meeting.StageAnalysis:
		var msg AnalyzeMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, ErrUnknownMessageType
	}
}

// Queue is a durable, at-least-once delivery channel for one stage kind.
type Queue interface {
	// Name returns the queue name.
	Name() string

	// Enqueue adds a message. Returns a capacity error when the bounded
	// depth is reached; the caller may retry later.
	Enqueue(ctx context.Context, msg Message) error

	// Dequeue retrieves up to maxMessages, blocking up to wait when the
	// queue is empty.
	Dequeue(ctx context.Context, maxMessages int, wait time.Duration) ([]*QueuedMessage, error)

	// Ack acknowledges successful processing of a message.
	Ack(ctx context.Context, messageID string) error

	// Nack returns a message for redelivery after a transient failure.
	Nack(ctx context.Context, messageID string) error

	// MoveToDeadLetter parks a message that cannot be processed.
	MoveToDeadLetter(ctx context.Context, messageID, reason string) error

	// Depth returns the number of messages waiting for pickup.
	Depth(ctx context.Context) (int64, error)

	// Close releases the queue's resources.
	Close() error
}

// Config bounds one stage queue. MaxDepth is the admission limit;
// transcription and diarization are GPU-bound, so unbounded admission
// would exhaust memory downstream.
type Config struct {
	Name              string        `yaml:"name"`
	MaxDepth          int64         `yaml:"max_depth"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetentionPeriod   time.Duration `yaml:"retention_period"`
}

// DefaultConfigs returns per-stage queue defaults. Analysis gets a longer
// visibility window because LLM calls are slow.
func DefaultConfigs() map[meeting.Stage]Config {
	return map[meeting.Stage]Config{
		meeting.StageTranscribe: {
			Name:              "meetbrief:transcribe",
			MaxDepth:          64,
			VisibilityTimeout: 30 * time.Minute,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
		meeting.StageDiarize: {
			Name:              "meetbrief:diarize",
			MaxDepth:          64,
			VisibilityTimeout: 30 * time.Minute,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
		meeting.StageAnalysis: {
			Name:              "meetbrief:analyze",
			MaxDepth:          128,
			VisibilityTimeout: 10 * time.Minute,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
	}
}

// Verify interface compliance.
var (
	_ Message = (*TranscribeMessage)(nil)
	_ Message = (*DiarizeMessage)(nil)
	_ Message = (*AnalyzeMessage)(nil)
)
