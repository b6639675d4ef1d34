package queues

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/meetbrief/meetbrief/pkg/meeting"
)

func TestTranscribeMessage_Interface(t *testing.T) {
	deadline := time.Now().Add(30 * time.Minute)
	msg := &TranscribeMessage{
		JobID:    "job-1",
		Version:  3,
		AudioRef: "audio/job-1.wav",
		Language: "en",
		Priority: PriorityRerun,
		Deadline: deadline,
	}

	if msg.GetJobID() != "job-1" {
		t.Errorf("GetJobID() = %s, want job-1", msg.GetJobID())
	}
	if msg.GetVersion() != 3 {
		t.Errorf("GetVersion() = %d, want 3", msg.GetVersion())
	}
	if msg.GetStage() != meeting.StageTranscribe {
		t.Errorf("GetStage() = %s, want %s", msg.GetStage(), meeting.StageTranscribe)
	}
	if msg.GetPriority() != PriorityRerun {
		t.Errorf("GetPriority() = %d, want %d", msg.GetPriority(), PriorityRerun)
	}
	if !msg.GetDeadline().Equal(deadline) {
		t.Errorf("GetDeadline() = %v, want %v", msg.GetDeadline(), deadline)
	}
}

func TestDiarizeMessage_Interface(t *testing.T) {
	msg := &DiarizeMessage{JobID: "job-2", Version: 1, NumSpeakers: 4}

	if msg.GetStage() != meeting.StageDiarize {
		t.Errorf("GetStage() = %s, want %s", msg.GetStage(), meeting.StageDiarize)
	}
	if msg.GetPriority() != PriorityNormal {
		t.Errorf("GetPriority() = %d, want normal", msg.GetPriority())
	}
}

func TestQueuedMessage_ParseRoundTrip(t *testing.T) {
	original := &AnalyzeMessage{
		JobID:   "job-3",
		Version: 2,
		Transcript: []meeting.MergedSegment{
			{Speaker: "A", Start: 0, End: 5, Text: "hello"},
		},
	}
	payload, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	qm := &QueuedMessage{
		ID:      "m1",
		Stage:   meeting.StageAnalysis,
		Message: payload,
	}

	parsed, err := qm.ParseMessage()
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	analyze, ok := parsed.(*AnalyzeMessage)
	if !ok {
		t.Fatalf("parsed type = %T, want *AnalyzeMessage", parsed)
	}
	if analyze.JobID != "job-3" || analyze.Version != 2 {
		t.Errorf("parsed = %+v, want job-3 v2", analyze)
	}
	if len(analyze.Transcript) != 1 || analyze.Transcript[0].Speaker != "A" {
		t.Errorf("transcript payload not preserved: %+v", analyze.Transcript)
	}
}

func TestQueuedMessage_UnknownStage(t *testing.T) {
	qm := &QueuedMessage{Stage: meeting.Stage("nope"), Message: []byte("{}")}
	if _, err := qm.ParseMessage(); err != ErrUnknownMessageType {
		t.Errorf("err = %v, want ErrUnknownMessageType", err)
	}
}

func TestDefaultConfigs_CoverAllStages(t *testing.T) {
	cfgs := DefaultConfigs()
	for _, stage := range []meeting.Stage{meeting.StageTranscribe, meeting.StageDiarize, meeting.StageAnalysis} {
		cfg, ok := cfgs[stage]
		if !ok {
			t.Errorf("no default config for stage %s", stage)
			continue
		}
		if cfg.MaxDepth <= 0 {
			t.Errorf("stage %s has unbounded depth", stage)
		}
		if cfg.MaxRetries <= 0 {
			t.Errorf("stage %s has no retry budget", stage)
		}
	}
}
