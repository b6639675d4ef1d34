package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:       LevelInfo,
		ServiceName: "test",
		JSONFormat:  true,
		Output:      &buf,
	})

	log.Info("hello", F("job_id", "abc"), F("attempt", 2))

	out := buf.String()
	if !strings.Contains(out, `"message":"hello"`) {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, `"job_id":"abc"`) {
		t.Errorf("output missing string field: %s", out)
	}
	if !strings.Contains(out, `"attempt":2`) {
		t.Errorf("output missing int field: %s", out)
	}
	if !strings.Contains(out, `"service":"test"`) {
		t.Errorf("output missing service name: %s", out)
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelWarn,
		JSONFormat: true,
		Output:     &buf,
	})

	log.Debug("should not appear")
	log.Info("should not appear either")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("level filtering failed: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestWith_AttachesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelInfo,
		JSONFormat: true,
		Output:     &buf,
	})

	child := log.With(F("stage", "transcribe"))
	child.Info("working")

	if !strings.Contains(buf.String(), `"stage":"transcribe"`) {
		t.Errorf("With field missing: %s", buf.String())
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	// Must not panic.
	log.Debug("x")
	log.Info("x", F("k", "v"))
	log.Warn("x")
	log.Error("x", Err(nil))
	log.With(F("k", "v")).Info("x")
}
