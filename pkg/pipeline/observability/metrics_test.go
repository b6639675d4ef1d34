package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPipelineMetrics(reg)

	metrics.RecordSubmitted("transcribe_and_summarize")
	metrics.RecordFinished("completed")
	metrics.RecordTransition("pending", "transcribing")
	metrics.RecordStaleResult("transcribe")
	metrics.RecordDeadlineExpiry("diarize")
	metrics.RecordStageDuration("transcribe", "success", 42.5)
	metrics.RecordEnqueue("meetbrief:transcribe", "normal")
	metrics.SetQueueDepth("meetbrief:transcribe", 3)
	metrics.RecordDLQItem("meetbrief:analyze", "engine_failure")
	metrics.RecordLLMCall("summary", "deepseek-chat", "success", 1.8, 1500, 400)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := map[string]bool{
		"meetbrief_jobs_submitted_total":    false,
		"meetbrief_jobs_finished_total":     false,
		"meetbrief_state_transitions_total": false,
		"meetbrief_stale_results_total":     false,
		"meetbrief_deadline_expiries_total": false,
		"meetbrief_stage_seconds":           false,
		"meetbrief_queue_items_total":       false,
		"meetbrief_queue_depth":             false,
		"meetbrief_dlq_items_total":         false,
		"meetbrief_llm_calls_total":         false,
		"meetbrief_llm_latency_seconds":     false,
		"meetbrief_llm_tokens_total":        false,
	}

	for _, fam := range families {
		if _, ok := expectedMetrics[fam.GetName()]; ok {
			expectedMetrics[fam.GetName()] = true
		}
	}

	for name, found := range expectedMetrics {
		if !found {
			t.Errorf("Metric %s not found in registry", name)
		}
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two metric sets on distinct registries must not collide.
	a := NewPipelineMetrics(prometheus.NewRegistry())
	b := NewPipelineMetrics(prometheus.NewRegistry())

	a.RecordSubmitted("transcribe_only")
	b.RecordSubmitted("transcribe_only")
}
