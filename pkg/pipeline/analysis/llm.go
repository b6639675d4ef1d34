// Package analysis runs the fixed LLM extraction sequence over a merged
// transcript: action items, decisions, then an integrating summary. All
// three must succeed before a result exists; one failed extraction fails
// the whole stage so retry semantics stay unambiguous.
package analysis

import (
	"context"
	"time"
)

// LLMClient is the interface to the LLM analysis service.
type LLMClient interface {
	// Complete sends one prompt and returns the raw model response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is one prompt sent to the LLM.
type CompletionRequest struct {
	Model       string  `json:"model"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// CompletionResponse is the raw model output plus usage metadata.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	LatencyMs    int    `json:"latency_ms"`
}

// Config tunes the extraction calls.
type Config struct {
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultConfig returns conservative extraction settings.
func DefaultConfig() Config {
	return Config{
		Model:       "deepseek-chat",
		MaxTokens:   3000,
		Temperature: 0.3,
		Timeout:     2 * time.Minute,
	}
}
