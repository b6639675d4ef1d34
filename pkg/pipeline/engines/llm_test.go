package engines

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meetbrief/meetbrief/pkg/errors"
	"github.com/meetbrief/meetbrief/pkg/pipeline/analysis"
)

func TestLLMComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("got %d messages, want system + user", len(req.Messages))
		}
		if req.Messages[0].Role != "system" {
			t.Errorf("first message role = %q", req.Messages[0].Role)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Model: "deepseek-chat",
			Choices: []chatChoice{
				{Message: chatMessage{Role: "assistant", Content: `{"items": []}`}, FinishReason: "stop"},
			},
			Usage: chatUsage{PromptTokens: 120, CompletionTokens: 8},
		})
	}))
	defer srv.Close()

	client := NewHTTPLLMClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	resp, err := client.Complete(context.Background(), &analysis.CompletionRequest{
		Model:  "deepseek-chat",
		System: "You are a meeting analyst.",
		Prompt: "Extract action items.",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != `{"items": []}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.InputTokens != 120 || resp.OutputTokens != 8 {
		t.Errorf("tokens = %d/%d, want 120/8", resp.InputTokens, resp.OutputTokens)
	}
}

func TestLLMTruncatedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{
				{Message: chatMessage{Content: `{"items": [`}, FinishReason: "length"},
			},
			Usage: chatUsage{CompletionTokens: 3000},
		})
	}))
	defer srv.Close()

	client := NewHTTPLLMClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := client.Complete(context.Background(), &analysis.CompletionRequest{Model: "m", Prompt: "p"})
	ee, ok := errors.AsEngineError(err)
	if !ok || ee.Code != errors.CodeBadResponse {
		t.Fatalf("expected bad-response error for truncated completion, got %v", err)
	}
}

func TestLLMNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	client := NewHTTPLLMClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := client.Complete(context.Background(), &analysis.CompletionRequest{Model: "m", Prompt: "p"})
	ee, ok := errors.AsEngineError(err)
	if !ok || ee.Code != errors.CodeBadResponse {
		t.Fatalf("expected bad-response error, got %v", err)
	}
}

func TestLLMRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewHTTPLLMClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := client.Complete(context.Background(), &analysis.CompletionRequest{Model: "m", Prompt: "p"})
	if !errors.IsRateLimited(err) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
}
