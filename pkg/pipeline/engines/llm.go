package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meetbrief/meetbrief/pkg/errors"
	"github.com/meetbrief/meetbrief/pkg/pipeline/analysis"
)

// HTTPLLMClient talks to an OpenAI-compatible chat completion endpoint.
// It implements analysis.LLMClient.
type HTTPLLMClient struct {
	config     Config
	httpClient *http.Client
}

var _ analysis.LLMClient = (*HTTPLLMClient)(nil)

// NewHTTPLLMClient creates an LLM client for the given service.
func NewHTTPLLMClient(config Config) *HTTPLLMClient {
	return &HTTPLLMClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// chatMessage is one message in the chat conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the OpenAI-compatible chat completion request.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatChoice is one completion choice.
type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chatUsage reports token consumption.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// chatResponse is the OpenAI-compatible chat completion response.
type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Complete sends one prompt and returns the raw model response.
func (c *HTTPLLMClient) Complete(ctx context.Context, req *analysis.CompletionRequest) (*analysis.CompletionResponse, error) {
	start := time.Now()

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, errors.NewEngineError("marshal request", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimSuffix(c.config.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewEngineError("create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &errors.EngineError{Code: errors.CodeTimeout, Message: "completion timed out", Cause: err}
		}
		return nil, errors.NewEngineError("LLM unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewEngineError("read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &errors.EngineError{Code: errors.CodeBadResponse, Message: "malformed completion response", Cause: err}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &errors.EngineError{Code: errors.CodeBadResponse, Message: "no choices in response"}
	}
	if chatResp.Choices[0].FinishReason == "length" {
		return nil, &errors.EngineError{
			Code:    errors.CodeBadResponse,
			Message: fmt.Sprintf("response truncated at max_tokens (%d completion tokens)", chatResp.Usage.CompletionTokens),
		}
	}

	return &analysis.CompletionResponse{
		Content:      chatResp.Choices[0].Message.Content,
		Model:        chatResp.Model,
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
		LatencyMs:    int(time.Since(start).Milliseconds()),
	}, nil
}

// Close releases idle connections.
func (c *HTTPLLMClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
