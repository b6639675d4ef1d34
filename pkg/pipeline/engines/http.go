package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meetbrief/meetbrief/pkg/errors"
)

// HTTPTranscriptionEngine talks to a speech-to-text service over its JSON
// API.
type HTTPTranscriptionEngine struct {
	config     Config
	httpClient *http.Client
}

var _ TranscriptionEngine = (*HTTPTranscriptionEngine)(nil)

// NewHTTPTranscriptionEngine creates a transcription client for the given
// service.
func NewHTTPTranscriptionEngine(config Config) *HTTPTranscriptionEngine {
	return &HTTPTranscriptionEngine{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Transcribe sends the audio reference to the service and returns the
// timed transcript.
func (e *HTTPTranscriptionEngine) Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResult, error) {
	var result TranscribeResult
	url := fmt.Sprintf("%s/v1/transcribe", strings.TrimSuffix(e.config.BaseURL, "/"))
	if err := postJSON(ctx, e.httpClient, url, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Close releases idle connections.
func (e *HTTPTranscriptionEngine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// HTTPDiarizationEngine talks to a speaker-diarization service over its
// JSON API.
type HTTPDiarizationEngine struct {
	config     Config
	httpClient *http.Client
}

var _ DiarizationEngine = (*HTTPDiarizationEngine)(nil)

// NewHTTPDiarizationEngine creates a diarization client for the given
// service.
func NewHTTPDiarizationEngine(config Config) *HTTPDiarizationEngine {
	return &HTTPDiarizationEngine{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Diarize sends the audio reference to the service and returns the
// detected speaker turns.
func (e *HTTPDiarizationEngine) Diarize(ctx context.Context, req *DiarizeRequest) (*DiarizeResult, error) {
	var result DiarizeResult
	url := fmt.Sprintf("%s/v1/diarize", strings.TrimSuffix(e.config.BaseURL, "/"))
	if err := postJSON(ctx, e.httpClient, url, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Close releases idle connections.
func (e *HTTPDiarizationEngine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// errorBody is the error payload engine services return alongside a
// non-2xx status.
type errorBody struct {
	Error string `json:"error"`
}

// postJSON executes one request/response cycle against an engine service
// and maps failures onto the engine error taxonomy.
func postJSON(ctx context.Context, client *http.Client, url string, payload, target interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.NewEngineError("marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.NewEngineError("create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &errors.EngineError{Code: errors.CodeTimeout, Message: "engine request timed out", Cause: err}
		}
		return errors.NewEngineError("engine unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewEngineError("read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, respBody)
	}

	if err := json.Unmarshal(respBody, target); err != nil {
		return &errors.EngineError{Code: errors.CodeBadResponse, Message: "malformed engine response", Cause: err}
	}
	return nil
}

// statusError converts a non-200 engine response into a typed failure.
func statusError(resp *http.Response, body []byte) error {
	message := strings.TrimSpace(string(body))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		message = eb.Error
	}

	switch resp.StatusCode {
	case http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return errors.NewUnsupportedFormatError(message)
	case http.StatusTooManyRequests:
		return errors.NewRateLimitError(message, retryAfter(resp))
	case http.StatusGatewayTimeout:
		return &errors.EngineError{Code: errors.CodeTimeout, Message: message}
	default:
		return errors.NewEngineError(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, message), nil)
	}
}

// retryAfter reads the Retry-After header, returning zero when absent or
// unparseable.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
