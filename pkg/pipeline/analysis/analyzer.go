package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meetbrief/meetbrief/pkg/logging"
	"github.com/meetbrief/meetbrief/pkg/meeting"
)

// Analyzer orchestrates the extraction sequence against one merged
// transcript.
type Analyzer struct {
	client LLMClient
	config Config
	logger logging.Logger
}

// Option configures the analyzer.
type Option func(*Analyzer)

// WithConfig sets custom extraction settings.
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) { a.config = cfg }
}

// WithLogger sets a custom logger.
func WithLogger(logger logging.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// NewAnalyzer creates an analyzer over the given LLM client.
func NewAnalyzer(client LLMClient, opts ...Option) *Analyzer {
	a := &Analyzer{
		client: client,
		config: DefaultConfig(),
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logging.F("component", "analyzer"))
	return a
}

// Run executes all three extractions. Actions and decisions run first;
// the summary prompt integrates their results, matching how a human
// assistant would write the report last. Any sub-extraction failure fails
// the whole run and no partial result is returned.
func (a *Analyzer) Run(ctx context.Context, transcript []meeting.MergedSegment) (*meeting.AnalysisResult, error) {
	text := FormatTranscript(transcript)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty transcript, nothing to analyze")
	}

	started := time.Now()

	actions, err := a.extractActions(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("action item extraction: %w", err)
	}
	a.logger.Debug("action items extracted", logging.F("count", len(actions)))

	decisions, err := a.extractDecisions(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("decision extraction: %w", err)
	}
	a.logger.Debug("decisions extracted", logging.F("count", len(decisions)))

	summary, err := a.extractSummary(ctx, text, actions, decisions)
	if err != nil {
		return nil, fmt.Errorf("summary extraction: %w", err)
	}

	a.logger.Info("analysis complete",
		logging.F("actions", len(actions)),
		logging.F("decisions", len(decisions)),
		logging.F("duration", time.Since(started)))

	return &meeting.AnalysisResult{
		Summary:     summary,
		ActionItems: actions,
		Decisions:   decisions,
		GeneratedAt: time.Now(),
	}, nil
}

func (a *Analyzer) extractActions(ctx context.Context, transcript string) ([]meeting.ActionItem, error) {
	resp, err := a.complete(ctx, fmt.Sprintf(actionsPrompt, transcript))
	if err != nil {
		return nil, err
	}
	return parseActionItems(resp.Content)
}

func (a *Analyzer) extractDecisions(ctx context.Context, transcript string) ([]meeting.Decision, error) {
	resp, err := a.complete(ctx, fmt.Sprintf(decisionsPrompt, transcript))
	if err != nil {
		return nil, err
	}
	return parseDecisions(resp.Content)
}

func (a *Analyzer) extractSummary(ctx context.Context, transcript string, actions []meeting.ActionItem, decisions []meeting.Decision) (string, error) {
	prompt := fmt.Sprintf(summaryPrompt,
		excerpt(transcript, 6000),
		formatActionsForPrompt(actions),
		formatDecisionsForPrompt(decisions))

	resp, err := a.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return parseSummary(resp.Content)
}

func (a *Analyzer) complete(ctx context.Context, prompt string) (*CompletionResponse, error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}
	return a.client.Complete(ctx, &CompletionRequest{
		Model:       a.config.Model,
		System:      systemInstruction,
		Prompt:      prompt,
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
	})
}

// FormatTranscript renders a merged transcript as the text the prompts
// consume: one "[mm:ss --> mm:ss] [speaker] text" line per segment.
func FormatTranscript(segments []meeting.MergedSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s --> %s] [%s] %s",
			formatTime(seg.Start), formatTime(seg.End), seg.Speaker, seg.Text)
	}
	return b.String()
}

func formatTime(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// excerpt keeps the head and tail of a long transcript so the summary
// prompt stays inside the model's context window.
func excerpt(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	head := maxChars * 2 / 3
	tail := maxChars - head
	return text[:head] + "\n\n[... middle omitted ...]\n\n" + text[len(text)-tail:]
}

func formatActionsForPrompt(actions []meeting.ActionItem) string {
	if len(actions) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, a := range actions {
		b.WriteString("- " + a.Description)
		if a.Owner != "" {
			b.WriteString(" @" + a.Owner)
		}
		if a.Due != "" {
			b.WriteString(" (due: " + a.Due + ")")
		}
		if a.Priority != "" {
			b.WriteString(" [" + a.Priority + "]")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatDecisionsForPrompt(decisions []meeting.Decision) string {
	if len(decisions) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, d := range decisions {
		b.WriteString("- " + d.Description)
		if d.Rationale != "" {
			b.WriteString(" (rationale: " + d.Rationale + ")")
		}
		b.WriteByte('\n')
	}
	return b.String()
}
