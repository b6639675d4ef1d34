package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	mberrors "github.com/meetbrief/meetbrief/pkg/errors"
	"github.com/meetbrief/meetbrief/pkg/meeting"
)

// actionItemsEnvelope is the required shape of the actions extraction.
// The "items" key must be present: a valid empty meeting yields
// {"items": []}, while a response missing the key is garbage and fails
// the stage rather than being coerced into an empty list.
type actionItemsEnvelope struct {
	Items []actionItemRecord `json:"items"`
}

type actionItemRecord struct {
	Description string `json:"description"`
	Owner       string `json:"owner"`
	Due         string `json:"due"`
	Priority    string `json:"priority"`
}

type decisionsEnvelope struct {
	Items []decisionRecord `json:"items"`
}

type decisionRecord struct {
	Description string `json:"description"`
	Rationale   string `json:"rationale"`
}

// parseActionItems validates and decodes the actions extraction response.
func parseActionItems(raw string) ([]meeting.ActionItem, error) {
	doc, err := extractJSONDocument(raw)
	if err != nil {
		return nil, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &probe); err != nil {
		return nil, badShape("action items", err)
	}
	if _, ok := probe["items"]; !ok {
		return nil, badShape("action items", fmt.Errorf(`missing "items" key`))
	}

	var envelope actionItemsEnvelope
	if err := json.Unmarshal([]byte(doc), &envelope); err != nil {
		return nil, badShape("action items", err)
	}

	items := make([]meeting.ActionItem, 0, len(envelope.Items))
	for i, rec := range envelope.Items {
		if strings.TrimSpace(rec.Description) == "" {
			return nil, badShape("action items", fmt.Errorf("item %d has empty description", i))
		}
		items = append(items, meeting.ActionItem{
			Description: rec.Description,
			Owner:       rec.Owner,
			Due:         rec.Due,
			Priority:    rec.Priority,
		})
	}
	return items, nil
}

// parseDecisions validates and decodes the decisions extraction response.
func parseDecisions(raw string) ([]meeting.Decision, error) {
	doc, err := extractJSONDocument(raw)
	if err != nil {
		return nil, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &probe); err != nil {
		return nil, badShape("decisions", err)
	}
	if _, ok := probe["items"]; !ok {
		return nil, badShape("decisions", fmt.Errorf(`missing "items" key`))
	}

	var envelope decisionsEnvelope
	if err := json.Unmarshal([]byte(doc), &envelope); err != nil {
		return nil, badShape("decisions", err)
	}

	decisions := make([]meeting.Decision, 0, len(envelope.Items))
	for i, rec := range envelope.Items {
		if strings.TrimSpace(rec.Description) == "" {
			return nil, badShape("decisions", fmt.Errorf("item %d has empty description", i))
		}
		decisions = append(decisions, meeting.Decision{
			Description: rec.Description,
			Rationale:   rec.Rationale,
		})
	}
	return decisions, nil
}

// parseSummary validates the summary extraction: any non-empty text.
func parseSummary(raw string) (string, error) {
	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", badShape("summary", fmt.Errorf("empty response"))
	}
	return summary, nil
}

// extractJSONDocument strips a Markdown code fence when the model wraps
// its JSON in one, and returns the bare document.
func extractJSONDocument(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return "", badShape("extraction", fmt.Errorf("empty response"))
	}
	return s, nil
}

// badShape fails closed: a response that does not match the expected shape
// is an engine failure, never silently coerced.
func badShape(kind string, cause error) error {
	return &mberrors.EngineError{
		Code:    mberrors.CodeBadResponse,
		Message: fmt.Sprintf("%s extraction returned malformed response", kind),
		Cause:   cause,
	}
}
