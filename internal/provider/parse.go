package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taskpilot/taskpilot/pkg/models"
)

// ParseResponse turns the provider's raw text into validated subtask
// drafts. The text may be wrapped in markdown code fences; those are
// stripped before decoding. Validation is all-or-nothing: one bad element
// rejects the whole response.
func ParseResponse(text string) ([]models.SubtaskDraft, error) {
	stripped := stripFences(text)

	var drafts []models.SubtaskDraft
	if err := json.Unmarshal([]byte(stripped), &drafts); err != nil {
		return nil, parseError(fmt.Sprintf("decode subtask array: %v", err), err)
	}

	if err := validateDrafts(drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

// stripFences removes markdown code fence markers the provider sometimes
// wraps around the JSON payload.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// validateDrafts checks every element; partial acceptance is forbidden.
func validateDrafts(drafts []models.SubtaskDraft) error {
	for i, d := range drafts {
		if strings.TrimSpace(d.Title) == "" {
			return validationError(fmt.Sprintf("subtask at index %d missing required title", i))
		}
		if d.EstimatedHours != nil && *d.EstimatedHours <= 0 {
			return validationError(fmt.Sprintf("subtask at index %d has non-positive estimated_hours", i))
		}
	}
	return nil
}
