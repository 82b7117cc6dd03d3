package provider

import (
	"fmt"
	"strings"

	"github.com/taskpilot/taskpilot/pkg/models"
)

// breakdownPromptHeader opens every breakdown prompt; the task details and
// options are appended per request.
const breakdownPromptHeader = "You are a project management expert. Break down the following task into actionable subtasks.\n\n"

// breakdownPromptFooter pins the output contract.
const breakdownPromptFooter = `
Provide a JSON array of subtasks with the following structure:
[
  {
    "title": "Subtask title",
    "description": "Detailed description",
    "estimated_hours": 2
  }
]

Guidelines:
- Create 3-8 subtasks depending on complexity
- Each subtask should be specific and actionable
- Include estimated hours for each subtask (1-40 hours)
- Order subtasks logically from first to last
- Return ONLY the JSON array, no additional text or markdown formatting
`

// BuildPrompt renders the breakdown prompt for a task and its options.
func BuildPrompt(title, description string, opts models.BreakdownOptions) string {
	complexity := opts.Complexity
	if complexity == "" {
		complexity = models.ComplexityModerate
	}

	var sb strings.Builder
	sb.WriteString(breakdownPromptHeader)
	fmt.Fprintf(&sb, "Task Title: %s\n", title)
	fmt.Fprintf(&sb, "Task Description: %s\n", description)
	fmt.Fprintf(&sb, "Complexity Level: %s\n", complexity)
	if len(opts.FocusAreas) > 0 {
		fmt.Fprintf(&sb, "Focus Areas: %s\n", strings.Join(opts.FocusAreas, ", "))
	}
	sb.WriteString(breakdownPromptFooter)
	return sb.String()
}
