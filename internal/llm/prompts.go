package llm

import (
	_ "embed"
	"strings"
)

//go:embed prompts/assessment_v1.txt
var assessmentPromptV1 string

// BuildAssessmentPrompt renders the generation prompt for the given input.
func BuildAssessmentPrompt(input GenerateInput) string {
	prompt := strings.ReplaceAll(assessmentPromptV1, "{{WORK_TYPE}}", input.WorkType)
	var sb strings.Builder
	sb.WriteString(input.Query)
	if input.ProjectName != "" {
		sb.WriteString("\nProject: " + input.ProjectName)
	}
	if input.Location != "" {
		sb.WriteString("\nLocation: " + input.Location)
	}
	if input.ClientName != "" {
		sb.WriteString("\nClient: " + input.ClientName)
	}
	return strings.ReplaceAll(prompt, "{{QUERY}}", sb.String())
}

// BuildFixPrompt asks the model to repair malformed JSON output.
func BuildFixPrompt(raw string) string {
	return "The following output was meant to be a single valid JSON object but is malformed. " +
		"Return the corrected JSON object only, with no commentary.\n\n" + raw
}
