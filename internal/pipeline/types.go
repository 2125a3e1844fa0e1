// Package pipeline implements the multi-agent slide generation state
// machine: Plan, Research(Web), Research(File), Generate HTML, Validate
// with a bounded fix loop, and PNG rendering.
package pipeline

// OutlineSection is one planned slide outline.
type OutlineSection struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// PlannerOutput is the structured planner result. Transient; never persisted.
type PlannerOutput struct {
	SlideCount     int              `json:"slideCount"`
	Outline        []OutlineSection `json:"outline"`
	SearchQueries  []string         `json:"searchQueries"`
	KeyConstraints []string         `json:"keyConstraints"`
}

// WebCitation is one web research source.
type WebCitation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Quote string `json:"quote"`
}

// WebResearchOutput is the structured web research result.
type WebResearchOutput struct {
	Findings    string        `json:"findings"`
	Citations   []WebCitation `json:"citations"`
	UsedQueries []string      `json:"usedQueries"`
}

// FileCitation is one file research source.
type FileCitation struct {
	FileID   string `json:"fileId"`
	Filename string `json:"filename"`
	Snippet  string `json:"snippet"`
}

// FileResearchOutput is the structured file research result.
type FileResearchOutput struct {
	Snippets  []string       `json:"snippets"`
	Citations []FileCitation `json:"citations"`
}

// ValidatorOutput is the structured validator verdict.
type ValidatorOutput struct {
	OK                  bool     `json:"ok"`
	Issues              []string `json:"issues"`
	FixedPromptAppendix string   `json:"fixedPromptAppendix"`
}
