package pipeline

import (
	"fmt"
	"strings"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/foundry"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
)

// ComposeEffectivePrompt appends the aspect constraints to the raw prompt.
func ComposeEffectivePrompt(rawPrompt string, aspect domain.Aspect) string {
	return rawPrompt + "\n\n---\n" + aspectAppendix(aspect)
}

func aspectAppendix(aspect domain.Aspect) string {
	w, h, margin := aspect.Canvas()
	return fmt.Sprintf(
		"Slide canvas: %dx%d pixels (aspect %s). Keep every element inside a %dpx safe margin on all sides. Produce exactly one slide that fills the canvas.",
		w, h, aspect, margin)
}

// BuildUserInput builds the user message: a text part plus, when an image
// data-URL is present, an image part carrying it unchanged.
func BuildUserInput(text, imageDataURL string) foundry.Message {
	return foundry.UserMessage(text, imageDataURL)
}

func buildWebResearchPrompt(queries []string) string {
	var b strings.Builder
	b.WriteString("Research the following queries with the web search tool and report findings with citations:\n")
	for _, q := range queries {
		b.WriteString("- ")
		b.WriteString(q)
		b.WriteString("\n")
	}
	return b.String()
}

func buildFileResearchPrompt(effectivePrompt string, keywords []string) string {
	var b strings.Builder
	b.WriteString(effectivePrompt)
	if len(keywords) > 0 {
		b.WriteString("\n\nKeywords: ")
		b.WriteString(strings.Join(keywords, ", "))
	}
	return b.String()
}

func buildGeneratorPrompt(effectivePrompt string, plan PlannerOutput, web WebResearchOutput, file FileResearchOutput, aspect domain.Aspect, fixAppendix string) string {
	var b strings.Builder
	b.WriteString(effectivePrompt)
	if len(plan.Outline) > 0 {
		o := plan.Outline[0]
		b.WriteString("\n\nOutline:\nTitle: ")
		b.WriteString(o.Title)
		for _, bu := range o.Bullets {
			b.WriteString("\n- ")
			b.WriteString(bu)
		}
	}
	if len(plan.KeyConstraints) > 0 {
		b.WriteString("\n\nConstraints:\n- ")
		b.WriteString(strings.Join(plan.KeyConstraints, "\n- "))
	}
	if web.Findings != "" {
		b.WriteString("\n\nWeb research findings:\n")
		b.WriteString(web.Findings)
	}
	for _, c := range web.Citations {
		b.WriteString(fmt.Sprintf("\nSource: %s (%s): %q", c.Title, c.URL, c.Quote))
	}
	if len(file.Snippets) > 0 {
		b.WriteString("\n\nDocument snippets:\n- ")
		b.WriteString(strings.Join(file.Snippets, "\n- "))
	}
	b.WriteString("\n\n")
	b.WriteString(templateConstraints(aspect))
	if fixAppendix != "" {
		b.WriteString("\n\n")
		b.WriteString(fixAppendix)
	}
	return b.String()
}

func templateConstraints(aspect domain.Aspect) string {
	w, h, margin := aspect.Canvas()
	return fmt.Sprintf(
		"Emit one complete HTML document with exactly one <section class=\"slide\"> sized %dx%d pixels, all CSS inlined, no <script> tags, no external resources, and all content within the %dpx safe margin.",
		w, h, margin)
}

func buildValidatorPrompt(html string, aspect domain.Aspect) string {
	w, h, margin := aspect.Canvas()
	return fmt.Sprintf(
		"Validate this slide HTML against a %dx%d pixel canvas with a %dpx safe margin. Require a single self-contained slide, no <script> tags, and no external resources.\n\n%s",
		w, h, margin, html)
}
