package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlanSynthesizesMissingOutline(t *testing.T) {
	p := NormalizePlan(PlannerOutput{}, "Build a launch slide\nwith details")
	assert.Equal(t, 1, p.SlideCount)
	require.Len(t, p.Outline, 1)
	assert.Equal(t, "Build a launch slide", p.Outline[0].Title)
	assert.GreaterOrEqual(t, len(p.Outline[0].Bullets), 3)
}

func TestNormalizePlanTrimsToSingleSection(t *testing.T) {
	p := NormalizePlan(PlannerOutput{
		SlideCount: 3,
		Outline: []OutlineSection{
			{Title: "keep", Bullets: []string{"a", "b", "c"}},
			{Title: "drop", Bullets: []string{"x", "y", "z"}},
		},
	}, "prompt")
	assert.Equal(t, 1, p.SlideCount)
	require.Len(t, p.Outline, 1)
	assert.Equal(t, "keep", p.Outline[0].Title)
}

func TestNormalizePlanPadsAndCapsBullets(t *testing.T) {
	p := NormalizePlan(PlannerOutput{
		Outline: []OutlineSection{{Title: "t", Bullets: []string{"only one"}}},
	}, "prompt")
	assert.GreaterOrEqual(t, len(p.Outline[0].Bullets), 3)

	many := []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8"}
	p = NormalizePlan(PlannerOutput{
		Outline: []OutlineSection{{Title: "t", Bullets: many}},
	}, "prompt")
	assert.LessOrEqual(t, len(p.Outline[0].Bullets), 6)
}

func TestNormalizePlanDedupesQueries(t *testing.T) {
	p := NormalizePlan(PlannerOutput{
		Outline:       []OutlineSection{{Title: "t", Bullets: []string{"a", "b", "c"}}},
		SearchQueries: []string{"go generics", "Go Generics", " ", "errors", "go generics"},
	}, "prompt")
	assert.Equal(t, []string{"go generics", "errors"}, p.SearchQueries)
}

func TestNormalizePlanCapsTitleLength(t *testing.T) {
	long := strings.Repeat("x", 200)
	p := NormalizePlan(PlannerOutput{
		Outline: []OutlineSection{{Title: long, Bullets: []string{"a", "b", "c"}}},
	}, "prompt")
	assert.Len(t, p.Outline[0].Title, 80)
}

func TestNormalizePlanTruncatesTitleOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("日本語タイトル", 20)
	p := NormalizePlan(PlannerOutput{
		Outline: []OutlineSection{{Title: long, Bullets: []string{"a", "b", "c"}}},
	}, "prompt")
	title := p.Outline[0].Title
	assert.Equal(t, 80, utf8.RuneCountInString(title))
	assert.True(t, utf8.ValidString(title))
}

func TestTitleFromPromptTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 100)
	p := FallbackPlan(long)
	title := p.Outline[0].Title
	assert.Equal(t, 80, utf8.RuneCountInString(title))
	assert.True(t, utf8.ValidString(title))
}

func TestFallbackPlanFromBlankPrompt(t *testing.T) {
	p := FallbackPlan("   \n rest")
	require.Len(t, p.Outline, 1)
	assert.Equal(t, "Slide", p.Outline[0].Title)
}

func TestFileKeywordsCombinesConstraintsAndTitles(t *testing.T) {
	p := PlannerOutput{
		KeyConstraints: []string{"dark theme", "Dark Theme", "single slide"},
		Outline:        []OutlineSection{{Title: "Launch plan"}},
	}
	kw := fileKeywords(p)
	assert.Equal(t, []string{"dark theme", "single slide", "Launch plan"}, kw)
}
