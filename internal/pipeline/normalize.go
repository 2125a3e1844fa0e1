package pipeline

import (
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLen       = 80
	minBullets        = 3
	maxBullets        = 6
	maxSearchQueries  = 8
	maxKeyConstraints = 24
	maxFileKeywords   = 12
)

var defaultBullets = []string{"Overview", "Key points", "Summary"}

// NormalizePlan repairs a planner result so downstream stages always see a
// well-formed plan: a synthesized outline when missing, bullets padded and
// trimmed to range, queries and constraints deduplicated and capped.
func NormalizePlan(p PlannerOutput, rawPrompt string) PlannerOutput {
	p.SlideCount = 1
	if len(p.Outline) == 0 {
		p.Outline = []OutlineSection{synthesizeOutline(rawPrompt)}
	} else {
		p.Outline = p.Outline[:1]
	}
	o := &p.Outline[0]
	o.Title = strings.TrimSpace(o.Title)
	if o.Title == "" {
		o.Title = titleFromPrompt(rawPrompt)
	}
	o.Title = truncateRunes(o.Title, maxTitleLen)
	o.Bullets = dedupeFold(o.Bullets, maxBullets)
	if len(o.Bullets) < minBullets {
		o.Bullets = appendMissing(o.Bullets, defaultBullets)
	}
	p.SearchQueries = dedupeFold(p.SearchQueries, maxSearchQueries)
	p.KeyConstraints = dedupeFold(p.KeyConstraints, maxKeyConstraints)
	return p
}

// FallbackPlan builds a local plan from the prompt alone, used when the
// planner call or its output is unusable.
func FallbackPlan(rawPrompt string) PlannerOutput {
	return PlannerOutput{
		SlideCount: 1,
		Outline:    []OutlineSection{synthesizeOutline(rawPrompt)},
	}
}

func synthesizeOutline(rawPrompt string) OutlineSection {
	return OutlineSection{
		Title:   titleFromPrompt(rawPrompt),
		Bullets: append([]string(nil), defaultBullets...),
	}
}

func titleFromPrompt(rawPrompt string) string {
	line := rawPrompt
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		line = "Slide"
	}
	return truncateRunes(line, maxTitleLen)
}

// truncateRunes cuts s to at most n runes, never splitting a multibyte
// character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// dedupeFold trims entries, drops blanks, removes case-insensitive
// duplicates, and caps the result at limit.
func dedupeFold(in []string, limit int) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func appendMissing(bullets, defaults []string) []string {
	seen := make(map[string]struct{}, len(bullets))
	for _, b := range bullets {
		seen[strings.ToLower(b)] = struct{}{}
	}
	for _, d := range defaults {
		if len(bullets) >= minBullets {
			break
		}
		if _, ok := seen[strings.ToLower(d)]; ok {
			continue
		}
		bullets = append(bullets, d)
	}
	return bullets
}

// fileKeywords derives up to 12 deduplicated keywords from the plan's
// constraints and outline titles for the file search invocation.
func fileKeywords(p PlannerOutput) []string {
	kw := make([]string, 0, len(p.KeyConstraints)+len(p.Outline))
	kw = append(kw, p.KeyConstraints...)
	for _, o := range p.Outline {
		kw = append(kw, o.Title)
	}
	return dedupeFold(kw, maxFileKeywords)
}
