package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAspectValid(t *testing.T) {
	assert.True(t, Aspect16x9.Valid())
	assert.True(t, Aspect4x3.Valid())
	assert.False(t, Aspect("16x9").Valid())
	assert.False(t, Aspect("").Valid())
}

func TestAspectCanvas(t *testing.T) {
	w, h, m := Aspect16x9.Canvas()
	assert.Equal(t, [3]int{1920, 1080, 64}, [3]int{w, h, m})
	w, h, m = Aspect4x3.Canvas()
	assert.Equal(t, [3]int{1024, 768, 48}, [3]int{w, h, m})
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobQueued.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.True(t, JobSucceeded.Terminal())
	assert.True(t, JobFailed.Terminal())
}

func TestAddSourcesDeduplicatesCaseInsensitively(t *testing.T) {
	var s JobState
	s.AddURLSources([]string{"https://a.example", "https://b.example", ""})
	s.AddURLSources([]string{"HTTPS://A.EXAMPLE", "https://c.example"})
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, s.Sources.URLs)

	s.AddFileSources([]string{"Notes.md"})
	s.AddFileSources([]string{"notes.MD", "deck.pdf"})
	assert.Equal(t, []string{"Notes.md", "deck.pdf"}, s.Sources.Files)
}
