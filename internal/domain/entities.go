package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrConflict        = errors.New("conflict")
	ErrUpstreamStatus  = errors.New("upstream status")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrPipelineFailed  = errors.New("pipeline failed")
	ErrInternal        = errors.New("internal error")
)

// Aspect enumerates supported slide proportions.
type Aspect string

const (
	Aspect16x9 Aspect = "16:9"
	Aspect4x3  Aspect = "4:3"
)

// Valid reports whether the aspect is one of the supported ratios.
func (a Aspect) Valid() bool { return a == Aspect16x9 || a == Aspect4x3 }

// Canvas returns the fixed pixel dimensions and safe margin for the aspect.
func (a Aspect) Canvas() (width, height, margin int) {
	if a == Aspect4x3 {
		return 1024, 768, 48
	}
	return 1920, 1080, 64
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool { return s == JobSucceeded || s == JobFailed }

// Pipeline step labels as observed through the status API.
const (
	StepPlan         = "Plan"
	StepResearchWeb  = "Research(Web)"
	StepResearchFile = "Research(File)"
	StepGenerateHTML = "Generate HTML"
	StepValidate     = "Validate"
)

// JobInput is the immutable request captured at admission.
type JobInput struct {
	JobID        string `json:"jobId"`
	Prompt       string `json:"prompt"`
	Aspect       Aspect `json:"aspect"`
	ImageDataURL string `json:"imageDataUrl,omitempty"`
}

// Sources holds citations surfaced by the research stages. Both sets are
// append-only and deduplicated case-insensitively.
type Sources struct {
	URLs  []string `json:"urls"`
	Files []string `json:"files"`
}

// JobState is the observable lifecycle record persisted per job.
type JobState struct {
	Status         JobStatus `json:"status"`
	Step           string    `json:"step,omitempty"`
	Error          string    `json:"error,omitempty"`
	Sources        Sources   `json:"sources"`
	ResultHTMLPath string    `json:"resultHtmlPath,omitempty"`
	PreviewPNGPath string    `json:"previewPngPath,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AddURLSources appends URLs not already present (case-insensitive).
func (s *JobState) AddURLSources(urls []string) { s.Sources.URLs = mergeFold(s.Sources.URLs, urls) }

// AddFileSources appends filenames not already present (case-insensitive).
func (s *JobState) AddFileSources(files []string) {
	s.Sources.Files = mergeFold(s.Sources.Files, files)
}

func mergeFold(dst, add []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[fold(v)] = struct{}{}
	}
	for _, v := range add {
		if v == "" {
			continue
		}
		k := fold(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

func fold(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// Ports

// JobStore persists per-job records and artifacts.
type JobStore interface {
	Create(ctx context.Context, in JobInput) error
	Get(ctx context.Context, jobID string) (JobState, error)
	GetInput(ctx context.Context, jobID string) (JobInput, error)
	// Update applies mutate under the per-job lock and bumps UpdatedAt.
	Update(ctx context.Context, jobID string, mutate func(*JobState)) error
	SaveHTML(ctx context.Context, jobID, html string) (string, error)
	SavePreviewPNG(ctx context.Context, jobID string, png []byte) (string, error)
	// PreviewPNGPath returns the artifact path when the file exists on disk.
	PreviewPNGPath(jobID string) (string, bool)
	ResultHTMLPath(jobID string) (string, bool)
}

// JobQueue is an in-process FIFO of job ids. Enqueue never blocks; Dequeue
// blocks until an id is available or ctx is done.
type JobQueue interface {
	Enqueue(jobID string)
	Dequeue(ctx context.Context) (string, error)
}

// StateStore is the auxiliary key-value store (vector store id and friends).
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Renderer turns a finished HTML slide into PNG bytes.
type Renderer interface {
	Render(ctx context.Context, html string, aspect Aspect) ([]byte, error)
}
