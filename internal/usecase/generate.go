// Package usecase contains application services between the HTTP surface
// and the job subsystem.
package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/observability"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/store/jobfs"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
)

// MaxPromptLen is the admission limit on prompt length.
const MaxPromptLen = 10000

// MaxImageSourceChars caps the encoded image payload accepted at admission.
const MaxImageSourceChars = 12_000_000

// GenerateService admits slide requests: validate, persist, enqueue.
type GenerateService struct {
	Store domain.JobStore
	Queue domain.JobQueue
}

// NewGenerateService constructs a GenerateService.
func NewGenerateService(store domain.JobStore, queue domain.JobQueue) GenerateService {
	return GenerateService{Store: store, Queue: queue}
}

// Admit validates the request, creates the durable job record, and enqueues
// the job id. Returns the new job id.
func (s GenerateService) Admit(ctx context.Context, prompt string, aspect string, imageBase64 string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required.", domain.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLen {
		return "", fmt.Errorf("%w: prompt exceeds %d characters.", domain.ErrInvalidArgument, MaxPromptLen)
	}
	a := domain.Aspect(aspect)
	if !a.Valid() {
		return "", fmt.Errorf("%w: aspect must be \"16:9\" or \"4:3\".", domain.ErrInvalidArgument)
	}
	dataURL := ""
	if imageBase64 != "" {
		if len(imageBase64) > MaxImageSourceChars {
			return "", fmt.Errorf("%w: image payload too large.", domain.ErrInvalidArgument)
		}
		normalized, err := normalizeImageDataURL(imageBase64)
		if err != nil {
			return "", err
		}
		dataURL = normalized
	}
	jobID := uuid.NewString()
	in := domain.JobInput{JobID: jobID, Prompt: prompt, Aspect: a, ImageDataURL: dataURL}
	if err := s.Store.Create(ctx, in); err != nil {
		return "", err
	}
	s.Queue.Enqueue(jobID)
	observability.EnqueueJob()
	return jobID, nil
}

// normalizeImageDataURL accepts either a bare base64 payload or a full
// data: URL and returns a normalized data-URL whose MIME matches the
// decoded magic bytes.
func normalizeImageDataURL(imageBase64 string) (string, error) {
	raw, err := jobfs.DecodeImageDataURL(imageBase64)
	if err != nil {
		return "", err
	}
	mime := "image/png"
	if len(raw) >= 3 && raw[0] == 0xFF && raw[1] == 0xD8 && raw[2] == 0xFF {
		mime = "image/jpeg"
	}
	payload := imageBase64
	if idx := strings.Index(imageBase64, ","); strings.HasPrefix(imageBase64, "data:") && idx >= 0 {
		payload = imageBase64[idx+1:]
	}
	return "data:" + mime + ";base64," + payload, nil
}
