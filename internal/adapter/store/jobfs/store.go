// Package jobfs implements the durable job store on the local filesystem.
//
// Layout: {root}/{jobId}/ containing request.json, state.json, an optional
// input image, result.html, and preview.png. State mutations are serialized
// per job through a lazily-populated mutex registry; the store is otherwise
// lock-free across jobs.
package jobfs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
)

const (
	requestFile = "request.json"
	stateFile   = "state.json"
	resultFile  = "result.html"
	previewFile = "preview.png"
)

// Store persists job records under a root directory.
type Store struct {
	root  string
	locks sync.Map // jobID -> *sync.Mutex
}

// New constructs a store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

func (s *Store) jobDir(jobID string) string { return filepath.Join(s.root, jobID) }

func (s *Store) lock(jobID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(jobID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create writes the immutable request, decodes and persists the input image
// when present, and writes the initial queued state.
func (s *Store) Create(_ context.Context, in domain.JobInput) error {
	dir := s.jobDir(in.JobID)
	if _, err := os.Stat(filepath.Join(dir, requestFile)); err == nil {
		return fmt.Errorf("%w: job %s already exists", domain.ErrConflict, in.JobID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("op=jobfs.Create: %w", err)
	}
	if in.ImageDataURL != "" {
		raw, err := DecodeImageDataURL(in.ImageDataURL)
		if err != nil {
			return err
		}
		ext := ".png"
		if mimetype.Detect(raw).Is("image/jpeg") {
			ext = ".jpg"
		}
		if err := writeFileAtomic(filepath.Join(dir, "input"+ext), raw); err != nil {
			return fmt.Errorf("op=jobfs.Create: %w", err)
		}
	}
	// The stored request omits the image payload; the bytes live next to it.
	req := in
	req.ImageDataURL = ""
	rb, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("op=jobfs.Create: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, requestFile), rb); err != nil {
		return fmt.Errorf("op=jobfs.Create: %w", err)
	}
	now := time.Now().UTC()
	st := domain.JobState{
		Status:    domain.JobQueued,
		Sources:   domain.Sources{URLs: []string{}, Files: []string{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.writeState(in.JobID, st)
}

// Get returns the current job state or domain.ErrNotFound.
func (s *Store) Get(_ context.Context, jobID string) (domain.JobState, error) {
	return s.readState(jobID)
}

// GetInput reconstructs the immutable request, including a data-URL for the
// stored image bytes when present. The MIME is sniffed from magic bytes.
func (s *Store) GetInput(_ context.Context, jobID string) (domain.JobInput, error) {
	dir := s.jobDir(jobID)
	b, err := os.ReadFile(filepath.Join(dir, requestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.JobInput{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
		}
		return domain.JobInput{}, fmt.Errorf("op=jobfs.GetInput: %w", err)
	}
	var in domain.JobInput
	if err := json.Unmarshal(b, &in); err != nil {
		return domain.JobInput{}, fmt.Errorf("op=jobfs.GetInput: %w", err)
	}
	for _, name := range []string{"input.png", "input.jpg"} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		mime := "image/png"
		if sniffJPEG(raw) {
			mime = "image/jpeg"
		} else if !sniffPNG(raw) && mimetype.Detect(raw).Is("image/jpeg") {
			mime = "image/jpeg"
		}
		in.ImageDataURL = "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
		break
	}
	return in, nil
}

// Update applies mutate under the per-job lock, bumps UpdatedAt, and rewrites
// state.json.
func (s *Store) Update(_ context.Context, jobID string, mutate func(*domain.JobState)) error {
	mu := s.lock(jobID)
	mu.Lock()
	defer mu.Unlock()
	st, err := s.readState(jobID)
	if err != nil {
		return err
	}
	mutate(&st)
	st.UpdatedAt = time.Now().UTC()
	return s.writeState(jobID, st)
}

// SaveHTML persists the slide HTML, then records its path in the state.
// The artifact write happens before the state update so a reader observing
// the path always finds the file.
func (s *Store) SaveHTML(ctx context.Context, jobID, html string) (string, error) {
	p := filepath.Join(s.jobDir(jobID), resultFile)
	if err := writeFileAtomic(p, []byte(html)); err != nil {
		return "", fmt.Errorf("op=jobfs.SaveHTML: %w", err)
	}
	if err := s.Update(ctx, jobID, func(st *domain.JobState) { st.ResultHTMLPath = p }); err != nil {
		return "", err
	}
	return p, nil
}

// SavePreviewPNG persists the rendered preview, then records its path.
func (s *Store) SavePreviewPNG(ctx context.Context, jobID string, png []byte) (string, error) {
	p := filepath.Join(s.jobDir(jobID), previewFile)
	if err := writeFileAtomic(p, png); err != nil {
		return "", fmt.Errorf("op=jobfs.SavePreviewPNG: %w", err)
	}
	if err := s.Update(ctx, jobID, func(st *domain.JobState) { st.PreviewPNGPath = p }); err != nil {
		return "", err
	}
	return p, nil
}

// PreviewPNGPath returns the preview artifact path when the file exists.
func (s *Store) PreviewPNGPath(jobID string) (string, bool) {
	p := filepath.Join(s.jobDir(jobID), previewFile)
	if fi, err := os.Stat(p); err == nil && fi.Size() > 0 {
		return p, true
	}
	return "", false
}

// ResultHTMLPath returns the HTML artifact path when the file exists.
func (s *Store) ResultHTMLPath(jobID string) (string, bool) {
	p := filepath.Join(s.jobDir(jobID), resultFile)
	if fi, err := os.Stat(p); err == nil && fi.Size() > 0 {
		return p, true
	}
	return "", false
}

func (s *Store) readState(jobID string) (domain.JobState, error) {
	b, err := os.ReadFile(filepath.Join(s.jobDir(jobID), stateFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.JobState{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
		}
		return domain.JobState{}, fmt.Errorf("op=jobfs.readState: %w", err)
	}
	var st domain.JobState
	if err := json.Unmarshal(b, &st); err != nil {
		return domain.JobState{}, fmt.Errorf("op=jobfs.readState: %w", err)
	}
	return st, nil
}

func (s *Store) writeState(jobID string, st domain.JobState) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("op=jobfs.writeState: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.jobDir(jobID), stateFile), b); err != nil {
		return fmt.Errorf("op=jobfs.writeState: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func sniffPNG(b []byte) bool {
	sig := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	return len(b) >= len(sig) && string(b[:len(sig)]) == string(sig)
}

func sniffJPEG(b []byte) bool {
	return len(b) >= 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF
}

// MaxImageBytes is the decoded input image size limit (4 MiB).
const MaxImageBytes = 4 << 20

// DecodeImageDataURL normalizes and decodes a data-URL of a PNG or JPEG
// image, enforcing the decoded size limit and magic-byte check.
func DecodeImageDataURL(dataURL string) ([]byte, error) {
	payload := dataURL
	if strings.HasPrefix(dataURL, "data:") {
		idx := strings.Index(dataURL, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed data url", domain.ErrInvalidArgument)
		}
		meta := dataURL[len("data:"):idx]
		if !strings.Contains(meta, "base64") {
			return nil, fmt.Errorf("%w: data url must be base64", domain.ErrInvalidArgument)
		}
		payload = dataURL[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 image", domain.ErrInvalidArgument)
	}
	if len(raw) > MaxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidArgument, MaxImageBytes)
	}
	if !sniffPNG(raw) && !sniffJPEG(raw) {
		return nil, fmt.Errorf("%w: image must be PNG or JPEG", domain.ErrInvalidArgument)
	}
	return raw, nil
}
