// Package httpserver exposes the job API over HTTP.
package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/usecase"
)

// MaxBodyBytes caps request bodies; sized to admit the largest image payload.
const MaxBodyBytes = 12 << 20

// DownloadKeyHeader authorizes HTML artifact downloads when enabled.
const DownloadKeyHeader = "X-Download-Key"

// Handler serves the job API.
type Handler struct {
	gen    usecase.GenerateService
	status usecase.StatusService
	store  domain.JobStore

	allowHTMLDownload bool
	htmlDownloadKey   string
}

// NewHandler constructs the API handler.
func NewHandler(gen usecase.GenerateService, status usecase.StatusService, store domain.JobStore, allowHTMLDownload bool, htmlDownloadKey string) *Handler {
	return &Handler{
		gen:               gen,
		status:            status,
		store:             store,
		allowHTMLDownload: allowHTMLDownload,
		htmlDownloadKey:   htmlDownloadKey,
	}
}

type generateRequest struct {
	Prompt      string `json:"prompt"`
	Aspect      string `json:"aspect"`
	ImageBase64 string `json:"imageBase64,omitempty"`
}

type generateResponse struct {
	JobID string `json:"jobId"`
}

// Generate handles POST /api/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	jobID, err := h.gen.Admit(r.Context(), req.Prompt, req.Aspect, req.ImageBase64)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{JobID: jobID})
}

// JobStatus handles GET /api/jobs/{jobId}.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	resp, err := h.status.Fetch(r.Context(), jobID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PreviewPNG handles GET /api/jobs/{jobId}/preview.png. The artifact is
// served only after the job has succeeded and the file exists.
func (h *Handler) PreviewPNG(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	st, err := h.store.Get(r.Context(), jobID)
	if err != nil {
		respondError(w, err)
		return
	}
	path, ok := h.store.PreviewPNGPath(jobID)
	if st.Status != domain.JobSucceeded || !ok {
		writeError(w, http.StatusNotFound, "preview not available")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

// ResultHTML handles GET /api/jobs/{jobId}/result.html. Disabled unless
// configured; when enabled, the download key header must match exactly.
func (h *Handler) ResultHTML(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if !h.allowHTMLDownload {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	// The key is optional; when configured it must match exactly.
	if h.htmlDownloadKey != "" {
		key := r.Header.Get(DownloadKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.htmlDownloadKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}
	st, err := h.store.Get(r.Context(), jobID)
	if err != nil {
		respondError(w, err)
		return
	}
	path, ok := h.store.ResultHTMLPath(jobID)
	if st.Status != domain.JobSucceeded || !ok {
		writeError(w, http.StatusNotFound, "result not available")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+jobID+`.html"`)
	http.ServeFile(w, r, path)
}

// Healthz reports process liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
