package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/queue/memq"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/store/jobfs"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/usecase"
)

type testEnv struct {
	store *jobfs.Store
	queue *memq.Queue
	srv   *httptest.Server
}

func newTestEnv(t *testing.T, allowDownload bool, downloadKey string) *testEnv {
	t.Helper()
	store := jobfs.New(t.TempDir())
	queue := memq.New()
	h := NewHandler(
		usecase.NewGenerateService(store, queue),
		usecase.NewStatusService(store),
		store,
		allowDownload,
		downloadKey,
	)
	r := chi.NewRouter()
	r.Post("/api/generate", h.Generate)
	r.Get("/api/jobs/{jobId}", h.JobStatus)
	r.Get("/api/jobs/{jobId}/preview.png", h.PreviewPNG)
	r.Get("/api/jobs/{jobId}/result.html", h.ResultHTML)
	r.Get("/healthz", h.Healthz)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{store: store, queue: queue, srv: srv}
}

func (e *testEnv) postGenerate(t *testing.T, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(e.srv.URL+"/api/generate", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestGenerateAcceptsValidRequest(t *testing.T) {
	env := newTestEnv(t, false, "")
	resp, body := env.postGenerate(t, `{"prompt":"Q3 numbers","aspect":"16:9"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	jobID, _ := body["jobId"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, 1, env.queue.Len())

	st, err := env.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, st.Status)
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	env := newTestEnv(t, false, "")
	resp, body := env.postGenerate(t, `{"prompt":"","aspect":"16:9"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "prompt is required.", body["error"])
	// No job record or queue entry is created for a rejected request.
	assert.Equal(t, 0, env.queue.Len())
}

func TestGenerateRejectsBlankPrompt(t *testing.T) {
	env := newTestEnv(t, false, "")
	resp, body := env.postGenerate(t, `{"prompt":"   \n\t ","aspect":"16:9"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "prompt is required.", body["error"])
}

func TestGenerateRejectsUnknownAspect(t *testing.T) {
	env := newTestEnv(t, false, "")
	resp, body := env.postGenerate(t, `{"prompt":"hello","aspect":"21:9"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "aspect")
}

func TestGenerateRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t, false, "")
	resp, body := env.postGenerate(t, `{"prompt": `)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON body", body["error"])
}

func TestGenerateRejectsBadImage(t *testing.T) {
	env := newTestEnv(t, false, "")
	resp, body := env.postGenerate(t, `{"prompt":"hello","aspect":"16:9","imageBase64":"bm90IGFuIGltYWdl"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "PNG or JPEG")
}

func TestJobStatusUnknownJob(t *testing.T) {
	env := newTestEnv(t, false, "")
	resp, err := http.Get(env.srv.URL + "/api/jobs/nope")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobStatusReflectsLifecycle(t *testing.T) {
	env := newTestEnv(t, false, "")
	_, body := env.postGenerate(t, `{"prompt":"hello","aspect":"4:3"}`)
	jobID := body["jobId"].(string)

	require.NoError(t, env.store.Update(context.Background(), jobID, func(s *domain.JobState) {
		s.Status = domain.JobRunning
		s.Step = domain.StepGenerateHTML
		s.AddURLSources([]string{"https://example.com"})
	}))

	resp, err := http.Get(env.srv.URL + "/api/jobs/" + jobID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st usecase.JobStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, domain.JobRunning, st.Status)
	assert.Equal(t, domain.StepGenerateHTML, st.Step)
	assert.Equal(t, []string{"https://example.com"}, st.Sources.URLs)
	assert.Empty(t, st.PreviewPngURL)
}

func TestJobStatusExposesPreviewURLAfterSuccess(t *testing.T) {
	env := newTestEnv(t, false, "")
	_, body := env.postGenerate(t, `{"prompt":"hello","aspect":"16:9"}`)
	jobID := body["jobId"].(string)

	_, err := env.store.SavePreviewPNG(context.Background(), jobID, []byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, env.store.Update(context.Background(), jobID, func(s *domain.JobState) {
		s.Status = domain.JobSucceeded
	}))

	resp, err := http.Get(env.srv.URL + "/api/jobs/" + jobID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var st usecase.JobStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "/api/jobs/"+jobID+"/preview.png", st.PreviewPngURL)
}

func TestPreviewPNGGatedOnSuccess(t *testing.T) {
	env := newTestEnv(t, false, "")
	_, body := env.postGenerate(t, `{"prompt":"hello","aspect":"16:9"}`)
	jobID := body["jobId"].(string)

	// Artifact exists but the job is not terminal yet.
	_, err := env.store.SavePreviewPNG(context.Background(), jobID, []byte("\x89PNG fake"))
	require.NoError(t, err)
	resp, err := http.Get(env.srv.URL + "/api/jobs/" + jobID + "/preview.png")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, env.store.Update(context.Background(), jobID, func(s *domain.JobState) {
		s.Status = domain.JobSucceeded
	}))
	resp, err = http.Get(env.srv.URL + "/api/jobs/" + jobID + "/preview.png")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func succeedWithHTML(t *testing.T, env *testEnv, jobID string) {
	t.Helper()
	_, err := env.store.SaveHTML(context.Background(), jobID, `<section class="slide">hi</section>`)
	require.NoError(t, err)
	require.NoError(t, env.store.Update(context.Background(), jobID, func(s *domain.JobState) {
		s.Status = domain.JobSucceeded
	}))
}

func TestResultHTMLDisabledByDefault(t *testing.T) {
	env := newTestEnv(t, false, "secret")
	_, body := env.postGenerate(t, `{"prompt":"hello","aspect":"16:9"}`)
	jobID := body["jobId"].(string)
	succeedWithHTML(t, env, jobID)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/jobs/"+jobID+"/result.html", nil)
	req.Header.Set(DownloadKeyHeader, "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResultHTMLRequiresMatchingKey(t *testing.T) {
	env := newTestEnv(t, true, "secret")
	_, body := env.postGenerate(t, `{"prompt":"hello","aspect":"16:9"}`)
	jobID := body["jobId"].(string)
	succeedWithHTML(t, env, jobID)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/jobs/"+jobID+"/result.html", nil)
	req.Header.Set(DownloadKeyHeader, "wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set(DownloadKeyHeader, "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="`+jobID+`.html"`, resp.Header.Get("Content-Disposition"))
}

func TestResultHTMLServedWithoutConfiguredKey(t *testing.T) {
	env := newTestEnv(t, true, "")
	_, body := env.postGenerate(t, `{"prompt":"hello","aspect":"16:9"}`)
	jobID := body["jobId"].(string)
	succeedWithHTML(t, env, jobID)

	// No key configured: the header is not required at all.
	resp, err := http.Get(env.srv.URL + "/api/jobs/" + jobID + "/result.html")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="`+jobID+`.html"`, resp.Header.Get("Content-Disposition"))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false, "")
	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
