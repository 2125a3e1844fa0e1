package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/httpserver"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/queue/memq"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/store/jobfs"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/config"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/provision"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/usecase"
)

func newTestRouter(t *testing.T, prov *provision.Context) http.Handler {
	t.Helper()
	store := jobfs.New(t.TempDir())
	h := httpserver.NewHandler(
		usecase.NewGenerateService(store, memq.New()),
		usecase.NewStatusService(store),
		store, false, "",
	)
	cfg := config.Config{
		CORSAllowedOrigins: "http://localhost:5173",
		RateLimitPerMin:    30,
	}
	return NewRouter(cfg, h, prov)
}

func TestReadyzFollowsProvisioningLatch(t *testing.T) {
	prov := provision.NewContext()
	router := newTestRouter(t, prov)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	prov.SignalReady()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzAlwaysOK(t *testing.T) {
	router := newTestRouter(t, provision.NewContext())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointExposed(t *testing.T) {
	router := newTestRouter(t, provision.NewContext())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeaderSet(t *testing.T) {
	router := newTestRouter(t, provision.NewContext())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitOrigins("http://a, http://b"))
	assert.Equal(t, []string{"http://localhost:5173"}, splitOrigins(" , "))
	require.NotEmpty(t, splitOrigins(""))
}
