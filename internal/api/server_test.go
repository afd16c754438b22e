package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	server, err := NewServer(reg, trackerWithObjects(t), zap.NewNop())
	require.NoError(t, err)
	return server, reg
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerMetricsServesRegistry(t *testing.T) {
	t.Parallel()

	server, reg := newTestServer(t)
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "harvester_test_gauge", Help: "test"})
	require.NoError(t, reg.Register(gauge))
	gauge.Set(7)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "harvester_test_gauge 7")
	assert.Contains(t, body, `harvester_api_requests_total{code="200",route="/healthz"} 1`)
}

func TestServerProgressRoutes(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress/objects", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pool":"objects"`)
}

func TestServerStartAndShutdown(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	addr, err := server.Start("127.0.0.1:0")
	require.NoError(t, err)

	_, err = server.Start("127.0.0.1:0")
	require.Error(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")

	require.NoError(t, server.Shutdown(context.Background()))
	require.NoError(t, server.Shutdown(context.Background()))
}

func TestNewServerRequiresRegistry(t *testing.T) {
	t.Parallel()

	_, err := NewServer(nil, nil, nil)
	require.Error(t, err)
}
