package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/key-custody-backend/api"
)

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(r chi.Router) {
	r.Get("/api/test/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})
}

func newTestServer(t *testing.T, enablePprof bool, handlers ...RouteRegistrar) *httptest.Server {
	t.Helper()

	cfg := &api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		EnablePprof:              enablePprof,
		Log:                      slog.New(slog.NewTextHandler(io.Discard, nil)),
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}

	srv, err := New(cfg, handlers...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_HealthEndpoints(t *testing.T) {
	ts := newTestServer(t, false)

	code, body := getBody(t, ts.URL+"/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"alive"}`, body)

	code, body = getBody(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ready"}`, body)
}

func TestServer_DrainAndUndrain(t *testing.T) {
	ts := newTestServer(t, false)

	code, body := getBody(t, ts.URL+"/drain")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"draining"}`, body)

	code, _ = getBody(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = getBody(t, ts.URL+"/drain")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"already draining"}`, body)

	code, body = getBody(t, ts.URL+"/undrain")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ready"}`, body)

	code, _ = getBody(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_MountsHandlerRoutes(t *testing.T) {
	ts := newTestServer(t, false, pingRegistrar{})

	code, body := getBody(t, ts.URL+"/api/test/ping")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", body)
}

func TestServer_PprofDisabledByDefault(t *testing.T) {
	ts := newTestServer(t, false)

	code, _ := getBody(t, ts.URL+"/debug/pprof/")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_PprofWhenEnabled(t *testing.T) {
	ts := newTestServer(t, true, pingRegistrar{})

	code, _ := getBody(t, ts.URL+"/debug/pprof/")
	assert.Equal(t, http.StatusOK, code)
}
