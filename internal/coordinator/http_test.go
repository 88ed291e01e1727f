package coordinator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutesHealthzAndStatus(t *testing.T) {
	c := newTestCoordinator(t)
	srv := httptest.NewServer(c.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutesMetricsEndpointReflectsActivity(t *testing.T) {
	c := newTestCoordinator(t)
	srv := httptest.NewServer(c.Routes())
	defer srv.Close()

	c.Metrics.RecordIdleReap()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := make([]byte, 1<<16)
	n, _ := resp.Body.Read(buf)
	assert.True(t, strings.Contains(string(buf[:n]), "broker_idle_reaps_total"))
}

func TestRoutesSessionLifecycle(t *testing.T) {
	c := newTestCoordinator(t)
	srv := httptest.NewServer(c.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sessions", "application/json", strings.NewReader(`{"adapterName":"stub"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
