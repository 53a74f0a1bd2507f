package status_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradecore/internal/adapters/status"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler_Status(t *testing.T) {
	h := status.Handler(nil, func() any {
		return map[string]any{"state": "RUNNING", "trades": 3}
	})

	rec := get(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RUNNING", body["state"])
	assert.EqualValues(t, 3, body["trades"])
}

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "tradecore_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(2)

	rec := get(t, status.Handler(reg, func() any { return nil }), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tradecore_test_total 2")
}

func TestHandler_NoGathererNoMetrics(t *testing.T) {
	rec := get(t, status.Handler(nil, func() any { return nil }), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, status.Handler(nil, func() any { return nil }), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RunShutsDownOnCancel(t *testing.T) {
	srv := status.NewServer("127.0.0.1:0", nil, func() any { return "ok" })
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_RunBadAddr(t *testing.T) {
	srv := status.NewServer("256.0.0.1:bad", nil, func() any { return nil })
	err := srv.Run(context.Background())
	assert.Error(t, err)
}
