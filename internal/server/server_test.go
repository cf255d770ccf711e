package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/lapse/internal/metrics"
	"github.com/tbckr/lapse/internal/server"
	"github.com/tbckr/lapse/internal/testutil"
)

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SetDaysLeft("example.com", "ssl", time.Now().Add(72*time.Hour), time.Now())

	router := server.NewRouter(reg, &server.Status{}, testutil.NopLogger())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lapse_expiry_days_left{check="ssl",domain="example.com"}`)
}

func TestHealthz(t *testing.T) {
	status := &server.Status{}
	router := server.NewRouter(prometheus.NewRegistry(), status, testutil.NopLogger())

	get := func() map[string]any {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	assert.Equal(t, "starting", get()["status"])

	status.Record(time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC), 12, 1)
	body := get()
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2026-10-18T08:00:00Z", body["last_scan"])
	assert.InDelta(t, 12, body["domains"], 0)
	assert.InDelta(t, 1, body["errors"], 0)
}

func TestUnknownRoute(t *testing.T) {
	router := server.NewRouter(prometheus.NewRegistry(), &server.Status{}, testutil.NopLogger())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_StopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, addr, http.NotFoundHandler(), testutil.NopLogger())
	}()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
