package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/httpserver"
)

func start(t *testing.T, ctx context.Context, srv *httpserver.Server, addr <-chan net.Addr, h http.Handler) (string, <-chan error) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, h) }()
	select {
	case a := <-addr:
		return "http://" + a.String(), done
	case err := <-done:
		require.FailNow(t, "server did not start", err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "server did not start in time")
	}
	return "", done
}

func newServer(opts ...httpserver.Option) (*httpserver.Server, <-chan net.Addr) {
	addr := make(chan net.Addr, 1)
	opts = append(opts, httpserver.WithListenHook(func(a net.Addr) { addr <- a }))
	return httpserver.New(httpserver.Config{Addr: "127.0.0.1:0", ShutdownTimeout: 200 * time.Millisecond}, opts...), addr
}

func TestRun_ShutsDownOnContextCancel(t *testing.T) {
	t.Parallel()

	var stopped atomic.Bool
	srv, addr := newServer(httpserver.WithStopHook(func() { stopped.Store(true) }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base, done := start(t, ctx, srv, addr, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	resp, err := http.Get(base)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "run did not finish")
	}
	assert.True(t, stopped.Load())
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestRun_ManualShutdown(t *testing.T) {
	t.Parallel()

	srv, addr := newServer()
	_, done := start(t, context.Background(), srv, addr, nil)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "run did not finish")
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	t.Run("bad address", func(t *testing.T) {
		t.Parallel()
		srv := httpserver.New(httpserver.Config{Addr: "127.0.0.1:invalid"})
		assert.ErrorIs(t, srv.Run(context.Background(), nil), httpserver.ErrStart)
	})

	t.Run("already running", func(t *testing.T) {
		t.Parallel()
		srv, addr := newServer()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		_, done := start(t, ctx, srv, addr, nil)

		err := srv.Run(context.Background(), nil)
		assert.ErrorIs(t, err, httpserver.ErrRunning)

		cancel()
		<-done
	})
}

func TestReadinessHandler(t *testing.T) {
	t.Parallel()

	ok := httpserver.Check{Name: "postgres", Fn: func(context.Context) error { return nil }}
	failing := httpserver.Check{Name: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name   string
		checks []httpserver.Check
		code   int
		status string
	}{
		{"no checks", nil, http.StatusOK, "ready"},
		{"all ok", []httpserver.Check{ok}, http.StatusOK, "ready"},
		{"one failing", []httpserver.Check{ok, failing}, http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			httpserver.ReadinessHandler(nil, time.Second, tt.checks...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.code, rec.Code)

			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.status, body.Status)
			for _, c := range tt.checks {
				assert.Contains(t, body.Checks, c.Name)
			}
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	httpserver.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
