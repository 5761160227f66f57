package httpserver_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weeklype/tenantrouter/pkg/httpserver"
)

// startServer runs srv in the background and returns its bound address
// together with the channel Run reports on.
func startServer(t *testing.T, ctx context.Context, handler http.Handler, opts ...httpserver.Option) (*httpserver.Server, string, <-chan error) {
	t.Helper()
	started := make(chan string, 1)
	opts = append([]httpserver.Option{
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithShutdownTimeout(200 * time.Millisecond),
		httpserver.WithStartHook(func(_ context.Context, addr string) { started <- addr }),
	}, opts...)
	srv := httpserver.New(opts...)

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, handler) }()

	select {
	case addr := <-started:
		return srv, addr, done
	case err := <-done:
		require.FailNow(t, "server did not start", "run: %v", err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "server did not start")
	}
	return nil, "", nil
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		require.FailNow(t, "run did not finish")
	}
	return nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

// Signal delivery reaches every running server in the process, so this test
// is deliberately not parallel.
func TestSignalShutdown(t *testing.T) {
	_, _, done := startServer(t, context.Background(), okHandler())

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(syscall.SIGTERM))

	assert.NoError(t, waitDone(t, done))
}

func TestRunAndCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, addr, done := startServer(t, ctx, okHandler())

	resp, err := http.Get("http://" + addr)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.True(t, srv.Draining())
	require.NoError(t, srv.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestManualShutdown(t *testing.T) {
	t.Parallel()
	srv, _, done := startServer(t, context.Background(), okHandler())

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, waitDone(t, done))
}

func TestStartError(t *testing.T) {
	t.Parallel()
	srv := httpserver.New(httpserver.WithAddr(":invalid"))
	err := srv.Run(context.Background(), okHandler())
	require.Error(t, err)
	assert.ErrorIs(t, err, httpserver.ErrStart)
}

func TestAlreadyRunning(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	srv, _, done := startServer(t, ctx, okHandler())

	err := srv.Run(context.Background(), okHandler())
	require.Error(t, err)
	assert.ErrorIs(t, err, httpserver.ErrStart)

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestStopHooks(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string
	hook := func(name string, err error) httpserver.Option {
		return httpserver.WithStopHook(name, func(ctx context.Context) error {
			assert.NoError(t, ctx.Err(), "hooks get a live context")
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return err
		})
	}

	t.Run("reverse order", func(t *testing.T) {
		order = nil
		ctx, cancel := context.WithCancel(context.Background())
		_, _, done := startServer(t, ctx, okHandler(),
			hook("registry", nil),
			hook("pools", nil),
			hook("telemetry", nil),
		)
		cancel()
		require.NoError(t, waitDone(t, done))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"telemetry", "pools", "registry"}, order)
	})

	t.Run("failures are reported and do not stop later hooks", func(t *testing.T) {
		order = nil
		boom := errors.New("boom")
		ctx, cancel := context.WithCancel(context.Background())
		_, _, done := startServer(t, ctx, okHandler(),
			hook("registry", nil),
			hook("pools", boom),
		)
		cancel()
		err := waitDone(t, done)
		require.Error(t, err)
		assert.ErrorIs(t, err, httpserver.ErrShutdown)
		assert.ErrorIs(t, err, boom)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"pools", "registry"}, order)
	})
}

func TestShutdownWithoutRun(t *testing.T) {
	t.Parallel()
	var called bool
	srv := httpserver.New(httpserver.WithStopHook("cache", func(context.Context) error {
		called = true
		return nil
	}))
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.True(t, called)
	assert.ErrorIs(t, srv.Ready(context.Background()), httpserver.ErrDraining)
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()
	srv := httpserver.NewFromConfig(httpserver.Config{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     time.Second,
		ShutdownTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, srv.Ready(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestOptionPanics(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		fn   func()
	}{
		{"addr", func() { httpserver.WithAddr("") }},
		{"read", func() { httpserver.WithReadTimeout(-time.Second) }},
		{"read header", func() { httpserver.WithReadHeaderTimeout(0) }},
		{"write", func() { httpserver.WithWriteTimeout(-time.Second) }},
		{"idle", func() { httpserver.WithIdleTimeout(-time.Second) }},
		{"shutdown", func() { httpserver.WithShutdownTimeout(-time.Second) }},
		{"start hook", func() { httpserver.WithStartHook(nil) }},
		{"stop hook", func() { httpserver.WithStopHook("x", nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Panics(t, tt.fn)
		})
	}

	assert.NotPanics(t, func() { httpserver.WithLogger(nil) })
}

func TestLivenessHandler(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	httpserver.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ALIVE", rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestReadinessHandler(t *testing.T) {
	t.Parallel()

	ok := httpserver.Check{Name: "ok", Probe: func(context.Context) error { return nil }}
	down := httpserver.Check{Name: "registry", Probe: func(context.Context) error { return errors.New("connection refused") }}
	slow := httpserver.Check{Name: "slow", Probe: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	tests := []struct {
		name   string
		checks []httpserver.Check
		code   int
		body   string
	}{
		{"no checks", nil, http.StatusOK, "READY"},
		{"all pass", []httpserver.Check{ok, ok}, http.StatusOK, "READY"},
		{"one fails", []httpserver.Check{ok, down}, http.StatusServiceUnavailable, "NOT_READY"},
		{"timeout", []httpserver.Check{slow}, http.StatusServiceUnavailable, "NOT_READY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := httpserver.ReadinessHandler(nil, 20*time.Millisecond, tt.checks...)
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			body, err := io.ReadAll(rec.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.body, string(body))
		})
	}
}
