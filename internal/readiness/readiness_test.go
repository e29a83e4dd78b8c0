package readiness

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dockgate/dockgate/internal/core/domain"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, int) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	port := srv.Listener.Addr().(*net.TCPAddr).Port
	return srv, port
}

func TestWaitSucceedsImmediately(t *testing.T) {
	_, port := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	g := NewGate(0, 50*time.Millisecond)
	start := time.Now()
	err := g.Wait(context.Background(), port, "/health", 2*time.Second)
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitSucceedsAfterFlip(t *testing.T) {
	var calls int64
	_, port := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	g := NewGate(0, 100*time.Millisecond)
	start := time.Now()
	err := g.Wait(context.Background(), port, "health", 2*time.Second)
	require.NoError(t, err)

	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 200*time.Millisecond, "returned before the endpoint flipped")
	require.Less(t, elapsed, 1500*time.Millisecond, "took much longer than one or two intervals past the flip")
}

func TestWaitTimesOutOnPersistentFailure(t *testing.T) {
	_, port := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	g := NewGate(0, 100*time.Millisecond)
	start := time.Now()
	err := g.Wait(context.Background(), port, "/health", 500*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrReadinessTimeout)

	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	require.Less(t, elapsed, 1200*time.Millisecond, "overshot the deadline by more than a poll interval")
}

func TestWaitDeadlineCutsThroughHangingProbe(t *testing.T) {
	// Accepts the connection but never answers. The request context lets the
	// handler go when the probe is aborted.
	_, port := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(10 * time.Second):
		case <-r.Context().Done():
		}
	})

	// Per-attempt timeout far beyond the deadline; only the deadline can end
	// the attempt.
	g := NewGate(5*time.Second, 100*time.Millisecond)
	start := time.Now()
	err := g.Wait(context.Background(), port, "/health", 500*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrReadinessTimeout)

	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	require.Less(t, elapsed, 1200*time.Millisecond, "in-flight attempt outlived the deadline")
}

func TestWaitRejectsSuccessAfterDeadline(t *testing.T) {
	// Would eventually answer 200, but only long past the deadline.
	_, port := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(1200 * time.Millisecond):
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	})

	g := NewGate(5*time.Second, 50*time.Millisecond)
	start := time.Now()
	err := g.Wait(context.Background(), port, "/health", 300*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrReadinessTimeout, "an answer arriving after the deadline must not count as ready")
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitTimesOutOnConnectionRefused(t *testing.T) {
	// Reserve then close a port so nothing is listening.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	g := NewGate(0, 50*time.Millisecond)
	err = g.Wait(context.Background(), port, "/health", 300*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrReadinessTimeout)
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	_, port := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	g := NewGate(0, 50*time.Millisecond)
	err := g.Wait(ctx, port, "/health", 10*time.Second)
	require.Error(t, err)
	require.False(t, errors.Is(err, domain.ErrReadinessTimeout))
	require.ErrorIs(t, err, context.Canceled)
}
