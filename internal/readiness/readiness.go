// Package readiness polls a freshly started container until its HTTP health
// endpoint answers, bridging the gap between "running" as a lifecycle state
// and actually accepting requests.
package readiness

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dockgate/dockgate/internal/core/domain"
)

const (
	// DefaultInterval is the pause between probe attempts.
	DefaultInterval = 500 * time.Millisecond
	// DefaultProbeTimeout bounds a single attempt, independently of the
	// overall deadline.
	DefaultProbeTimeout = 2 * time.Second
)

// Gate issues readiness probes against loopback host ports.
type Gate struct {
	client   *http.Client
	interval time.Duration
}

// NewGate returns a Gate using the given per-attempt timeout and poll
// interval. Zero values fall back to the defaults.
func NewGate(probeTimeout, interval time.Duration) *Gate {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Gate{
		client:   &http.Client{Timeout: probeTimeout},
		interval: interval,
	}
}

// Wait blocks until GET http://127.0.0.1:<port>/<path> answers with a 2xx
// status, then returns nil. Connection failures, attempt timeouts and non-2xx
// responses all count as "not yet ready". Once the overall timeout elapses it
// fails with domain.ErrReadinessTimeout; the duration is bounded by wall
// clock, not by an attempt count. The deadline also cuts through in-flight
// attempts: a probe against an endpoint that accepts but never answers is
// aborted when the budget runs out, and an answer that arrives after the
// deadline no longer counts as ready.
func (g *Gate) Wait(ctx context.Context, port int, path string, timeout time.Duration) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/%s", port, strings.TrimPrefix(path, "/"))
	deadline := time.Now().Add(timeout)
	attemptCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		err := g.probe(attemptCtx, url)
		if err == nil && time.Now().Before(deadline) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s after %s", domain.ErrReadinessTimeout, url, timeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("readiness wait canceled: %w", ctx.Err())
		case <-time.After(g.interval):
		}
	}
}

func (g *Gate) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
