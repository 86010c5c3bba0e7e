// Package content talks to the external content collaborator. The planner
// decides what to request; this package only carries the request and shields
// journey generation from collaborator failures: a timeout or open circuit
// degrades to placeholder content, never to a failed journey.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pathweave/pathweave/pkg/types"
)

// Binder requests the content payload for one journey step.
type Binder interface {
	Bind(ctx context.Context, req types.ContentRequest) (json.RawMessage, error)
}

// Placeholder is the payload substituted when the collaborator cannot
// deliver in time. Steps carrying it are marked content_pending.
func Placeholder(req types.ContentRequest) json.RawMessage {
	payload, _ := json.Marshal(map[string]any{
		"node_id":     req.NodeID,
		"placeholder": true,
		"reason":      "content_pending",
	})
	return payload
}

// BreakerConfig tunes the circuit breaker around the collaborator.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ReadyToTripRatio float64
}

// HTTPBinder calls the content collaborator over HTTP, wrapped in a circuit
// breaker so a struggling collaborator degrades fast instead of stalling
// every journey.
type HTTPBinder struct {
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewHTTPBinder creates a binder for the given collaborator endpoint.
// requestTimeout bounds each call; on expiry the planner substitutes a
// placeholder.
func NewHTTPBinder(endpoint string, requestTimeout time.Duration, cfg BreakerConfig, logger *slog.Logger) *HTTPBinder {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Second
	}
	if cfg.ReadyToTripRatio <= 0 {
		cfg.ReadyToTripRatio = 0.6
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:        "content-collaborator",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("content collaborator breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &HTTPBinder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
		cb:       gobreaker.NewCircuitBreaker(st),
		logger:   logger,
	}
}

// Bind implements Binder.
func (b *HTTPBinder) Bind(ctx context.Context, req types.ContentRequest) (json.RawMessage, error) {
	payload, err := b.cb.Execute(func() (interface{}, error) {
		return b.post(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return payload.(json.RawMessage), nil
}

func (b *HTTPBinder) post(ctx context.Context, req types.ContentRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build content request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("content collaborator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content collaborator returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read content payload: %w", err)
	}
	return json.RawMessage(payload), nil
}

// StaticBinder serves canned payloads keyed by node id. Used in tests and as
// an offline fallback when no collaborator endpoint is configured.
type StaticBinder struct {
	Payloads map[string]json.RawMessage
}

// Bind implements Binder.
func (b *StaticBinder) Bind(_ context.Context, req types.ContentRequest) (json.RawMessage, error) {
	if payload, ok := b.Payloads[req.NodeID]; ok {
		return payload, nil
	}
	return nil, fmt.Errorf("no content for node %s", req.NodeID)
}
