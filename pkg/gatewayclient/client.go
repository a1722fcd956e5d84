package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cuemby/skynet-control/pkg/metrics"
	"github.com/cuemby/skynet-control/pkg/types"
)

const (
	// StatusTimeout bounds a /status probe.
	StatusTimeout = 30 * time.Second

	// ActionTimeout bounds a /action call; long enough to straddle
	// long-running gateway actions.
	ActionTimeout = 130 * time.Second
)

// Client talks to one or more gateways over plain HTTP+JSON, with a
// per-gateway circuit breaker so a string of failures against a dead
// gateway short-circuits instead of piling up timeouts.
type Client struct {
	httpClient *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a gateway client. httpClient may be nil to use a default.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *Client) breakerFor(gatewayID string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[gatewayID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        gatewayID,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	c.breakers[gatewayID] = cb
	return cb
}

// Status probes GET {host}/status.
func (c *Client) Status(ctx context.Context, gatewayID, host string) (*types.GatewayStatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	result, err := c.execute(gatewayID, "status", func() (any, error) {
		var out types.GatewayStatusResponse
		if err := c.doJSON(ctx, http.MethodGet, host+"/status", nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.GatewayStatusResponse), nil
}

// Action calls POST {host}/action with req as the body; the idempotency
// key sent is whatever req.IdempotencyKey holds (the scheduler sets it to
// the task's claim token).
func (c *Client) Action(ctx context.Context, gatewayID, host string, req types.GatewayActionRequest) (*types.GatewayActionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, ActionTimeout)
	defer cancel()

	result, err := c.execute(gatewayID, "action", func() (any, error) {
		var out types.GatewayActionResponse
		if err := c.doJSON(ctx, http.MethodPost, host+"/action", req, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.GatewayActionResponse), nil
}

// Sessions calls the optional GET {host}/sessions endpoint.
func (c *Client) Sessions(ctx context.Context, gatewayID, host string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	result, err := c.execute(gatewayID, "sessions", func() (any, error) {
		var out json.RawMessage
		if err := c.doJSON(ctx, http.MethodGet, host+"/sessions", nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}

// execute runs fn through gatewayID's circuit breaker, recording the
// request duration, outcome, and resulting breaker state.
func (c *Client) execute(gatewayID, endpoint string, fn func() (any, error)) (any, error) {
	cb := c.breakerFor(gatewayID)
	timer := metrics.NewTimer()
	result, err := cb.Execute(fn)
	timer.ObserveDurationVec(metrics.GatewayRequestDuration, endpoint)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.GatewayRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	metrics.CircuitBreakerState.WithLabelValues(gatewayID).Set(float64(cb.State()))
	return result, err
}

func (c *Client) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned HTTP %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

// ClassifyResult decides whether a gateway action response counts as a
// success. status in {"ok","success"} with a nil or zero returncode is a
// success; anything else is a failure, with an error string drawn from the
// response's error field or synthesized from the exit code.
func ClassifyResult(resp *types.GatewayActionResponse) (success bool, errMsg string) {
	switch resp.Status {
	case "ok", "success":
		if resp.Result == nil || resp.Result.ReturnCode == nil || *resp.Result.ReturnCode == 0 {
			return true, ""
		}
		return false, fmt.Sprintf("action exited with code %d", *resp.Result.ReturnCode)
	default:
		if resp.Error != "" {
			return false, resp.Error
		}
		return false, fmt.Sprintf("gateway returned status %q", resp.Status)
	}
}
