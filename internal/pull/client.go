// Package pull implements the one-shot HTTP client for the fallback pull
// endpoints. It fetches current metrics and agent status with bounded
// exponential-backoff retries so a session can be seeded before the live
// channels deliver their first push, and refreshed on demand.
package pull

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/config"
	"github.com/Guliveer/vitalis/console/internal/models"
)

const (
	// maxRetries is the maximum number of retry attempts per fetch.
	maxRetries = 3

	// baseRetryDelay is the base delay for exponential backoff between retries.
	baseRetryDelay = 2 * time.Second

	// defaultTimeout is the HTTP request timeout for each attempt.
	defaultTimeout = 10 * time.Second

	// maxBodySize bounds a response body.
	maxBodySize = 4 << 20

	metricsPath = "/api/metrics/current"
	agentsPath  = "/api/agents/status"
)

// ErrDisabled is returned when no pull URL is configured.
var ErrDisabled = errors.New("pull endpoint not configured")

// Client fetches current state from the pull endpoints.
type Client struct {
	client    *http.Client
	baseURL   string
	token     string
	logger    *zap.Logger
	baseDelay time.Duration
}

// New creates a client for the configured pull endpoint.
func New(cfg config.FallbackConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		token:     cfg.Token,
		logger:    logger,
		baseDelay: baseRetryDelay,
	}
}

// Enabled reports whether a pull URL is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// FetchMetrics returns the current metric snapshot.
func (c *Client) FetchMetrics(ctx context.Context) (models.MetricSnapshot, error) {
	var snap models.MetricSnapshot
	if err := c.getJSON(ctx, metricsPath, &snap); err != nil {
		return models.MetricSnapshot{}, err
	}
	return snap, nil
}

// FetchAgentStatus returns the current status of every agent. Both a bare
// array and an object with an "agents" array are accepted.
func (c *Client) FetchAgentStatus(ctx context.Context) ([]models.StatusEvent, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, agentsPath, &raw); err != nil {
		return nil, err
	}

	var events []models.StatusEvent
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Agents []models.StatusEvent `json:"agents"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode agent status: %w", err)
		}
		events = wrapped.Agents
	} else if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("decode agent status: %w", err)
	}
	return events, nil
}

// getJSON performs a GET with retries and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseDelay
			c.logger.Warn("Retrying fetch",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.doGet(ctx, path)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			return nil
		}
		lastErr = err

		// Client errors and rate limiting are not retried.
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("Fetch failed",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return fmt.Errorf("fetch %s: retries exhausted: %w", path, lastErr)
}

// doGet performs a single HTTP GET.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, &statusError{statusCode: resp.StatusCode}
}

// statusError reports a non-2xx response.
type statusError struct {
	statusCode int
}

func (e *statusError) Error() string {
	if e.statusCode == http.StatusTooManyRequests {
		return fmt.Sprintf("rate limited (%d)", e.statusCode)
	}
	return fmt.Sprintf("server returned %d", e.statusCode)
}

// retryable is true for server errors; 4xx (including 429) are not retried.
func (e *statusError) retryable() bool {
	return e.statusCode >= 500
}
