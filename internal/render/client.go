// Package render hands assembled render plans to the external renderer
// service and follows job progress over WebSocket.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/cueflow/internal/pipeline"
	"github.com/normanking/cueflow/internal/plan"
)

// ClientConfig configures the renderer client
type ClientConfig struct {
	ServerURL      string        // e.g., "http://localhost:9090"
	Timeout        time.Duration // HTTP request timeout
	RetryAttempts  int           // submit attempts for transient failures
	RetryBaseDelay time.Duration // doubled after each failed attempt
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:      "http://localhost:9090",
		Timeout:        120 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: 500 * time.Millisecond,
	}
}

// Job identifies a submitted render job.
type Job struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ProgressEvent reports render progress for a job.
type ProgressEvent struct {
	Type     string  `json:"type"`
	JobID    string  `json:"job_id"`
	Frame    int     `json:"frame,omitempty"`
	Total    int     `json:"total,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	OutputID string  `json:"output_id,omitempty"`
	Message  string  `json:"message,omitempty"`
	Err      error   `json:"-"`
}

// Client submits render plans and watches their progress.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new renderer client
func NewClient(cfg *ClientConfig, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultClientConfig().RetryAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultClientConfig().RetryBaseDelay
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "render-client").Logger(),
	}
}

// Submit hands a render plan to the renderer and returns the created job.
// Transport errors and 5xx responses are retried with bounded exponential
// backoff; exhaustion surfaces wrapped in pipeline.ErrBackend. The plan is
// consumed exactly once; resubmitting the same plan id is a renderer-side
// conflict and is not retried.
func (c *Client) Submit(ctx context.Context, p *plan.RenderPlan) (*Job, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan: %w", err)
	}

	c.logger.Debug().Str("plan_id", p.ID).Int("frames", len(p.Frames)).Msg("Submitting render plan")

	var lastErr error
	delay := c.config.RetryBaseDelay
	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		job, retryable, err := c.submitOnce(ctx, body)
		if err == nil {
			c.logger.Info().Str("plan_id", p.ID).Str("job_id", job.ID).Msg("Render plan submitted")
			return job, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt).Int("max", c.config.RetryAttempts).Msg("Render submit attempt failed")

		if attempt < c.config.RetryAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, fmt.Errorf("%w: %v", pipeline.ErrBackend, lastErr)
}

// submitOnce performs one submit attempt, reporting whether a failure is
// worth retrying.
func (c *Client) submitOnce(ctx context.Context, body []byte) (*Job, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ServerURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		retryable := resp.StatusCode >= http.StatusInternalServerError
		return nil, retryable, fmt.Errorf("renderer returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, false, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, false, nil
}

// WatchProgress streams progress events for a job until it completes,
// fails, or ctx is cancelled. The returned channel is closed when the
// stream ends; a terminal read/dial failure is delivered as a final
// event with Err set.
func (c *Client) WatchProgress(ctx context.Context, jobID string) (<-chan ProgressEvent, error) {
	u, err := url.Parse(c.config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = fmt.Sprintf("/jobs/%s/ws", jobID)

	c.logger.Info().Str("url", u.String()).Msg("Connecting to render progress WebSocket")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch := make(chan ProgressEvent, 16)
	go func() {
		defer close(ch)
		defer conn.Close()

		// Unblock ReadJSON when the caller cancels.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		for {
			var ev ProgressEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					select {
					case ch <- ProgressEvent{Type: "error", JobID: jobID, Err: fmt.Errorf("read: %w", err)}:
					default:
					}
				}
				return
			}

			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}

			switch ev.Type {
			case "complete":
				c.logger.Info().Str("job_id", jobID).Str("output_id", ev.OutputID).Msg("Render complete")
				return
			case "failed":
				c.logger.Warn().Str("job_id", jobID).Str("message", ev.Message).Msg("Render failed")
				return
			}
		}
	}()

	return ch, nil
}

// Health checks if the renderer service is available
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ServerURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("renderer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("renderer unhealthy (status %d)", resp.StatusCode)
	}

	return nil
}
