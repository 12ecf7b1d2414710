// Package shipvox is the client for the ShipVox shipping backend: rate
// quoting and label purchase over HTTP, each call wrapped in an explicit
// timeout. A mock mode generates quotes locally so the gateway can run
// without a live backend.
package shipvox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shipanion/gateway/config"
)

// Timeout errors carry this phrase so calling agents can match on it and
// distinguish a timed-out upstream from other upstream failures.
const timeoutPhrase = "timeout"

// Client talks to the ShipVox rate and label services.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	mock       *mockQuoter // non-nil in mock mode
}

// NewClient creates a ShipVox client from configuration.
func NewClient(cfg config.ShipVoxConfig, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{},
		timeout:    cfg.Timeout.Duration,
		logger:     logger.With("component", "shipvox"),
	}
	if cfg.Mock {
		c.mock = newMockQuoter()
	}
	return c
}

// GetRates fetches shipping quotes. The call is bounded by the configured
// timeout (or an earlier deadline already on ctx); on timeout the returned
// error contains the stable phrase "timeout".
func (c *Client) GetRates(ctx context.Context, req *RateRequest) (*RateResponse, error) {
	if c.mock != nil {
		return c.mock.getRates(ctx, req)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp RateResponse
	if err := c.post(ctx, "/rates", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateLabel purchases a shipping label. Same timeout semantics as GetRates.
func (c *Client) CreateLabel(ctx context.Context, req *LabelRequest) (*LabelResponse, error) {
	if c.mock != nil {
		return c.mock.createLabel(ctx, req)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp LabelResponse
	if err := c.post(ctx, "/labels", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("upstream call timed out", "url", url, "budget", c.timeout)
			return fmt.Errorf("shipvox request %s after %s: %w", timeoutPhrase, c.timeout, err)
		}
		return fmt.Errorf("shipvox request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		// Include a bounded slice of the body to aid debugging without
		// dumping arbitrary upstream output into error messages.
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return fmt.Errorf("shipvox returned status %d: %s", httpResp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("upstream call completed", "url", url, "elapsed", time.Since(start))
	return nil
}

// IsTimeout reports whether err came from an upstream call exceeding its
// timeout budget.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
