// Package sender implements the snapshot delivery client. It POSTs
// JSON-encoded snapshots to the configured endpoint with bounded timeouts
// and exponential backoff on transient failures. A failed delivery is
// recorded and logged; it never stops the collection loop.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/config"
	"github.com/kioskops/collector-agent/internal/models"
)

const (
	// maxRetries is the retry budget per delivery attempt. Beyond that the
	// snapshot goes to the spool and the tick moves on.
	maxRetries = 3

	retryWaitMin = 1 * time.Second
	retryWaitMax = 10 * time.Second

	// requestTimeout bounds each individual HTTP attempt.
	requestTimeout = 10 * time.Second
)

// Sender delivers snapshots to the configured endpoint.
type Sender struct {
	client *http.Client
	logger *zap.Logger
}

// New creates a Sender with retry/backoff semantics.
func New(logger *zap.Logger) *Sender {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = maxRetries
	retryClient.RetryWaitMin = retryWaitMin
	retryClient.RetryWaitMax = retryWaitMax
	retryClient.HTTPClient.Timeout = requestTimeout
	retryClient.Logger = nil // suppress default logging

	return &Sender{
		client: retryClient.StandardClient(),
		logger: logger,
	}
}

// Send POSTs one snapshot as JSON to the endpoint. The endpoint is read
// from the config passed in, so a changed endpoint takes effect on the
// next tick without restarting the loop.
func (s *Sender) Send(ctx context.Context, cfg *config.Config, snap *models.Snapshot) models.DeliveryResult {
	body, err := json.Marshal(snap)
	if err != nil {
		return models.DeliveryResult{Err: fmt.Errorf("marshal snapshot: %w", err)}
	}

	status, err := s.post(ctx, cfg.Endpoint, body)
	if err != nil {
		s.logger.Warn("delivery failed",
			zap.String("endpoint", cfg.Endpoint),
			zap.Int("status", status),
			zap.Error(err))
		return models.DeliveryResult{StatusCode: status, Err: err}
	}

	s.logger.Debug("snapshot delivered",
		zap.String("endpoint", cfg.Endpoint),
		zap.Int("status", status))
	return models.DeliveryResult{Success: true, StatusCode: status}
}

// TestConnection probes the endpoint for the test command. Any response
// below 500 counts as reachable.
func (s *Sender) TestConnection(ctx context.Context, cfg *config.Config) (bool, string) {
	payload, _ := json.Marshal(map[string]bool{"test": true})

	status, err := s.post(ctx, cfg.Endpoint, payload)
	switch {
	case err == nil || (status > 0 && status < 500):
		return true, fmt.Sprintf("Connection OK (status: %d)", status)
	case status >= 500:
		return false, fmt.Sprintf("Server error (status: %d)", status)
	default:
		return false, fmt.Sprintf("Connection failed: %v", err)
	}
}

// post issues one JSON POST and returns the response status code.
// Non-2xx responses are returned as errors alongside the status.
func (s *Sender) post(ctx context.Context, endpoint string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
