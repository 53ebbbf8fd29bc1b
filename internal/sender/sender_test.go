package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/config"
	"github.com/kioskops/collector-agent/internal/models"
)

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Timestamp: time.Now().UTC(),
		Hostname:  "kiosk-01",
		Memory:    &models.MemoryMetrics{TotalBytes: 8 << 30, AvailableBytes: 4 << 30, UsagePercent: 50},
	}
}

func senderConfig(endpoint string) *config.Config {
	cfg := config.Default()
	cfg.Endpoint = endpoint
	return cfg
}

func TestSend_Success(t *testing.T) {
	var received atomic.Int64
	var contentType atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		contentType.Store(r.Header.Get("Content-Type"))

		var snap models.Snapshot
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&snap))
		assert.Equal(t, "kiosk-01", snap.Hostname)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := New(zap.NewNop())
	result := s.Send(context.Background(), senderConfig(srv.URL), testSnapshot())

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusAccepted, result.StatusCode)
	assert.NoError(t, result.Err)
	assert.Equal(t, int64(1), received.Load())
	assert.Equal(t, "application/json", contentType.Load())
}

func TestSend_ClientErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(zap.NewNop())
	result := s.Send(context.Background(), senderConfig(srv.URL), testSnapshot())

	assert.False(t, result.Success)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Error(t, result.Err)
}

func TestSend_OmitsAbsentSections(t *testing.T) {
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		body.Store(raw)
	}))
	defer srv.Close()

	s := New(zap.NewNop())
	result := s.Send(context.Background(), senderConfig(srv.URL), testSnapshot())
	require.True(t, result.Success)

	raw := body.Load().(map[string]json.RawMessage)
	assert.Contains(t, raw, "timestamp")
	assert.Contains(t, raw, "hostname")
	assert.Contains(t, raw, "memory")
	assert.NotContains(t, raw, "cpu", "absent cpu must be omitted, not zero-filled")
	assert.NotContains(t, raw, "gpu", "absent gpu must be omitted, not zero-filled")
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(zap.NewNop())
	// Any response below 500 means the endpoint is reachable.
	ok, message := s.TestConnection(context.Background(), senderConfig(srv.URL))
	assert.True(t, ok)
	assert.Contains(t, message, "404")
}
