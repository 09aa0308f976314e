package influxdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hearthhq/hearth-core/internal/infrastructure/config"
)

// Connection roundtrip tests require a live InfluxDB and live in
// integration suites; these cover the paths that fail fast.

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Token:   "token",
		Org:     "hearth",
		Bucket:  "history",
	}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWritesWhenDisconnected(t *testing.T) {
	// A zero client reports disconnected; writes must be silent no-ops.
	c := &Client{}

	c.WriteHubMetric("timer_drift_seconds", 1.0)
	c.WritePoint("entity_state", map[string]string{"entity_id": "light.x"}, map[string]interface{}{"value": 1.0})
	c.WritePointWithTime("entity_state", nil, map[string]interface{}{"value": 1.0}, time.Now())

	if c.IsConnected() {
		t.Error("IsConnected() = true for zero client")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}

	err := c.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseAndFlushNil(t *testing.T) {
	c := &Client{}

	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
	c.Flush()
}
