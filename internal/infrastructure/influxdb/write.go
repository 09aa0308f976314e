package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteHubMetric writes a single hub runtime measurement.
//
// Used for operational telemetry such as heartbeat drift and queue depth.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteHubMetric("timer_drift_seconds", 1.25)
//	client.WriteHubMetric("pending_tasks", 4)
func (c *Client) WriteHubMetric(metric string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"hub_runtime",
		map[string]string{
			"metric": metric,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "hub-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// The state history recorder uses this so a point carries the event's
// fire time rather than the batch write time.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
