package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBatchMetric records the outcome of a batch apply.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - projectID: Project the batch was applied to
//   - upserts: Number of entities created or updated
//   - deletes: Number of entities soft-deleted
//   - conflicts: Number of stale-version operations skipped
//   - duration: Total transaction time
func (c *Client) WriteBatchMetric(projectID string, upserts, deletes, conflicts int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sync_batch",
		map[string]string{
			"project_id": projectID,
		},
		map[string]interface{}{
			"upserts":     upserts,
			"deletes":     deletes,
			"conflicts":   conflicts,
			"duration_ms": float64(duration.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeltaMetric records a delta query.
//
// Parameters:
//   - projectID: Project the delta was computed for
//   - entities: Number of changed entities returned
//   - deleted: Number of tombstone ids returned
//   - duration: Query time
func (c *Client) WriteDeltaMetric(projectID string, entities, deleted int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sync_delta",
		map[string]string{
			"project_id": projectID,
		},
		map[string]interface{}{
			"entities":    entities,
			"deleted":     deleted,
			"duration_ms": float64(duration.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRequestMetric records an HTTP request outcome.
//
// Tags stay low cardinality: route pattern and status class, never
// raw paths or user ids.
func (c *Client) WriteRequestMetric(route string, method string, status int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"http_request",
		map[string]string{
			"route":  route,
			"method": method,
		},
		map[string]interface{}{
			"status":      status,
			"duration_ms": float64(duration.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
