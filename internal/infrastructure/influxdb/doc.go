// Package influxdb provides InfluxDB connectivity for VoltHome.
//
// It wraps the official influxdb-client-go v2 library with VoltHome-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series metrics for:
//   - Batch apply outcomes (upserts, deletes, conflicts, duration)
//   - Delta query sizes and latency
//   - HTTP request outcomes
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "volthome",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteBatchMetric(projectID, 5, 1, 0, elapsed)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly. The server is
// fully functional with InfluxDB disabled in config.
package influxdb
