// Package influxdb records entity and device state history for Homelink Core.
//
// It wraps the official influxdb-client-go v2 library with the connection
// management and batched write patterns used across the infrastructure layer.
//
// # Purpose
//
// This package handles time-series history for:
//   - Raw Home Assistant entity states (each state_changed event)
//   - Mirrored device state after reconciliation
//   - Controller connection transitions (for uptime analysis)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteEntityState(st)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking and batched by the underlying write API; async
// write failures surface through the SetOnError callback.
//
// # Error Handling
//
// Connection and health check errors are returned directly. Write errors
// arrive asynchronously via the error callback.
package influxdb
