// Package influxdb provides optional InfluxDB export of Bluetray's
// connection events.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health checks. Bluetray
// works without it; the history recorder writes here only when
// influxdb.enabled is set.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // export not configured
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write failed", "error", err) })
//	client.WritePoint("bluetooth_connection",
//	    map[string]string{"address": "AA:BB:CC:DD:EE:FF"},
//	    map[string]any{"connected": true}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package influxdb
