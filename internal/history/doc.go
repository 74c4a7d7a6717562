// Package history records Bluetray's device connection history.
//
// A Recorder subscribes to the device Registry and writes one entry per
// connection state transition to the local SQLite connection_history
// table and, when configured, one point to InfluxDB. History is an audit
// trail for the API and CLI; it is never read back into the Registry.
package history
