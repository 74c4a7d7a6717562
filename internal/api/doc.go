// Package api implements Bluetray's local HTTP API and WebSocket stream.
//
// This package provides:
//   - REST endpoints to list devices and request connect/disconnect
//   - A refresh endpoint that re-reads the paired list from the OS
//   - Per-device connection history from the SQLite audit trail
//   - A WebSocket device stream: a snapshot frame on connect, then one
//     device.changed frame per Registry change, optionally filtered to a
//     set of addresses
//
// The API is another presenter: requests go through the connection
// coordinator, so the same single-flight rules apply as for tray clicks.
// Connect and disconnect answer 202 Accepted; the outcome arrives on the
// WebSocket stream.
//
// # Security
//
// The server is disabled by default and binds to 127.0.0.1. There is no
// authentication. While bound to loopback, requests from other hosts and
// requests with a non-loopback Host header are refused.
package api
