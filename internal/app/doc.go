// Package app wires Bluetray's components together and owns their
// lifecycle.
//
// Run opens the Bluetooth gateway, builds the Registry and connection
// coordinator, attaches the optional sinks (SQLite history, InfluxDB,
// MQTT, local API) and then shows the tray on the calling goroutine. The
// background components share one errgroup; cancelling the context or
// choosing Quit from the tray stops all of them before the gateway is
// closed.
package app
