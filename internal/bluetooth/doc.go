// Package bluetooth is the OS Bluetooth gateway used by Bluetray.
//
// The Gateway interface is deliberately narrow: list paired devices,
// connect, disconnect, and a stream of out-of-band events. Pairing,
// discovery and link security stay with the operating system.
//
// Implementations:
//   - Windows (windows.go): BluetoothApis.dll via golang.org/x/sys/windows.
//     Connect/Disconnect toggle the device's audio and handsfree services;
//     out-of-band changes are detected by a Poller.
//   - Simulated (simulated.go): in-memory devices with configurable latency
//     and failure injection, for development and tests.
//
// Errors returned by gateways match the sentinels in errors.go with
// errors.Is; Reason converts any of them into the short text stored in a
// Failed state.
package bluetooth
