// Package device provides the Device Registry for Bluetray.
//
// The Device Registry is the last-known catalogue of paired Bluetooth
// devices and their connection state. It is pure data plus invariants: it
// performs no I/O, is never persisted, and is rehydrated from the OS on
// every launch.
//
// # Architecture
//
//	┌──────────────────────┐   SetState / Upsert / Remove   ┌──────────────────┐
//	│ Connection           │───────────────────────────────▶│     Registry     │
//	│ Coordinator          │        (single writer)         │  (registry.go)   │
//	└──────────────────────┘                                │                  │
//	                                                        │ • atomic snapshot│
//	┌──────────────────────┐   Get / List (lock-free)       │ • sorted List    │
//	│ Tray, API, MQTT      │◀───────────────────────────────│ • Change fan-out │
//	│ presenters           │◀── Subscription.C (Change) ────│                  │
//	└──────────────────────┘                                └──────────────────┘
//
// # Key Types
//
//   - Address: canonical "AA:BB:CC:DD:EE:FF" device key
//   - ConnState: Disconnected, Connecting, Connected, Disconnecting or
//     Failed(reason) with the state to revert to after cool-down
//   - Device: address, display name, state, last-seen timestamp
//   - Change: one effective mutation, delivered to every Subscription
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//	defer registry.Close()
//
//	sub := registry.Subscribe(16)
//	defer sub.Close()
//
//	registry.Upsert(device.Device{Address: addr, Name: "Headphones"})
//	for change := range sub.C {
//	    redraw(registry.List())
//	}
//
// # Thread Safety
//
// All methods are safe for concurrent use. Reads never block on writers.
// Only the Connection Coordinator should write; presenters read and
// subscribe.
package device
