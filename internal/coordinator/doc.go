// Package coordinator provides the Connection Coordinator for Bluetray.
//
// The Coordinator turns user intents (connect, disconnect, toggle) and OS
// notifications into Registry state transitions. It is the only component
// that calls the Gateway's Connect and Disconnect, and the only writer of
// connection state into the device Registry.
//
// # Execution Model
//
// Run owns a single command loop. Public methods post a closure to the
// loop and wait for it, so validation and every Registry write for a
// device happen in one place, in order. Gateway calls are the only
// suspension points: they run on worker goroutines bounded by an optional
// semaphore and report their outcome back through the loop.
//
//	RequestConnect ──▶ ┌──────────┐  Connecting   ┌──────────┐
//	Toggle ──────────▶ │   loop   │──────────────▶│ Registry │
//	Gateway events ──▶ │ (Run)    │◀──┐           └──────────┘
//	                   └────┬─────┘   │ outcome
//	                        │ spawn   │
//	                        ▼         │
//	                   ┌──────────────┴┐
//	                   │ worker        │──▶ Gateway.Connect
//	                   └───────────────┘
//
// # State Machine
//
//	Disconnected ──connect──▶ Connecting ──ok──▶ Connected
//	                               └──err──▶ Failed(reason) ──cool-down──▶ Disconnected
//	Connected ──disconnect──▶ Disconnecting ──ok──▶ Disconnected
//	                               └──err──▶ Failed(reason) ──cool-down──▶ Connected
//
// A device has at most one operation in flight. A second request while one
// is pending fails with ErrAlreadyInFlight and never reaches the Gateway.
// Out-of-band notifications for a busy device are queued and applied in
// arrival order once its operation finishes.
//
// # Usage
//
//	coord := coordinator.New(registry, gateway, coordinator.Options{
//	    Cooldown:         5 * time.Second,
//	    OperationTimeout: 30 * time.Second,
//	})
//	coord.SetLogger(log)
//	go coord.Run(ctx)
//
//	if err := coord.Refresh(ctx); err != nil { ... }
//	if err := coord.Toggle(ctx, addr); errors.Is(err, coordinator.ErrAlreadyInFlight) { ... }
package coordinator
