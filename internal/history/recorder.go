package history

import (
	"context"
	"time"

	"github.com/bluetray/bluetray/internal/device"
)

const (
	// Measurement is the InfluxDB measurement for connection events.
	Measurement = "bluetooth_connection"

	recordTimeout = 5 * time.Second
	pruneInterval = time.Hour

	// subscriptionBuffer absorbs the startup burst of one Added change per
	// paired device while SQLite writes are slower than Registry updates.
	subscriptionBuffer = 1024
)

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// PointWriter receives time-series points. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Recorder follows Registry changes and records every connection state
// transition, device addition and removal.
//
// Either sink may be nil. Recording failures are logged and never reach
// the Registry or Coordinator.
type Recorder struct {
	registry  *device.Registry
	repo      Repository
	points    PointWriter
	retention time.Duration
	logger    Logger

	sub *device.Subscription
}

// NewRecorder creates a recorder. A retention of zero disables pruning.
func NewRecorder(registry *device.Registry, repo Repository, points PointWriter, retention time.Duration) *Recorder {
	return &Recorder{
		registry:  registry,
		repo:      repo,
		points:    points,
		retention: retention,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Subscribe starts buffering Registry changes for Run. Call it before the
// first device listing so the initial devices are recorded; Run subscribes
// on its own otherwise. Not safe to call concurrently with Run.
func (r *Recorder) Subscribe() {
	if r.sub == nil {
		r.sub = r.registry.Subscribe(subscriptionBuffer)
	}
}

// Run records changes until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	r.Subscribe()
	sub := r.sub
	defer sub.Close()

	var prune <-chan time.Time
	if r.repo != nil && r.retention > 0 {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		prune = ticker.C
		r.prune(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.C:
			if !ok {
				return
			}
			r.Handle(ctx, change)
		case <-prune:
			r.prune(ctx)
		}
	}
}

// Handle records one change. Updates that leave the connection state
// unchanged (a rename) are skipped.
func (r *Recorder) Handle(ctx context.Context, change device.Change) {
	if !change.StateChanged() {
		return
	}

	entry := Entry{
		Address:   change.Device.Address,
		Name:      change.Device.Name,
		State:     change.Device.State.Kind,
		Reason:    change.Device.State.Reason,
		Change:    change.Kind.String(),
		CreatedAt: change.At,
	}

	if r.repo != nil {
		recCtx, cancel := context.WithTimeout(ctx, recordTimeout)
		err := r.repo.Record(recCtx, entry)
		cancel()
		if err != nil {
			r.logger.Warn("recording connection history", "address", entry.Address, "error", err)
		}
	}

	if r.points != nil {
		r.points.WritePoint(Measurement, pointTags(entry), pointFields(change), entry.CreatedAt)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	n, err := r.repo.Prune(ctx, r.retention)
	if err != nil {
		r.logger.Warn("pruning connection history", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("connection history pruned", "deleted", n, "retention", r.retention)
	}
}

func pointTags(e Entry) map[string]string {
	return map[string]string{
		"address": string(e.Address),
		"name":    e.Name,
		"state":   e.State.String(),
		"change":  e.Change,
	}
}

func pointFields(change device.Change) map[string]any {
	state := change.Device.State
	fields := map[string]any{
		"connected": change.Kind != device.ChangeRemoved && state.Kind == device.StateConnected,
		"failed":    state.Kind == device.StateFailed,
	}
	if state.Reason != "" {
		fields["reason"] = state.Reason
	}
	return fields
}
