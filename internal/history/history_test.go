package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bluetray/bluetray/internal/device"
	"github.com/bluetray/bluetray/internal/infrastructure/database"
	"github.com/bluetray/bluetray/migrations"
)

var (
	addrA = device.MustParseAddress("AA:BB:CC:DD:EE:FF")
	addrB = device.MustParseAddress("11:22:33:44:55:66")
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_RecordAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	records := []Entry{
		{Address: addrA, Name: "Headphones", State: device.StateConnecting, Change: "updated", CreatedAt: base},
		{Address: addrA, Name: "Headphones", State: device.StateFailed, Reason: "timeout", Change: "updated", CreatedAt: base.Add(time.Second)},
		{Address: addrB, Name: "Keyboard", State: device.StateConnected, Change: "added", CreatedAt: base.Add(2 * time.Second)},
		{Address: addrA, Name: "Headphones", State: device.StateDisconnected, Change: "updated", CreatedAt: base.Add(5 * time.Second)},
	}
	for _, e := range records {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := repo.GetHistory(ctx, addrA, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}

	want := []device.StateKind{device.StateDisconnected, device.StateFailed, device.StateConnecting}
	for i, e := range got {
		if e.State != want[i] {
			t.Errorf("entry %d state = %v, want %v (newest first)", i, e.State, want[i])
		}
		if e.Address != addrA {
			t.Errorf("entry %d address = %s", i, e.Address)
		}
	}
	if got[1].Reason != "timeout" {
		t.Errorf("failed entry reason = %q, want timeout", got[1].Reason)
	}
	if !got[0].CreatedAt.Equal(base.Add(5 * time.Second)) {
		t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt, base.Add(5*time.Second))
	}

	limited, err := repo.GetHistory(ctx, addrA, 1)
	if err != nil {
		t.Fatalf("GetHistory(limit 1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("GetHistory(limit 1) returned %d entries", len(limited))
	}
}

func TestSQLiteRepository_AddressRequired(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Record(ctx, Entry{State: device.StateConnected}); !errors.Is(err, ErrAddressRequired) {
		t.Errorf("Record() error = %v, want ErrAddressRequired", err)
	}
	if _, err := repo.GetHistory(ctx, "", 10); !errors.Is(err, ErrAddressRequired) {
		t.Errorf("GetHistory() error = %v, want ErrAddressRequired", err)
	}
}

func TestSQLiteRepository_Prune(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	for _, age := range []time.Duration{40 * 24 * time.Hour, 31 * 24 * time.Hour, time.Hour} {
		e := Entry{Address: addrA, State: device.StateConnected, Change: "updated", CreatedAt: now.Add(-age)}
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() deleted %d, want 2", n)
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) should fail")
	}
}

type fakePoints struct {
	mu     sync.Mutex
	points []map[string]any
	tags   []map[string]string
}

func (f *fakePoints) WritePoint(measurement string, tags map[string]string, fields map[string]any, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if measurement != Measurement {
		return
	}
	f.points = append(f.points, fields)
	f.tags = append(f.tags, tags)
}

func TestRecorder_Handle(t *testing.T) {
	repo := newTestRepo(t)
	points := &fakePoints{}
	rec := NewRecorder(device.NewRegistry(), repo, points, 0)
	ctx := context.Background()

	dev := device.Device{Address: addrA, Name: "Headphones", State: device.Connected()}
	at := time.Now()

	rec.Handle(ctx, device.Change{Kind: device.ChangeUpdated, Device: dev, Previous: device.Device{Address: addrA, Name: "Headphones", State: device.Connecting()}, At: at})

	// A rename does not change state and is not recorded.
	renamed := dev
	renamed.Name = "Headphones Pro"
	rec.Handle(ctx, device.Change{Kind: device.ChangeUpdated, Device: renamed, Previous: dev, At: at.Add(time.Second)})

	failed := dev
	failed.State = device.Failed("device unreachable", device.StateConnected)
	rec.Handle(ctx, device.Change{Kind: device.ChangeUpdated, Device: failed, Previous: dev, At: at.Add(2 * time.Second)})

	entries, err := repo.GetHistory(ctx, addrA, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].State != device.StateFailed || entries[0].Reason != "device unreachable" {
		t.Errorf("newest entry = %v %q", entries[0].State, entries[0].Reason)
	}

	points.mu.Lock()
	defer points.mu.Unlock()
	if len(points.points) != 2 {
		t.Fatalf("got %d points, want 2", len(points.points))
	}
	if points.points[0]["connected"] != true {
		t.Errorf("first point connected = %v, want true", points.points[0]["connected"])
	}
	if points.points[1]["failed"] != true || points.points[1]["reason"] != "device unreachable" {
		t.Errorf("failure point fields = %v", points.points[1])
	}
	if points.tags[0]["address"] != string(addrA) {
		t.Errorf("address tag = %q", points.tags[0]["address"])
	}
}

func TestRecorder_NilSinks(t *testing.T) {
	rec := NewRecorder(device.NewRegistry(), nil, nil, 0)
	rec.Handle(context.Background(), device.Change{
		Kind:   device.ChangeAdded,
		Device: device.Device{Address: addrA, State: device.Disconnected()},
		At:     time.Now(),
	})
}

func TestRecorder_Run(t *testing.T) {
	repo := newTestRepo(t)
	reg := device.NewRegistry()
	reg.Upsert(device.Device{Address: addrA, Name: "Headphones", LastSeen: time.Now()})

	rec := NewRecorder(reg, repo, nil, 30*24*time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx)
	}()

	// The subscription starts inside Run, so keep changing state until a
	// transition is observed.
	deadline := time.Now().Add(2 * time.Second)
	connected := false
	for {
		state := device.Disconnected()
		if connected = !connected; connected {
			state = device.Connected()
		}
		if _, _, err := reg.SetState(addrA, state, time.Time{}); err != nil {
			t.Fatalf("SetState() error = %v", err)
		}

		entries, err := repo.GetHistory(context.Background(), addrA, 10)
		if err != nil {
			t.Fatalf("GetHistory() error = %v", err)
		}
		if len(entries) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("recorder did not record any change")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRecorder_SubscribeBeforeRun(t *testing.T) {
	repo := newTestRepo(t)
	reg := device.NewRegistry()
	rec := NewRecorder(reg, repo, nil, 0)
	rec.Subscribe()

	// The initial listing lands before Run starts.
	reg.Upsert(device.Device{Address: addrA, Name: "Headphones", State: device.Connected(), LastSeen: time.Now()})
	reg.Upsert(device.Device{Address: addrB, Name: "Keyboard", LastSeen: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for _, addr := range []device.Address{addrA, addrB} {
		deadline := time.Now().Add(2 * time.Second)
		for {
			entries, err := repo.GetHistory(context.Background(), addr, 10)
			if err != nil {
				t.Fatalf("GetHistory(%s) error = %v", addr, err)
			}
			if len(entries) == 1 {
				if entries[0].Change != device.ChangeAdded.String() {
					t.Errorf("%s change = %q, want %q", addr, entries[0].Change, device.ChangeAdded)
				}
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("%s: %d entries recorded, want the Added change", addr, len(entries))
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}
