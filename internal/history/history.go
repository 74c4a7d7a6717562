package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bluetray/bluetray/internal/device"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed-width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrAddressRequired is returned when an entry or query has no address.
var ErrAddressRequired = errors.New("history: address is required")

// Entry is one recorded connection state change.
//
// Reason is only set for failed states. Change is the registry change kind
// (added, updated or removed).
type Entry struct {
	ID        int64            `json:"id"`
	Address   device.Address   `json:"address"`
	Name      string           `json:"name"`
	State     device.StateKind `json:"state"`
	Reason    string           `json:"reason,omitempty"`
	Change    string           `json:"change"`
	CreatedAt time.Time        `json:"created_at"`
}

// Repository stores and retrieves connection history.
//
// Implementations must be safe for concurrent use and store UTC
// timestamps.
type Repository interface {
	// Record stores one entry. CreatedAt defaults to now.
	Record(ctx context.Context, entry Entry) error

	// GetHistory returns entries for address, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - address: Device address
	//   - limit: Maximum entries (default 50, clamped to 200)
	GetHistory(ctx context.Context, address device.Address, limit int) ([]Entry, error)

	// Prune deletes entries older than olderThan and returns the count.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the connection_history table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts an entry.
func (r *SQLiteRepository) Record(ctx context.Context, entry Entry) error {
	if entry.Address == "" {
		return ErrAddressRequired
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connection_history (address, name, state, reason, change, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(entry.Address),
		entry.Name,
		entry.State.String(),
		entry.Reason,
		entry.Change,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting connection history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for a device, newest first.
func (r *SQLiteRepository) GetHistory(ctx context.Context, address device.Address, limit int) ([]Entry, error) {
	if address == "" {
		return nil, ErrAddressRequired
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, address, name, state, reason, change, created_at
		 FROM connection_history
		 WHERE address = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		string(address),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying connection history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e         Entry
			addr      string
			state     string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &addr, &e.Name, &state, &e.Reason, &e.Change, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning connection history: %w", err)
		}
		e.Address = device.Address(addr)

		if e.State, err = device.ParseStateKind(state); err != nil {
			return nil, fmt.Errorf("row %d: %w", e.ID, err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("row %d: parsing created_at: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the retention window.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM connection_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting connection history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
