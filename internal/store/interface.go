package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a customer id does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrNoFields is returned for an update with no whitelisted fields set.
	ErrNoFields = errors.New("no valid fields provided for update")
)

// WriteStore is the durable store of record. Every mutation increments the
// customer's version, stamps updatedAt, and appends the paired event in the
// same transaction; a failed event append rolls the mutation back.
type WriteStore interface {
	Create(ctx context.Context, in CustomerCreate) (*Customer, error)
	Update(ctx context.Context, userID int64, upd CustomerUpdate) (*Customer, error)
	SoftDelete(ctx context.Context, userID int64) (int64, error)

	// ChangedSince returns all rows with updatedAt strictly after since,
	// oldest first. Used by the reconciler.
	ChangedSince(ctx context.Context, since time.Time) ([]*Customer, error)
}

// EventLog reads the append-only mutation history.
type EventLog interface {
	// History returns the events for a customer, newest first. The result is
	// finite and re-queryable; stored rows are never mutated.
	History(ctx context.Context, userID int64) ([]*Event, error)
}

// ReadStore is the query-optimized store. It is written only by the
// reconciler, never by the command path.
type ReadStore interface {
	Upsert(ctx context.Context, view *CustomerView) error
	GetByID(ctx context.Context, userID int64) (*CustomerView, error)
	GetByEmail(ctx context.Context, email string) (*CustomerView, error)
	List(ctx context.Context, params ListParams) (*CustomerPage, error)
}

// SyncLedger records one entry per reconciliation attempt and supplies the
// watermark for the next run. It is consulted on every run, including no-ops.
type SyncLedger interface {
	StartRun(ctx context.Context, syncType string, startedAt time.Time) (string, error)
	FinishRun(ctx context.Context, syncID string, status SyncStatus, processed int64, lastSyncAt time.Time, errMsg string) error

	// LastWatermark returns the lastSyncAt of the most recent SUCCESS entry
	// for syncType, or the zero time if none exists.
	LastWatermark(ctx context.Context, syncType string) (time.Time, error)
	RecentRuns(ctx context.Context, limit int) ([]*SyncRun, error)
}
