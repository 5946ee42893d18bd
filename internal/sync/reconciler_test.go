package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customer-cqrs-service/internal/store"
	"customer-cqrs-service/internal/store/storetest"
)

func newTestReconciler() (*Reconciler, *storetest.MemWriteStore, *storetest.MemReadStore, *storetest.MemLedger) {
	writes := storetest.NewMemWriteStore()
	reads := storetest.NewMemReadStore()
	ledger := storetest.NewMemLedger()
	return NewReconciler(writes, reads, ledger), writes, reads, ledger
}

func TestReconcilerProjectsChangedRows(t *testing.T) {
	r, writes, reads, ledger := newTestReconciler()
	ctx := context.Background()

	c, err := writes.Create(ctx, store.CustomerCreate{
		UserName: "alice",
		Email:    "alice@example.com",
		Password: "secret",
		Address:  "1 Main St",
	})
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Processed)

	row, ok := reads.Rows[c.UserID]
	require.True(t, ok)
	assert.Equal(t, "alice", row.UserName)
	assert.Equal(t, "alice@example.com", row.Email)
	assert.Equal(t, c.Version, row.Version)
	assert.True(t, row.IsActive)
	assert.Equal(t, result.Watermark, row.SyncedAt)

	runs, err := ledger.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.SyncSuccess, runs[0].Status)
	assert.Equal(t, int64(1), runs[0].RecordsProcessed)
	require.True(t, runs[0].LastSyncAt.Valid)
	assert.Equal(t, result.Watermark, runs[0].LastSyncAt.Time)
}

func TestReconcilerIsIdempotent(t *testing.T) {
	r, writes, reads, ledger := newTestReconciler()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := writes.Create(ctx, store.CustomerCreate{UserName: name, Email: name + "@example.com"})
		require.NoError(t, err)
	}

	first, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Processed)

	snapshot := make(map[int64]store.CustomerView, len(reads.Rows))
	for id, v := range reads.Rows {
		snapshot[id] = *v
	}

	second, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Processed)

	require.Len(t, reads.Rows, len(snapshot))
	for id, before := range snapshot {
		assert.Equal(t, before, *reads.Rows[id])
	}

	runs, err := ledger.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestReconcilerFreezesWatermarkOnFailure(t *testing.T) {
	r, writes, reads, ledger := newTestReconciler()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		_, err := writes.Create(ctx, store.CustomerCreate{UserName: name, Email: name + "@example.com"})
		require.NoError(t, err)
	}

	// Third upsert of the batch fails.
	reads.FailAfter = 2

	_, err := r.Run(ctx)
	require.Error(t, err)
	var recErr *ReconciliationError
	require.ErrorAs(t, err, &recErr)

	runs, err := ledger.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.SyncFailed, runs[0].Status)
	assert.True(t, runs[0].ErrorMessage.Valid)
	assert.False(t, runs[0].LastSyncAt.Valid)

	watermark, err := ledger.LastWatermark(ctx, SyncTypeUserWriteToRead)
	require.NoError(t, err)
	assert.True(t, watermark.IsZero())

	// With the watermark frozen, a retry reprocesses the full batch.
	reads.FailAfter = -1
	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Processed, int64(5))
}

func TestReconcilerRecordsEmptyRuns(t *testing.T) {
	r, _, _, ledger := newTestReconciler()
	ctx := context.Background()

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Processed)

	// The ledger is the watermark source, so even a no-op run is recorded.
	runs, err := ledger.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.SyncSuccess, runs[0].Status)
	assert.Equal(t, int64(0), runs[0].RecordsProcessed)
}

func TestReconcilerKeepsSoftDeletedRows(t *testing.T) {
	r, writes, reads, _ := newTestReconciler()
	ctx := context.Background()

	c, err := writes.Create(ctx, store.CustomerCreate{UserName: "bob", Email: "bob@example.com"})
	require.NoError(t, err)

	_, err = r.Run(ctx)
	require.NoError(t, err)

	_, err = writes.SoftDelete(ctx, c.UserID)
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Processed)

	row, ok := reads.Rows[c.UserID]
	require.True(t, ok, "soft-deleted row must stay in the read store")
	assert.False(t, row.IsActive)
}

func TestWatermarkRoundTripsAtFullPrecision(t *testing.T) {
	r, writes, _, _ := newTestReconciler()
	ctx := context.Background()

	_, err := writes.Create(ctx, store.CustomerCreate{UserName: "a", Email: "a@example.com"})
	require.NoError(t, err)

	first, err := r.Run(ctx)
	require.NoError(t, err)

	_, err = r.Run(ctx)
	require.NoError(t, err)

	// The watermark stored at finalization must come back unchanged for the
	// next run; any rounding would strict-`>` rows out of the next batch
	// forever.
	require.Len(t, writes.SinceArgs, 2)
	assert.True(t, writes.SinceArgs[0].IsZero())
	assert.True(t, writes.SinceArgs[1].Equal(first.Watermark),
		"watermark changed across the ledger round trip: stored %v, read back %v",
		first.Watermark, writes.SinceArgs[1])
}

// cancellingReadStore cancels the run's context on the first upsert and then
// fails it the way database/sql would.
type cancellingReadStore struct {
	*storetest.MemReadStore
	cancel context.CancelFunc
}

func (s *cancellingReadStore) Upsert(ctx context.Context, view *store.CustomerView) error {
	s.cancel()
	return ctx.Err()
}

func TestReconcilerFinalizesLedgerWhenRunContextCancelled(t *testing.T) {
	writes := storetest.NewMemWriteStore()
	ledger := storetest.NewMemLedger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reads := &cancellingReadStore{MemReadStore: storetest.NewMemReadStore(), cancel: cancel}
	r := NewReconciler(writes, reads, ledger)

	_, err := writes.Create(context.Background(), store.CustomerCreate{UserName: "a", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = r.Run(ctx)
	require.Error(t, err)

	// A caller hanging up mid-batch must not strand the entry IN_PROGRESS.
	runs, err := ledger.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.SyncFailed, runs[0].Status)
	assert.True(t, runs[0].ErrorMessage.Valid)
}

func TestReconcilerFailsWhenLedgerUnavailable(t *testing.T) {
	r, writes, _, ledger := newTestReconciler()
	ctx := context.Background()

	_, err := writes.Create(ctx, store.CustomerCreate{UserName: "a", Email: "a@example.com"})
	require.NoError(t, err)

	ledger.Err = assert.AnError
	_, err = r.Run(ctx)
	require.Error(t, err)
	var recErr *ReconciliationError
	require.ErrorAs(t, err, &recErr)
}

func TestReconcilerLifecycleScenario(t *testing.T) {
	r, writes, reads, _ := newTestReconciler()
	ctx := context.Background()

	c, err := writes.Create(ctx, store.CustomerCreate{UserName: "A", Email: "a@example.com", Address: "10 High St"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version)

	addr := "12 High St"
	c, err = writes.Update(ctx, c.UserID, store.CustomerUpdate{Address: &addr})
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Version)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	row := reads.Rows[c.UserID]
	require.NotNil(t, row)
	assert.Equal(t, "12 High St", row.Address)
	assert.Equal(t, result.Watermark, row.SyncedAt)

	_, err = writes.SoftDelete(ctx, c.UserID)
	require.NoError(t, err)

	_, err = r.Run(ctx)
	require.NoError(t, err)

	row = reads.Rows[c.UserID]
	require.NotNil(t, row)
	assert.False(t, row.IsActive)
	assert.Equal(t, int64(3), row.Version)

	history, err := writes.History(ctx, c.UserID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, store.EventDeleted, history[0].Type)
	assert.Equal(t, store.EventUpdated, history[1].Type)
	assert.Equal(t, store.EventCreated, history[2].Type)
}
