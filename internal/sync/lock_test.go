package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customer-cqrs-service/internal/store"
	"customer-cqrs-service/internal/store/storetest"
)

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()

	require.True(t, l.TryAcquire("job", time.Minute))
	assert.False(t, l.TryAcquire("job", time.Minute))
	assert.True(t, l.TryAcquire("other", time.Minute))

	l.Release("job")
	assert.True(t, l.TryAcquire("job", time.Minute))
}

func TestNoopLockerAlwaysGrants(t *testing.T) {
	l := NoopLocker{}
	assert.True(t, l.TryAcquire("job", time.Minute))
	assert.True(t, l.TryAcquire("job", time.Minute))
}

func TestTriggerNowRejectsConcurrentRun(t *testing.T) {
	writes := storetest.NewMemWriteStore()
	reads := storetest.NewMemReadStore()
	ledger := storetest.NewMemLedger()
	locker := NewLocalLocker()
	s := NewScheduler(time.Minute, NewReconciler(writes, reads, ledger), locker)

	require.True(t, locker.TryAcquire(syncLockName, time.Minute))
	_, err := s.TriggerNow(context.Background())
	require.Error(t, err)

	locker.Release(syncLockName)
	_, err = writes.Create(context.Background(), store.CustomerCreate{UserName: "a", Email: "a@example.com"})
	require.NoError(t, err)

	result, err := s.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Processed)
}
