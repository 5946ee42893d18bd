package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customer-cqrs-service/internal/cache"
	"customer-cqrs-service/internal/store"
	"customer-cqrs-service/internal/store/storetest"
)

func TestCreateCustomerRejectsMissingFields(t *testing.T) {
	s := NewCommandService(storetest.NewMemWriteStore(), nil)

	_, err := s.CreateCustomer(context.Background(), store.CustomerCreate{UserName: "alice"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestUpdateCustomerRejectsEmptyUpdate(t *testing.T) {
	writes := storetest.NewMemWriteStore()
	s := NewCommandService(writes, nil)
	ctx := context.Background()

	c, err := s.CreateCustomer(ctx, store.CustomerCreate{UserName: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	_, err = s.UpdateCustomer(ctx, c.UserID, store.CustomerUpdate{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	// The rejection happened before any write.
	assert.Equal(t, int64(1), writes.Customers[c.UserID].Version)
}

func TestVersionIncrementsOncePerMutation(t *testing.T) {
	s := NewCommandService(storetest.NewMemWriteStore(), nil)
	ctx := context.Background()

	c, err := s.CreateCustomer(ctx, store.CustomerCreate{UserName: "alice", Email: "alice@example.com"})
	require.NoError(t, err)
	require.Equal(t, int64(1), c.Version)

	const updates = 5
	for i := 0; i < updates; i++ {
		addr := "street"
		c, err = s.UpdateCustomer(ctx, c.UserID, store.CustomerUpdate{Address: &addr})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1+updates), c.Version)

	require.NoError(t, s.DeleteCustomer(ctx, c.UserID))
}

func TestEveryMutationAppendsOneEvent(t *testing.T) {
	writes := storetest.NewMemWriteStore()
	s := NewCommandService(writes, nil)
	ctx := context.Background()

	c, err := s.CreateCustomer(ctx, store.CustomerCreate{UserName: "carol", Email: "carol@example.com"})
	require.NoError(t, err)

	name := "caroline"
	_, err = s.UpdateCustomer(ctx, c.UserID, store.CustomerUpdate{UserName: &name})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCustomer(ctx, c.UserID))

	history, err := writes.History(ctx, c.UserID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Newest first.
	assert.Equal(t, store.EventDeleted, history[0].Type)
	assert.Equal(t, store.EventUpdated, history[1].Type)
	assert.Equal(t, store.EventCreated, history[2].Type)

	payload, err := history[1].DecodePayload()
	require.NoError(t, err)
	upd, ok := payload.(store.UpdatedPayload)
	require.True(t, ok)
	require.NotNil(t, upd.Fields.UserName)
	assert.Equal(t, "caroline", *upd.Fields.UserName)
}

func TestBackToBackMutationsKeepHistoryOrder(t *testing.T) {
	writes := storetest.NewMemWriteStore()
	s := NewCommandService(writes, nil)
	ctx := context.Background()

	c, err := s.CreateCustomer(ctx, store.CustomerCreate{UserName: "f", Email: "f@example.com"})
	require.NoError(t, err)

	// Mutations in the same instant must still come back in append order,
	// not in timestamp-tie order.
	addrs := []string{"a1", "a2", "a3", "a4", "a5"}
	for i := range addrs {
		_, err = s.UpdateCustomer(ctx, c.UserID, store.CustomerUpdate{Address: &addrs[i]})
		require.NoError(t, err)
	}

	history, err := writes.History(ctx, c.UserID)
	require.NoError(t, err)
	require.Len(t, history, len(addrs)+1)

	// Newest first: a5..a1, then CREATED.
	for i, want := range []string{"a5", "a4", "a3", "a2", "a1"} {
		payload, err := history[i].DecodePayload()
		require.NoError(t, err)
		upd, ok := payload.(store.UpdatedPayload)
		require.True(t, ok)
		require.NotNil(t, upd.Fields.Address)
		assert.Equal(t, want, *upd.Fields.Address)
	}
	assert.Equal(t, store.EventCreated, history[len(addrs)].Type)
}

func TestWriteFailureSurfacesStorageError(t *testing.T) {
	writes := storetest.NewMemWriteStore()
	writes.Err = errors.New("write store unreachable")
	memCache := storetest.NewMemCache()
	s := NewCommandService(writes, cache.NewInvalidator(memCache))

	_, err := s.CreateCustomer(context.Background(), store.CustomerCreate{UserName: "a", Email: "a@example.com"})
	var sErr *StorageError
	require.ErrorAs(t, err, &sErr)

	// No event, no invalidation on a failed write.
	assert.Empty(t, writes.Events)
	assert.Empty(t, memCache.DeletedPatterns)
}

func TestCacheOutageDoesNotFailCommand(t *testing.T) {
	writes := storetest.NewMemWriteStore()
	memCache := storetest.NewMemCache()
	memCache.DeleteErr = errors.New("redis down")
	s := NewCommandService(writes, cache.NewInvalidator(memCache))

	c, err := s.CreateCustomer(context.Background(), store.CustomerCreate{UserName: "dave", Email: "dave@example.com"})
	require.NoError(t, err)

	// The write landed despite the invalidation failure.
	assert.Equal(t, "dave", writes.Customers[c.UserID].UserName)
	assert.NotEmpty(t, memCache.DeletedPatterns)
}

func TestSuccessfulWriteInvalidatesCache(t *testing.T) {
	writes := storetest.NewMemWriteStore()
	memCache := storetest.NewMemCache()
	s := NewCommandService(writes, cache.NewInvalidator(memCache))
	ctx := context.Background()

	c, err := s.CreateCustomer(ctx, store.CustomerCreate{UserName: "erin", Email: "erin@example.com"})
	require.NoError(t, err)

	assert.Contains(t, memCache.DeletedPatterns, cache.DetailKey(c.UserID)+"*")
	assert.Contains(t, memCache.DeletedPatterns, "customer:list:*")
}

func TestUpdateUnknownCustomer(t *testing.T) {
	s := NewCommandService(storetest.NewMemWriteStore(), nil)

	name := "x"
	_, err := s.UpdateCustomer(context.Background(), 42, store.CustomerUpdate{UserName: &name})
	require.ErrorIs(t, err, store.ErrNotFound)
}
