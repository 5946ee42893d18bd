package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"customer-cqrs-service/internal/cache"
	"customer-cqrs-service/internal/logger"
	"customer-cqrs-service/internal/store"
)

// CommandService applies mutations against the write store. Each accepted
// mutation lands with its event-log row in one transaction; cache
// invalidation runs afterwards, best effort.
type CommandService struct {
	writes      store.WriteStore
	invalidator *cache.Invalidator
}

func NewCommandService(writes store.WriteStore, invalidator *cache.Invalidator) *CommandService {
	return &CommandService{
		writes:      writes,
		invalidator: invalidator,
	}
}

func (s *CommandService) CreateCustomer(ctx context.Context, in store.CustomerCreate) (*store.Customer, error) {
	if in.UserName == "" || in.Email == "" {
		return nil, &ValidationError{Msg: "userName and email are required"}
	}

	c, err := s.writes.Create(ctx, in)
	if err != nil {
		return nil, &StorageError{Op: "create customer", Err: err}
	}

	s.invalidate(ctx, c.UserID)

	logger.Log.Info("Customer created",
		zap.Int64("userID", c.UserID),
		zap.Int64("version", c.Version),
	)
	return c, nil
}

func (s *CommandService) UpdateCustomer(ctx context.Context, userID int64, upd store.CustomerUpdate) (*store.Customer, error) {
	if upd.IsEmpty() {
		return nil, &ValidationError{Msg: "no valid fields provided for update"}
	}

	c, err := s.writes.Update(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "update customer", Err: err}
	}

	s.invalidate(ctx, userID)

	logger.Log.Info("Customer updated",
		zap.Int64("userID", userID),
		zap.Int64("version", c.Version),
	)
	return c, nil
}

func (s *CommandService) DeleteCustomer(ctx context.Context, userID int64) error {
	_, err := s.writes.SoftDelete(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return &StorageError{Op: "delete customer", Err: err}
	}

	s.invalidate(ctx, userID)

	logger.Log.Info("Customer soft-deleted", zap.Int64("userID", userID))
	return nil
}

func (s *CommandService) invalidate(ctx context.Context, userID int64) {
	if s.invalidator == nil {
		return
	}
	s.invalidator.InvalidateCustomer(ctx, userID)
}
