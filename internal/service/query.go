package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"customer-cqrs-service/internal/cache"
	"customer-cqrs-service/internal/logger"
	"customer-cqrs-service/internal/store"
)

// QueryService serves reads from the read store through the response cache.
// Results can lag the write store by up to one reconciliation interval.
type QueryService struct {
	reads  store.ReadStore
	events store.EventLog
	cache  cache.Cache
	ttl    time.Duration
}

func NewQueryService(reads store.ReadStore, events store.EventLog, c cache.Cache, ttl time.Duration) *QueryService {
	return &QueryService{
		reads:  reads,
		events: events,
		cache:  c,
		ttl:    ttl,
	}
}

func (s *QueryService) GetByID(ctx context.Context, userID int64) (*store.CustomerView, error) {
	key := cache.DetailKey(userID)

	var cached store.CustomerView
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	view, err := s.reads.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "get customer", Err: err}
	}

	s.cacheSet(ctx, key, view)
	return view, nil
}

func (s *QueryService) GetByEmail(ctx context.Context, email string) (*store.CustomerView, error) {
	key := cache.EmailKey(email)

	var cached store.CustomerView
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	view, err := s.reads.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "get customer by email", Err: err}
	}

	s.cacheSet(ctx, key, view)
	return view, nil
}

func (s *QueryService) List(ctx context.Context, params store.ListParams) (*store.CustomerPage, error) {
	key := cache.ListKey(map[string]string{
		"page":   strconv.Itoa(params.Page),
		"limit":  strconv.Itoa(params.Limit),
		"role":   params.Role,
		"search": params.Search,
	})

	var cached store.CustomerPage
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	page, err := s.reads.List(ctx, params)
	if err != nil {
		return nil, &StorageError{Op: "list customers", Err: err}
	}

	s.cacheSet(ctx, key, page)
	return page, nil
}

// History returns the event log for a customer, newest first.
func (s *QueryService) History(ctx context.Context, userID int64) ([]*store.Event, error) {
	events, err := s.events.History(ctx, userID)
	if err != nil {
		return nil, &StorageError{Op: "customer history", Err: err}
	}
	return events, nil
}

// cacheGet reports whether key was found and decoded into out. Cache errors
// are logged and treated as misses.
func (s *QueryService) cacheGet(ctx context.Context, key string, out interface{}) bool {
	if s.cache == nil {
		return false
	}
	val, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Log.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		logger.Log.Warn("Cache entry not decodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *QueryService) cacheSet(ctx context.Context, key string, val interface{}) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := s.cache.SetWithTTL(ctx, key, string(data), s.ttl); err != nil {
		logger.Log.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
