// Package storetest provides in-memory implementations of the store and
// cache interfaces for tests.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"customer-cqrs-service/internal/store"
)

// MemWriteStore implements store.WriteStore and store.EventLog. Events keep
// insertion order, so History is deterministic even under identical
// timestamps.
type MemWriteStore struct {
	mu        sync.Mutex
	seq       int64
	Customers map[int64]*store.Customer
	Events    []*store.Event

	// SinceArgs records every watermark passed to ChangedSince.
	SinceArgs []time.Time

	// Err, when set, fails every mutation.
	Err error
}

func NewMemWriteStore() *MemWriteStore {
	return &MemWriteStore{
		Customers: make(map[int64]*store.Customer),
	}
}

func (s *MemWriteStore) next() time.Time {
	return time.Now()
}

func (s *MemWriteStore) Create(_ context.Context, in store.CustomerCreate) (*store.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	s.seq++
	now := s.next()
	role := in.Role
	if role == "" {
		role = "user"
	}
	c := &store.Customer{
		UserID:        s.seq,
		UserName:      in.UserName,
		Email:         in.Email,
		ContactNumber: in.ContactNumber,
		Password:      in.Password,
		Address:       in.Address,
		Role:          role,
		IsActive:      true,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.Customers[c.UserID] = c
	s.appendEvent(c.UserID, store.EventCreated, store.CreatedPayload{
		UserName: in.UserName, Email: in.Email, Role: role,
	}, now)

	cp := *c
	return &cp, nil
}

func (s *MemWriteStore) Update(_ context.Context, userID int64, upd store.CustomerUpdate) (*store.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if upd.IsEmpty() {
		return nil, store.ErrNoFields
	}
	c, ok := s.Customers[userID]
	if !ok {
		return nil, store.ErrNotFound
	}

	if upd.UserName != nil {
		c.UserName = *upd.UserName
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.ContactNumber != nil {
		c.ContactNumber = *upd.ContactNumber
	}
	if upd.Password != nil {
		c.Password = *upd.Password
	}
	if upd.Address != nil {
		c.Address = *upd.Address
	}
	if upd.Role != nil {
		c.Role = *upd.Role
	}
	if upd.IsActive != nil {
		c.IsActive = *upd.IsActive
	}
	c.Version++
	now := s.next()
	c.UpdatedAt = now
	s.appendEvent(userID, store.EventUpdated, store.UpdatedPayload{Fields: upd}, now)

	cp := *c
	return &cp, nil
}

func (s *MemWriteStore) SoftDelete(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	c, ok := s.Customers[userID]
	if !ok {
		return 0, store.ErrNotFound
	}

	c.IsActive = false
	c.Version++
	now := s.next()
	c.UpdatedAt = now
	s.appendEvent(userID, store.EventDeleted, store.DeletedPayload{UserID: userID}, now)
	return 1, nil
}

func (s *MemWriteStore) ChangedSince(ctx context.Context, since time.Time) ([]*store.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SinceArgs = append(s.SinceArgs, since)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}

	var changed []*store.Customer
	for _, c := range s.Customers {
		if c.UpdatedAt.After(since) {
			cp := *c
			changed = append(changed, &cp)
		}
	}
	sort.SliceStable(changed, func(i, j int) bool {
		return changed[i].UpdatedAt.Before(changed[j].UpdatedAt)
	})
	return changed, nil
}

func (s *MemWriteStore) History(_ context.Context, userID int64) ([]*store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*store.Event
	for i := len(s.Events) - 1; i >= 0; i-- {
		if s.Events[i].UserID == userID {
			e := *s.Events[i]
			events = append(events, &e)
		}
	}
	return events, nil
}

func (s *MemWriteStore) appendEvent(userID int64, t store.EventType, payload interface{}, at time.Time) {
	data, _ := json.Marshal(payload)
	s.Events = append(s.Events, &store.Event{
		EventID:   uuid.New().String(),
		UserID:    userID,
		Type:      t,
		Payload:   data,
		CreatedAt: at,
	})
}

// MemReadStore implements store.ReadStore. FailAfter injects an upsert
// failure once that many upserts have succeeded (negative disables).
type MemReadStore struct {
	mu        sync.Mutex
	Rows      map[int64]*store.CustomerView
	FailAfter int
	Upserts   int
}

func NewMemReadStore() *MemReadStore {
	return &MemReadStore{
		Rows:      make(map[int64]*store.CustomerView),
		FailAfter: -1,
	}
}

func (s *MemReadStore) Upsert(ctx context.Context, view *store.CustomerView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailAfter >= 0 && s.Upserts >= s.FailAfter {
		return fmt.Errorf("read store unavailable")
	}
	cp := *view
	s.Rows[view.UserID] = &cp
	s.Upserts++
	return nil
}

func (s *MemReadStore) GetByID(_ context.Context, userID int64) (*store.CustomerView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.Rows[userID]
	if !ok || !v.IsActive {
		return nil, store.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemReadStore) GetByEmail(_ context.Context, email string) (*store.CustomerView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.Rows {
		if v.Email == email && v.IsActive {
			cp := *v
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MemReadStore) List(_ context.Context, params store.ListParams) (*store.CustomerPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 10
	}

	var matched []*store.CustomerView
	for _, v := range s.Rows {
		if !v.IsActive {
			continue
		}
		if params.Role != "" && v.Role != params.Role {
			continue
		}
		if params.Search != "" &&
			!strings.Contains(v.UserName, params.Search) &&
			!strings.Contains(v.Email, params.Search) {
			continue
		}
		cp := *v
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (params.Page - 1) * params.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + params.Limit
	if end > len(matched) {
		end = len(matched)
	}

	return &store.CustomerPage{
		Data:       matched[start:end],
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: int((total + int64(params.Limit) - 1) / int64(params.Limit)),
	}, nil
}

// MemLedger implements store.SyncLedger.
type MemLedger struct {
	mu   sync.Mutex
	Runs []*store.SyncRun

	// Err, when set, fails every ledger call.
	Err error
}

func NewMemLedger() *MemLedger {
	return &MemLedger{}
}

func (l *MemLedger) StartRun(_ context.Context, syncType string, startedAt time.Time) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return "", l.Err
	}

	run := &store.SyncRun{
		SyncID:        uuid.New().String(),
		SyncType:      syncType,
		Status:        store.SyncInProgress,
		CurrentSyncAt: startedAt,
	}
	l.Runs = append(l.Runs, run)
	return run.SyncID, nil
}

func (l *MemLedger) FinishRun(ctx context.Context, syncID string, status store.SyncStatus, processed int64, lastSyncAt time.Time, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.Err != nil {
		return l.Err
	}

	for _, r := range l.Runs {
		if r.SyncID == syncID {
			r.Status = status
			r.RecordsProcessed = processed
			r.LastSyncAt.Time = lastSyncAt
			r.LastSyncAt.Valid = !lastSyncAt.IsZero()
			r.ErrorMessage.String = errMsg
			r.ErrorMessage.Valid = errMsg != ""
			return nil
		}
	}
	return fmt.Errorf("sync run %s not found", syncID)
}

func (l *MemLedger) LastWatermark(_ context.Context, syncType string) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return time.Time{}, l.Err
	}

	var watermark time.Time
	var latest time.Time
	for _, r := range l.Runs {
		if r.SyncType != syncType || r.Status != store.SyncSuccess {
			continue
		}
		if r.CurrentSyncAt.After(latest) {
			latest = r.CurrentSyncAt
			watermark = r.LastSyncAt.Time
		}
	}
	return watermark, nil
}

func (l *MemLedger) RecentRuns(_ context.Context, limit int) ([]*store.SyncRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}

	runs := make([]*store.SyncRun, len(l.Runs))
	for i, r := range l.Runs {
		cp := *r
		runs[i] = &cp
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CurrentSyncAt.After(runs[j].CurrentSyncAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// MemCache implements the cache surface with injectable failures.
type MemCache struct {
	mu              sync.Mutex
	Data            map[string]string
	GetErr          error
	SetErr          error
	DeleteErr       error
	DeletedPatterns []string
}

func NewMemCache() *MemCache {
	return &MemCache{Data: make(map[string]string)}
}

func (c *MemCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return "", false, c.GetErr
	}
	v, ok := c.Data[key]
	return v, ok, nil
}

func (c *MemCache) SetWithTTL(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetErr != nil {
		return c.SetErr
	}
	c.Data[key] = value
	return nil
}

func (c *MemCache) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DeletedPatterns = append(c.DeletedPatterns, pattern)
	if c.DeleteErr != nil {
		return 0, c.DeleteErr
	}

	prefix := strings.TrimSuffix(pattern, "*")
	var deleted int64
	for k := range c.Data {
		if strings.HasPrefix(k, prefix) {
			delete(c.Data, k)
			deleted++
		}
	}
	return deleted, nil
}
