package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Customer is the write-store record of truth. Version increases by exactly
// one on every accepted mutation and is never reused.
type Customer struct {
	UserID        int64        `db:"userID" json:"userID"`
	UserName      string       `db:"userName" json:"userName"`
	Email         string       `db:"email" json:"email"`
	ContactNumber string       `db:"contactNumber" json:"contactNumber"`
	Password      string       `db:"password" json:"-"` // write-only, never projected or serialized
	Address       string       `db:"address" json:"address"`
	Role          string       `db:"role" json:"role"`
	IsActive      bool         `db:"isActive" json:"isActive"`
	LastLogin     sql.NullTime `db:"lastLogin" json:"lastLogin"`
	Version       int64        `db:"version" json:"version"`
	CreatedAt     time.Time    `db:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time    `db:"updatedAt" json:"updatedAt"`
}

// CustomerView is the read-store projection: the Customer minus write-only
// fields, plus the timestamp of the reconciliation pass that produced it.
// It may lag the write store by up to one reconciliation interval.
type CustomerView struct {
	UserID        int64        `db:"userID" json:"userID"`
	UserName      string       `db:"userName" json:"userName"`
	Email         string       `db:"email" json:"email"`
	ContactNumber string       `db:"contactNumber" json:"contactNumber"`
	Address       string       `db:"address" json:"address"`
	Role          string       `db:"role" json:"role"`
	IsActive      bool         `db:"isActive" json:"isActive"`
	LastLogin     sql.NullTime `db:"lastLogin" json:"lastLogin"`
	Version       int64        `db:"version" json:"version"`
	CreatedAt     time.Time    `db:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time    `db:"updatedAt" json:"updatedAt"`
	SyncedAt      time.Time    `db:"syncedAt" json:"syncedAt"`
}

// View projects the customer for the read store, stripping write-only fields.
func (c *Customer) View(syncedAt time.Time) *CustomerView {
	return &CustomerView{
		UserID:        c.UserID,
		UserName:      c.UserName,
		Email:         c.Email,
		ContactNumber: c.ContactNumber,
		Address:       c.Address,
		Role:          c.Role,
		IsActive:      c.IsActive,
		LastLogin:     c.LastLogin,
		Version:       c.Version,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		SyncedAt:      syncedAt,
	}
}

type EventType string

const (
	EventCreated EventType = "CREATED"
	EventUpdated EventType = "UPDATED"
	EventDeleted EventType = "DELETED"
)

// Event is one append-only row of the mutation history for a customer.
// Rows are immutable once written and ordered by CreatedAt per customer.
type Event struct {
	EventID   string          `db:"eventId" json:"eventId"`
	UserID    int64           `db:"userID" json:"userID"`
	Type      EventType       `db:"eventType" json:"eventType"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	CreatedAt time.Time       `db:"createdAt" json:"createdAt"`
}

type CreatedPayload struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type UpdatedPayload struct {
	Fields CustomerUpdate `json:"fields"`
}

type DeletedPayload struct {
	UserID int64 `json:"userID"`
}

// DecodePayload returns the typed payload for the event. The switch is
// exhaustive over the three event kinds.
func (e *Event) DecodePayload() (interface{}, error) {
	switch e.Type {
	case EventCreated:
		var p CreatedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode CREATED payload: %w", err)
		}
		return p, nil
	case EventUpdated:
		var p UpdatedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode UPDATED payload: %w", err)
		}
		return p, nil
	case EventDeleted:
		var p DeletedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode DELETED payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

type SyncStatus string

const (
	SyncInProgress SyncStatus = "IN_PROGRESS"
	SyncSuccess    SyncStatus = "SUCCESS"
	SyncFailed     SyncStatus = "FAILED"
)

// SyncRun is one ledger entry per reconciliation attempt. The watermark used
// by the next run is the LastSyncAt of the most recent SUCCESS entry.
type SyncRun struct {
	SyncID           string         `db:"syncId" json:"syncId"`
	SyncType         string         `db:"syncType" json:"syncType"`
	Status           SyncStatus     `db:"status" json:"status"`
	RecordsProcessed int64          `db:"recordsProcessed" json:"recordsProcessed"`
	LastSyncAt       sql.NullTime   `db:"lastSyncAt" json:"lastSyncAt"`
	CurrentSyncAt    time.Time      `db:"currentSyncAt" json:"currentSyncAt"`
	ErrorMessage     sql.NullString `db:"errorMessage" json:"errorMessage,omitempty"`
}

type CustomerCreate struct {
	UserName      string
	Email         string
	ContactNumber string
	Password      string
	Address       string
	Role          string
}

// CustomerUpdate is the whitelisted partial-update set. Column names are
// fixed at compile time; user input never reaches SQL identifiers.
type CustomerUpdate struct {
	UserName      *string    `json:"userName,omitempty"`
	Email         *string    `json:"email,omitempty"`
	ContactNumber *string    `json:"contactNumber,omitempty"`
	Password      *string    `json:"-"`
	Address       *string    `json:"address,omitempty"`
	Role          *string    `json:"role,omitempty"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	IsActive      *bool      `json:"isActive,omitempty"`
}

func (u *CustomerUpdate) IsEmpty() bool {
	cols, _ := u.assignments()
	return len(cols) == 0
}

func (u *CustomerUpdate) assignments() ([]string, []interface{}) {
	var cols []string
	var vals []interface{}
	if u.UserName != nil {
		cols = append(cols, "userName = ?")
		vals = append(vals, *u.UserName)
	}
	if u.Email != nil {
		cols = append(cols, "email = ?")
		vals = append(vals, *u.Email)
	}
	if u.ContactNumber != nil {
		cols = append(cols, "contactNumber = ?")
		vals = append(vals, *u.ContactNumber)
	}
	if u.Password != nil {
		cols = append(cols, "password = ?")
		vals = append(vals, *u.Password)
	}
	if u.Address != nil {
		cols = append(cols, "address = ?")
		vals = append(vals, *u.Address)
	}
	if u.Role != nil {
		cols = append(cols, "role = ?")
		vals = append(vals, *u.Role)
	}
	if u.LastLogin != nil {
		cols = append(cols, "lastLogin = ?")
		vals = append(vals, *u.LastLogin)
	}
	if u.IsActive != nil {
		cols = append(cols, "isActive = ?")
		vals = append(vals, *u.IsActive)
	}
	return cols, vals
}

type ListParams struct {
	Page   int
	Limit  int
	Role   string
	Search string
}

type CustomerPage struct {
	Data       []*CustomerView `json:"data"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}
