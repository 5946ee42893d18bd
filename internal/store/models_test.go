package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerUpdateAssignments(t *testing.T) {
	email := "new@example.com"
	role := "admin"
	upd := CustomerUpdate{Email: &email, Role: &role}

	cols, vals := upd.assignments()
	require.Len(t, cols, 2)
	assert.Equal(t, []string{"email = ?", "role = ?"}, cols)
	assert.Equal(t, []interface{}{"new@example.com", "admin"}, vals)
	assert.False(t, upd.IsEmpty())

	assert.True(t, (&CustomerUpdate{}).IsEmpty())
}

func TestDecodePayload(t *testing.T) {
	created, _ := json.Marshal(CreatedPayload{UserName: "a", Email: "a@example.com", Role: "user"})
	e := Event{Type: EventCreated, Payload: created}
	p, err := e.DecodePayload()
	require.NoError(t, err)
	cp, ok := p.(CreatedPayload)
	require.True(t, ok)
	assert.Equal(t, "a", cp.UserName)

	name := "b"
	updated, _ := json.Marshal(UpdatedPayload{Fields: CustomerUpdate{UserName: &name}})
	e = Event{Type: EventUpdated, Payload: updated}
	p, err = e.DecodePayload()
	require.NoError(t, err)
	up, ok := p.(UpdatedPayload)
	require.True(t, ok)
	require.NotNil(t, up.Fields.UserName)
	assert.Equal(t, "b", *up.Fields.UserName)

	deleted, _ := json.Marshal(DeletedPayload{UserID: 9})
	e = Event{Type: EventDeleted, Payload: deleted}
	p, err = e.DecodePayload()
	require.NoError(t, err)
	dp, ok := p.(DeletedPayload)
	require.True(t, ok)
	assert.Equal(t, int64(9), dp.UserID)

	e = Event{Type: EventType("RENAMED"), Payload: []byte("{}")}
	_, err = e.DecodePayload()
	require.Error(t, err)
}

func TestViewStripsWriteOnlyFields(t *testing.T) {
	syncedAt := time.Now()
	c := Customer{
		UserID:   5,
		UserName: "alice",
		Email:    "alice@example.com",
		Password: "hunter2",
		Role:     "user",
		IsActive: true,
		Version:  3,
	}

	v := c.View(syncedAt)
	assert.Equal(t, int64(5), v.UserID)
	assert.Equal(t, "alice", v.UserName)
	assert.Equal(t, int64(3), v.Version)
	assert.Equal(t, syncedAt, v.SyncedAt)

	// The projection type carries no password field at all; also make sure
	// the write-side struct never serializes it.
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
}
