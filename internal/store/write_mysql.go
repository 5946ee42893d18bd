package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"customer-cqrs-service/internal/database"
)

const customerColumns = `userID, userName, email, contactNumber, password, address, role, isActive, lastLogin, version, createdAt, updatedAt`

// MySQLWriteStore implements WriteStore and EventLog against the write
// database. Mutations and their event rows share one transaction.
type MySQLWriteStore struct {
	db *database.Database
}

func NewMySQLWriteStore(db *database.Database) *MySQLWriteStore {
	return &MySQLWriteStore{db: db}
}

func (s *MySQLWriteStore) Create(ctx context.Context, in CustomerCreate) (*Customer, error) {
	role := in.Role
	if role == "" {
		role = "user"
	}

	var created *Customer
	err := s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO user_write (userName, email, contactNumber, password, address, role, isActive, createdAt, updatedAt, version)
			 VALUES (?, ?, ?, ?, ?, ?, TRUE, NOW(6), NOW(6), 1)`,
			in.UserName, in.Email, in.ContactNumber, in.Password, in.Address, role,
		)
		if err != nil {
			return fmt.Errorf("failed to insert customer: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if err := appendEventTx(ctx, tx, id, EventCreated, CreatedPayload{
			UserName: in.UserName,
			Email:    in.Email,
			Role:     role,
		}); err != nil {
			return err
		}

		created, err = getCustomerTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *MySQLWriteStore) Update(ctx context.Context, userID int64, upd CustomerUpdate) (*Customer, error) {
	cols, vals := upd.assignments()
	if len(cols) == 0 {
		return nil, ErrNoFields
	}

	var updated *Customer
	err := s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		// NOW(6): updatedAt is compared against the microsecond-precision
		// reconciliation watermark.
		query := "UPDATE user_write SET " + strings.Join(cols, ", ") +
			", updatedAt = NOW(6), version = version + 1 WHERE userID = ?"

		res, err := tx.ExecContext(ctx, query, append(vals, userID)...)
		if err != nil {
			return fmt.Errorf("failed to update customer %d: %w", userID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}

		if err := appendEventTx(ctx, tx, userID, EventUpdated, UpdatedPayload{Fields: upd}); err != nil {
			return err
		}

		updated, err = getCustomerTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *MySQLWriteStore) SoftDelete(ctx context.Context, userID int64) (int64, error) {
	var affected int64
	err := s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE user_write SET isActive = FALSE, updatedAt = NOW(6), version = version + 1 WHERE userID = ?`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("failed to soft-delete customer %d: %w", userID, err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}

		return appendEventTx(ctx, tx, userID, EventDeleted, DeletedPayload{UserID: userID})
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (s *MySQLWriteStore) ChangedSince(ctx context.Context, since time.Time) ([]*Customer, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM user_write WHERE updatedAt > ? ORDER BY updatedAt ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed customers: %w", err)
	}
	defer rows.Close()

	var customers []*Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *MySQLWriteStore) History(ctx context.Context, userID int64) ([]*Event, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT eventId, userID, eventType, payload, createdAt
		 FROM user_events WHERE userID = ?
		 ORDER BY seq DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query event history: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.EventID, &e.UserID, &e.Type, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func appendEventTx(ctx context.Context, tx *sql.Tx, userID int64, eventType EventType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_events (eventId, userID, eventType, payload, createdAt)
		 VALUES (?, ?, ?, ?, NOW(6))`,
		uuid.New().String(), userID, string(eventType), data,
	)
	if err != nil {
		return fmt.Errorf("failed to append %s event for customer %d: %w", eventType, userID, err)
	}
	return nil
}

func getCustomerTx(ctx context.Context, tx *sql.Tx, userID int64) (*Customer, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM user_write WHERE userID = ?`, userID)
	return scanCustomer(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row rowScanner) (*Customer, error) {
	var c Customer
	err := row.Scan(
		&c.UserID,
		&c.UserName,
		&c.Email,
		&c.ContactNumber,
		&c.Password,
		&c.Address,
		&c.Role,
		&c.IsActive,
		&c.LastLogin,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
