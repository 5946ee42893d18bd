package store

import (
	"context"
	"database/sql"
	"fmt"

	"customer-cqrs-service/internal/database"
)

const viewColumns = `userID, userName, email, contactNumber, address, role, isActive, lastLogin, version, createdAt, updatedAt, syncedAt`

// MySQLReadStore implements ReadStore against the read database. Its rows
// are produced exclusively by the reconciler.
type MySQLReadStore struct {
	db *database.Database
}

func NewMySQLReadStore(db *database.Database) *MySQLReadStore {
	return &MySQLReadStore{db: db}
}

func (s *MySQLReadStore) Upsert(ctx context.Context, view *CustomerView) error {
	query := `INSERT INTO user_read (userID, userName, email, contactNumber, address, role, isActive, lastLogin, version, createdAt, updatedAt, syncedAt)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			  userName = VALUES(userName),
			  email = VALUES(email),
			  contactNumber = VALUES(contactNumber),
			  address = VALUES(address),
			  role = VALUES(role),
			  isActive = VALUES(isActive),
			  lastLogin = VALUES(lastLogin),
			  version = VALUES(version),
			  createdAt = VALUES(createdAt),
			  updatedAt = VALUES(updatedAt),
			  syncedAt = VALUES(syncedAt)`

	_, err := s.db.DB.ExecContext(ctx, query,
		view.UserID,
		view.UserName,
		view.Email,
		view.ContactNumber,
		view.Address,
		view.Role,
		view.IsActive,
		view.LastLogin,
		view.Version,
		view.CreatedAt,
		view.UpdatedAt,
		view.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert customer %d into read store: %w", view.UserID, err)
	}
	return nil
}

func (s *MySQLReadStore) GetByID(ctx context.Context, userID int64) (*CustomerView, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+viewColumns+` FROM user_read WHERE userID = ? AND isActive = TRUE`,
		userID,
	)
	return scanCustomerView(row)
}

func (s *MySQLReadStore) GetByEmail(ctx context.Context, email string) (*CustomerView, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+viewColumns+` FROM user_read WHERE email = ? AND isActive = TRUE`,
		email,
	)
	return scanCustomerView(row)
}

func (s *MySQLReadStore) List(ctx context.Context, params ListParams) (*CustomerPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 10
	}
	offset := (params.Page - 1) * params.Limit

	whereClause := "WHERE isActive = TRUE"
	var args []interface{}
	if params.Role != "" {
		whereClause += " AND role = ?"
		args = append(args, params.Role)
	}
	if params.Search != "" {
		whereClause += " AND (userName LIKE ? OR email LIKE ?)"
		pattern := "%" + params.Search + "%"
		args = append(args, pattern, pattern)
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+viewColumns+` FROM user_read `+whereClause+` ORDER BY createdAt DESC LIMIT ? OFFSET ?`,
		append(append([]interface{}{}, args...), params.Limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var views []*CustomerView
	for rows.Next() {
		v, err := scanCustomerView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var total int64
	if err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_read `+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}

	totalPages := int((total + int64(params.Limit) - 1) / int64(params.Limit))

	return &CustomerPage{
		Data:       views,
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: totalPages,
	}, nil
}

func scanCustomerView(row rowScanner) (*CustomerView, error) {
	var v CustomerView
	err := row.Scan(
		&v.UserID,
		&v.UserName,
		&v.Email,
		&v.ContactNumber,
		&v.Address,
		&v.Role,
		&v.IsActive,
		&v.LastLogin,
		&v.Version,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.SyncedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
