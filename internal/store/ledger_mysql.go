package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"customer-cqrs-service/internal/database"
)

// MySQLSyncLedger implements SyncLedger. The ledger lives in the write
// database, alongside the rows it checkpoints.
type MySQLSyncLedger struct {
	db *database.Database
}

func NewMySQLSyncLedger(db *database.Database) *MySQLSyncLedger {
	return &MySQLSyncLedger{db: db}
}

func (l *MySQLSyncLedger) StartRun(ctx context.Context, syncType string, startedAt time.Time) (string, error) {
	syncID := uuid.New().String()

	_, err := l.db.DB.ExecContext(ctx,
		`INSERT INTO cqrs_sync_log (syncId, syncType, status, recordsProcessed, currentSyncAt)
		 VALUES (?, ?, ?, 0, ?)`,
		syncID, syncType, SyncInProgress, startedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start sync run: %w", err)
	}
	return syncID, nil
}

func (l *MySQLSyncLedger) FinishRun(ctx context.Context, syncID string, status SyncStatus, processed int64, lastSyncAt time.Time, errMsg string) error {
	last := sql.NullTime{Time: lastSyncAt, Valid: !lastSyncAt.IsZero()}
	msg := sql.NullString{String: errMsg, Valid: errMsg != ""}

	_, err := l.db.DB.ExecContext(ctx,
		`UPDATE cqrs_sync_log
		 SET status = ?, recordsProcessed = ?, lastSyncAt = ?, errorMessage = ?
		 WHERE syncId = ?`,
		status, processed, last, msg, syncID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync run %s: %w", syncID, err)
	}
	return nil
}

func (l *MySQLSyncLedger) LastWatermark(ctx context.Context, syncType string) (time.Time, error) {
	var last sql.NullTime
	err := l.db.DB.QueryRowContext(ctx,
		`SELECT lastSyncAt FROM cqrs_sync_log
		 WHERE syncType = ? AND status = ?
		 ORDER BY currentSyncAt DESC LIMIT 1`,
		syncType, SyncSuccess,
	).Scan(&last)

	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read watermark: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func (l *MySQLSyncLedger) RecentRuns(ctx context.Context, limit int) ([]*SyncRun, error) {
	rows, err := l.db.DB.QueryContext(ctx,
		`SELECT syncId, syncType, status, recordsProcessed, lastSyncAt, currentSyncAt, errorMessage
		 FROM cqrs_sync_log ORDER BY currentSyncAt DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		var r SyncRun
		err := rows.Scan(
			&r.SyncID,
			&r.SyncType,
			&r.Status,
			&r.RecordsProcessed,
			&r.LastSyncAt,
			&r.CurrentSyncAt,
			&r.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
