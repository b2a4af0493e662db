package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// defaultPruneInterval is how often RunPruner deletes expired rows.
	defaultPruneInterval = time.Hour
)

// SQLitePropertyHistoryRepository implements PropertyHistoryRepository using
// the property_history table. Timestamps are stored as Unix milliseconds.
type SQLitePropertyHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLitePropertyHistoryRepository creates a repository over an open,
// migrated SQLite connection.
func NewSQLitePropertyHistoryRepository(db *sql.DB) *SQLitePropertyHistoryRepository {
	return &SQLitePropertyHistoryRepository{db: db, now: time.Now}
}

// RecordPropertyValue inserts a history row.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Device instance ID
//   - property: Property name
//   - dataType: Twin data type of the value (int, float, ...)
//   - value: Textual value as published on the twin
//   - at: Time the value was read
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLitePropertyHistoryRepository) RecordPropertyValue(ctx context.Context, deviceID, property, dataType, value string, at time.Time) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}
	if property == "" {
		return fmt.Errorf("property name is required")
	}
	if at.IsZero() {
		at = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO property_history (device_id, property, data_type, value, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		deviceID,
		property,
		dataType,
		value,
		at.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting property history: %w", err)
	}

	return nil
}

// GetHistory returns recent entries for a device, newest first.
// The limit defaults to 50 and is capped at 200.
func (r *SQLitePropertyHistoryRepository) GetHistory(ctx context.Context, deviceID, property string, limit int) ([]PropertyHistoryEntry, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `SELECT id, device_id, property, data_type, value, recorded_at
		 FROM property_history
		 WHERE device_id = ?`
	args := []any{deviceID}
	if property != "" {
		query += " AND property = ?"
		args = append(args, property)
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying property history: %w", err)
	}
	defer rows.Close()

	entries := make([]PropertyHistoryEntry, 0, limit)
	for rows.Next() {
		var entry PropertyHistoryEntry
		var recordedAt int64

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.Property, &entry.DataType, &entry.Value, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning property history: %w", err)
		}
		entry.RecordedAt = time.UnixMilli(recordedAt).UTC()

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating property history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes entries older than the given duration.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: ErrInvalidRetention, or the underlying database error
func (r *SQLitePropertyHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := r.now().UTC().Add(-olderThan).UnixMilli()
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM property_history WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting property history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// RunPruner prunes entries older than retention once at start and then on
// every interval until ctx is cancelled. A non-positive interval means hourly.
// It always returns nil so it can run under an errgroup.
func (r *SQLitePropertyHistoryRepository) RunPruner(ctx context.Context, retention, interval time.Duration, logger Logger) error {
	if logger == nil {
		logger = noopLogger{}
	}
	if retention <= 0 {
		logger.Info("property history retention disabled")
		return nil
	}
	if interval <= 0 {
		interval = defaultPruneInterval
	}

	prune := func() {
		n, err := r.PruneHistory(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("pruning property history failed", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Info("pruned property history", "rows", n, "retention", retention)
		}
	}

	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}
