package device

import (
	"context"
	"time"
)

// PropertyHistoryEntry is one published property value.
type PropertyHistoryEntry struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	Property   string    `json:"property"`
	DataType   string    `json:"data_type"`
	Value      string    `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PropertyHistoryRepository stores and retrieves published property values.
//
// Implementations must be thread-safe and use UTC timestamps.
type PropertyHistoryRepository interface {
	// RecordPropertyValue stores one value in its textual twin form.
	RecordPropertyValue(ctx context.Context, deviceID, property, dataType, value string, at time.Time) error

	// GetHistory returns recent entries for the device, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Device instance ID
	//   - property: Property name, or "" for all properties
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []PropertyHistoryEntry: Entries ordered newest first (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, deviceID, property string, limit int) ([]PropertyHistoryEntry, error)

	// PruneHistory deletes entries older than now-olderThan.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
