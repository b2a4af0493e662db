package device

import (
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the StatusRegistry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Reachability of a device as seen by the last poll cycle.
const (
	StateUnknown = "unknown"
	StateOnline  = "online"
	StateOffline = "offline"
)

// Status is the reachability record for one device.
type Status struct {
	DeviceID string `json:"device_id"`

	// State is online after a cycle with at least one successful
	// transaction and offline after a cycle where every one failed.
	State string `json:"state"`

	LastPoll    time.Time `json:"last_poll"`
	LastSuccess time.Time `json:"last_success,omitempty"`

	// ConsecutiveFailures counts cycles in a row where every transaction failed.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// Succeeded and Failed are the transaction counts of the last cycle.
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// StatusRegistry tracks per-device reachability from poll results.
//
// It satisfies the bridge's StatusRecorder interface. All methods are
// safe for concurrent use.
type StatusRegistry struct {
	statuses map[string]*Status
	mu       sync.RWMutex
	logger   Logger
}

// NewStatusRegistry creates an empty registry.
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{
		statuses: make(map[string]*Status),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *StatusRegistry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// RecordPoll folds one poll cycle's outcome into the device's status.
// A cycle with no transactions at all leaves the state unchanged.
func (r *StatusRegistry) RecordPoll(deviceID string, succeeded, failed int, at time.Time) {
	if deviceID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.statuses[deviceID]
	if !ok {
		s = &Status{DeviceID: deviceID, State: StateUnknown}
		r.statuses[deviceID] = s
	}

	previous := s.State
	s.LastPoll = at
	s.Succeeded = succeeded
	s.Failed = failed

	switch {
	case succeeded > 0:
		s.State = StateOnline
		s.LastSuccess = at
		s.ConsecutiveFailures = 0
	case failed > 0:
		s.State = StateOffline
		s.ConsecutiveFailures++
	}

	if s.State != previous {
		switch s.State {
		case StateOnline:
			r.logger.Info("device online", "device_id", deviceID)
		case StateOffline:
			r.logger.Warn("device offline", "device_id", deviceID, "failed", failed)
		}
	}
}

// Get returns a copy of the device's status.
func (r *StatusRegistry) Get(deviceID string) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.statuses[deviceID]
	if !ok {
		return Status{}, ErrDeviceNotFound
	}
	return *s, nil
}

// List returns copies of all statuses ordered by device ID.
func (r *StatusRegistry) List() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Prune drops statuses for devices not in validIDs and returns how many
// were removed. Called after a profile reload.
func (r *StatusRegistry) Prune(validIDs map[string]bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id := range r.statuses {
		if !validIDs[id] {
			delete(r.statuses, id)
			removed++
		}
	}
	return removed
}

// Counts returns how many tracked devices are online and offline.
func (r *StatusRegistry) Counts() (online, offline int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.statuses {
		switch s.State {
		case StateOnline:
			online++
		case StateOffline:
			offline++
		}
	}
	return online, offline
}
