package modbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// defaultHealthInterval is used when no health interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthStatus represents the operational status of the mapper.
type HealthStatus string

const (
	// HealthHealthy indicates the mapper is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the mapper is running with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline is published by the broker as the last will.
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the mapper is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the mapper is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the mapper's operational status.
// Topic: $hw/events/mapper/{id}/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	MapperID      string       `json:"mapper_id"`
	Timestamp     int64        `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime"`
	Devices       int          `json:"devices"`
	Transactions  uint64       `json:"transactions"`
	Failures      uint64       `json:"failures"`
	Reason        string       `json:"reason,omitempty"`
}

// NewLWTMessage returns the last-will payload for a mapper.
func NewLWTMessage(mapperID string) HealthMessage {
	return HealthMessage{
		MapperID:  mapperID,
		Timestamp: time.Now().UnixMilli(),
		Status:    HealthOffline,
		Reason:    "unexpected disconnect",
	}
}

// HealthPublisher publishes health messages. Typically the MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// MapperID identifies the mapper in health messages.
	MapperID string

	// Version is the mapper software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Stats returns transport counters. Optional.
	Stats func() TransportStats
}

// HealthReporter periodically publishes the mapper's health.
type HealthReporter struct {
	mapperID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	stats     func() TransportStats

	deviceCount   int
	deviceCountMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		mapperID:  cfg.MapperID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		stats:     cfg.Stats,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetDeviceCount updates the managed device count.
func (h *HealthReporter) SetDeviceCount(count int) {
	h.deviceCountMu.Lock()
	h.deviceCount = count
	h.deviceCountMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "mapper starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// LWTPayload returns the last-will payload to register at connect time.
func (h *HealthReporter) LWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage(h.mapperID))
}

// StatusPayload returns a presence message for the status topic. Unlike
// health messages it carries no counters.
func (h *HealthReporter) StatusPayload(status HealthStatus, reason string) ([]byte, error) {
	return json.Marshal(HealthMessage{
		MapperID:  h.mapperID,
		Timestamp: time.Now().UnixMilli(),
		Status:    status,
		Version:   h.version,
		Reason:    reason,
	})
}

// LWTTopic returns the last-will topic.
func (h *HealthReporter) LWTTopic() string {
	return MapperStatusTopic(h.mapperID)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus is degraded while the broker is unreachable or when
// every transaction since start has failed.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.stats != nil {
		s := h.stats()
		total := s.Reads + s.Writes
		if total > 0 && s.Failures == total {
			return HealthDegraded, "all Modbus transactions failing"
		}
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	h.deviceCountMu.RLock()
	devices := h.deviceCount
	h.deviceCountMu.RUnlock()

	var stats TransportStats
	if h.stats != nil {
		stats = h.stats()
	}

	msg := HealthMessage{
		MapperID:      h.mapperID,
		Timestamp:     time.Now().UnixMilli(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Devices:       devices,
		Transactions:  stats.Reads + stats.Writes,
		Failures:      stats.Failures,
		Reason:        reason,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(MapperHealthTopic(h.mapperID), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
