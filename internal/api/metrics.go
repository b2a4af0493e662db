package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Bridge        *BridgeMetrics  `json:"bridge,omitempty"`
	Devices       DeviceMetrics   `json:"devices"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// BridgeMetrics contains Modbus bridge counters.
type BridgeMetrics struct {
	Status       string `json:"status"`
	Reads        uint64 `json:"reads"`
	Writes       uint64 `json:"writes"`
	Failures     uint64 `json:"failures"`
	Published    uint64 `json:"published"`
	PollCycles   uint64 `json:"poll_cycles"`
	CachedValues int    `json:"cached_values"`
}

// DeviceMetrics summarises the loaded profile and device reachability.
type DeviceMetrics struct {
	Total    int `json:"total"`
	Online   int `json:"online"`
	Offline  int `json:"offline"`
	Visitors int `json:"visitors"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	Enabled         bool  `json:"enabled"`
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns a JSON summary of the mapper. The Prometheus
// exposition lives at /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
		metrics.MQTT.Subscriptions = s.mqtt.SubscriptionCount()
	}

	if s.bridge != nil {
		stats := s.bridge.GetMetrics()
		metrics.Bridge = &BridgeMetrics{
			Status:       stats.Status,
			Reads:        stats.Reads,
			Writes:       stats.Writes,
			Failures:     stats.Failures,
			Published:    stats.Published,
			PollCycles:   stats.PollCycles,
			CachedValues: stats.CachedValues,
		}
	}

	snap := s.store.Load()
	online, offline := s.status.Counts()
	metrics.Devices = DeviceMetrics{
		Total:    snap.DeviceCount(),
		Online:   online,
		Offline:  offline,
		Visitors: snap.VisitorCount(),
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			Enabled:         true,
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
