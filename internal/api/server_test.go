package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	modbus "github.com/nerrad567/modbus-mapper/internal/bridges/modbus"
	"github.com/nerrad567/modbus-mapper/internal/device"
	"github.com/nerrad567/modbus-mapper/internal/infrastructure/config"
	"github.com/nerrad567/modbus-mapper/internal/infrastructure/logging"
)

const apiTestProfile = `{
  "deviceInstances": [
    {"id": "meter-1", "name": "Main meter", "model": "Meter", "protocol": "tcp-1"},
    {"id": "meter-2", "name": "Spare meter", "model": "Meter", "protocol": "tcp-1"}
  ],
  "deviceModels": [
    {"name": "Meter", "properties": [
      {"name": "power", "dataType": "int"},
      {"name": "relay", "dataType": "boolean"}
    ]}
  ],
  "protocols": [
    {"name": "tcp-1", "protocol": "modbus-tcp", "protocol_config": {"ip": "10.0.0.5", "port": 502, "slaveID": 1}}
  ],
  "propertyVisitors": [
    {"modelName": "Meter", "propertyName": "power", "protocol": "modbus",
     "visitorConfig": {"register": "InputRegister", "index": 4, "offset": 2, "scale": 1}},
    {"modelName": "Meter", "propertyName": "relay", "protocol": "modbus",
     "visitorConfig": {"register": "CoilRegister", "index": 0, "offset": 1, "scale": 1}}
  ]
}`

// fakeHistory is a test implementation of device.PropertyHistoryRepository.
type fakeHistory struct {
	entries      []device.PropertyHistoryEntry
	err          error
	lastProperty string
	lastLimit    int
}

func (f *fakeHistory) RecordPropertyValue(context.Context, string, string, string, string, time.Time) error {
	return nil
}

func (f *fakeHistory) GetHistory(_ context.Context, _ string, property string, limit int) ([]device.PropertyHistoryEntry, error) {
	f.lastProperty = property
	f.lastLimit = limit
	return f.entries, f.err
}

func (f *fakeHistory) PruneHistory(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

type fakeBridge struct{ metrics modbus.BridgeMetrics }

func (f fakeBridge) GetMetrics() modbus.BridgeMetrics { return f.metrics }

type fakeConn struct {
	connected bool
	subs      int
}

func (f fakeConn) IsConnected() bool      { return f.connected }
func (f fakeConn) SubscriptionCount() int { return f.subs }

type testEnv struct {
	history *fakeHistory
	cache   *modbus.ActualValueCache
	status  *device.StatusRegistry
	reg     *prometheus.Registry
}

// testServer creates a Server over a two-device profile. meter-1 has a
// cached power value and one successful poll; meter-2 has never been polled.
func testServer(t *testing.T, mutate ...func(*Deps)) (*Server, *testEnv) {
	t.Helper()

	doc, err := modbus.ParseProfile([]byte(apiTestProfile))
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	store := modbus.NewProfileStore(modbus.BuildSnapshot(doc, nil))

	env := &testEnv{
		history: &fakeHistory{},
		cache:   modbus.NewActualValueCache(),
		status:  device.NewStatusRegistry(),
		reg:     prometheus.NewRegistry(),
	}
	env.cache.CompareAndSet("meter-1", "power", "1200")
	env.status.RecordPoll("meter-1", 2, 0, time.Now())
	modbus.NewMetrics(env.reg)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	wsCfg := config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}

	hub := NewHub(wsCfg, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
			CORS:     config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		},
		WS:          wsCfg,
		Logger:      log,
		Store:       store,
		Cache:       env.cache,
		Status:      env.status,
		History:     env.history,
		Bridge:      fakeBridge{metrics: modbus.BridgeMetrics{Status: "healthy", Reads: 7, Published: 3}},
		MQTT:        fakeConn{connected: true, subs: 2},
		Gatherer:    env.reg,
		ExternalHub: hub,
		Version:     "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, env
}

func doRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Constructor Tests ─────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	store := modbus.NewProfileStore(nil)
	cache := modbus.NewActualValueCache()

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Store: store, Cache: cache}},
		{"no store", Deps{Logger: log, Cache: cache}},
		{"no cache", Deps{Logger: log, Store: store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

// ─── Health Tests ──────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/v1/health")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHealth_DegradedWithoutMQTT(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.MQTT = fakeConn{connected: false} })
	w := doRequest(t, srv, http.MethodGet, "/api/v1/health")

	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/v1/health")

	id := w.Header().Get("X-Request-ID")
	if len(id) != 32 {
		t.Errorf("X-Request-ID = %q, want 32 hex characters", id)
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		wantACAO string
	}{
		{"allowed origin", "http://localhost:3000", "http://localhost:3000"},
		{"foreign origin", "http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t)

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantACAO {
				t.Errorf("ACAO = %q, want %q", got, tt.wantACAO)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/v1/nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Device Tests ──────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/v1/devices")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Devices []DeviceView `json:"devices"`
		Count   int          `json:"count"`
	}
	decodeBody(t, w, &resp)

	if resp.Count != 2 || len(resp.Devices) != 2 {
		t.Fatalf("count = %d (%d devices), want 2", resp.Count, len(resp.Devices))
	}
	if resp.Devices[0].ID != "meter-1" || resp.Devices[1].ID != "meter-2" {
		t.Errorf("order = [%s %s], want profile order", resp.Devices[0].ID, resp.Devices[1].ID)
	}
	if resp.Devices[0].Status.State != device.StateOnline {
		t.Errorf("meter-1 state = %q, want online", resp.Devices[0].Status.State)
	}
	if resp.Devices[1].Status.State != device.StateUnknown {
		t.Errorf("meter-2 state = %q, want unknown", resp.Devices[1].Status.State)
	}
}

func TestListDevices_EmptyProfile(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.Store = modbus.NewProfileStore(nil) })
	w := doRequest(t, srv, http.MethodGet, "/api/v1/devices")

	var resp struct {
		Devices []DeviceView `json:"devices"`
		Count   int          `json:"count"`
	}
	decodeBody(t, w, &resp)
	if resp.Count != 0 || resp.Devices == nil {
		t.Errorf("devices = %v (count %d), want empty list", resp.Devices, resp.Count)
	}
}

func TestGetDevice(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/v1/devices/meter-1")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var view DeviceView
	decodeBody(t, w, &view)

	if view.ProtocolKind != modbus.ProtocolModbusTCP {
		t.Errorf("protocol_kind = %q", view.ProtocolKind)
	}
	if view.Link != "tcp:10.0.0.5:502" {
		t.Errorf("link = %q, want tcp:10.0.0.5:502", view.Link)
	}
	if len(view.Properties) != 2 {
		t.Fatalf("properties = %d, want 2", len(view.Properties))
	}

	power := view.Properties[0]
	if power.Name != "power" || power.Value != "1200" || !power.Reported {
		t.Errorf("power = %+v, want reported value 1200", power)
	}
	if power.Register != string(modbus.InputRegister) || power.Index != 4 || power.Offset != 2 {
		t.Errorf("power visitor = %s/%d/%d", power.Register, power.Index, power.Offset)
	}

	relay := view.Properties[1]
	if relay.Reported || relay.Value != "" {
		t.Errorf("relay = %+v, want no reported value", relay)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/v1/devices/ghost")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	var apiErr Error
	decodeBody(t, w, &apiErr)
	if apiErr.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, ErrCodeNotFound)
	}
}

// ─── History Tests ─────────────────────────────────────────────────

func TestGetDeviceHistory(t *testing.T) {
	srv, env := testServer(t)
	env.history.entries = []device.PropertyHistoryEntry{
		{ID: 2, DeviceID: "meter-1", Property: "power", DataType: "int", Value: "1200"},
		{ID: 1, DeviceID: "meter-1", Property: "power", DataType: "int", Value: "1100"},
	}

	w := doRequest(t, srv, http.MethodGet, "/api/v1/devices/meter-1/history?property=power&limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		DeviceID string                        `json:"device_id"`
		Entries  []device.PropertyHistoryEntry `json:"entries"`
		Count    int                           `json:"count"`
	}
	decodeBody(t, w, &resp)

	if resp.Count != 2 || resp.Entries[0].Value != "1200" {
		t.Errorf("entries = %+v", resp.Entries)
	}
	if env.history.lastProperty != "power" || env.history.lastLimit != 10 {
		t.Errorf("query = (%q, %d), want (power, 10)", env.history.lastProperty, env.history.lastLimit)
	}
}

func TestGetDeviceHistory_DefaultLimit(t *testing.T) {
	srv, env := testServer(t)
	doRequest(t, srv, http.MethodGet, "/api/v1/devices/meter-1/history")

	if env.history.lastLimit != defaultHistoryLimit {
		t.Errorf("limit = %d, want %d", env.history.lastLimit, defaultHistoryLimit)
	}
}

func TestGetDeviceHistory_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		mutate func(*Deps)
		repo   error
		want   int
	}{
		{"invalid limit", "/api/v1/devices/meter-1/history?limit=abc", nil, nil, http.StatusBadRequest},
		{"limit too large", "/api/v1/devices/meter-1/history?limit=500", nil, nil, http.StatusBadRequest},
		{"unknown device", "/api/v1/devices/ghost/history", nil, nil, http.StatusNotFound},
		{"history disabled", "/api/v1/devices/meter-1/history", func(d *Deps) { d.History = nil }, nil, http.StatusServiceUnavailable},
		{"query failure", "/api/v1/devices/meter-1/history", nil, errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mutators []func(*Deps)
			if tt.mutate != nil {
				mutators = append(mutators, tt.mutate)
			}
			srv, env := testServer(t, mutators...)
			env.history.err = tt.repo

			w := doRequest(t, srv, http.MethodGet, tt.target)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// ─── Metrics Tests ─────────────────────────────────────────────────

func TestMetrics_JSON(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/v1/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var m SystemMetrics
	decodeBody(t, w, &m)

	if m.Version != "test" {
		t.Errorf("version = %q", m.Version)
	}
	if !m.MQTT.Connected || m.MQTT.Subscriptions != 2 {
		t.Errorf("mqtt = %+v, want connected with 2 subscriptions", m.MQTT)
	}
	if m.Bridge == nil || m.Bridge.Reads != 7 || m.Bridge.Published != 3 {
		t.Errorf("bridge = %+v", m.Bridge)
	}
	if m.Devices.Total != 2 || m.Devices.Online != 1 || m.Devices.Visitors != 2 {
		t.Errorf("devices = %+v", m.Devices)
	}
	if m.Database.Enabled {
		t.Error("database.enabled = true without a database")
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime.goroutines = 0")
	}
}

func TestMetrics_Prometheus(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "modbus_mapper_clamped_values_total") {
		t.Errorf("exposition missing mapper collectors:\n%s", w.Body.String())
	}
}

func TestMetrics_PrometheusDisabled(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.Gatherer = nil })
	w := doRequest(t, srv, http.MethodGet, "/metrics")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a gatherer", w.Code)
	}
}

// ─── Hub Tests ─────────────────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{modbus.WSChannelPropertyChanged: {}},
	}
	hub.Register(client)

	hub.Broadcast(modbus.WSChannelPropertyChanged, map[string]any{"device_id": "meter-1", "property": "power"})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent {
			t.Errorf("type = %q, want %q", wsMsg.Type, WSTypeEvent)
		}
		if wsMsg.EventType != modbus.WSChannelPropertyChanged {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, modbus.WSChannelPropertyChanged)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"mapper.health": {}},
	}
	hub.Register(client)

	hub.Broadcast(modbus.WSChannelPropertyChanged, map[string]any{"device_id": "meter-1"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}

	// A second unregister must not close the channel twice.
	hub.Unregister(client)
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{"c": {}},
	}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Broadcast("c", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}
}

// ─── WebSocket Tests ───────────────────────────────────────────────

// dialWebSocket starts an httptest server around the router and connects.
func dialWebSocket(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + defaultWSPath
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	return ws
}

func subscribe(t *testing.T, ws *websocket.Conn, channels ...string) WSMessage {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	return resp
}

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	srv, _ := testServer(t)
	ws := dialWebSocket(t, srv)

	resp := subscribe(t, ws, modbus.WSChannelPropertyChanged)
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}
	if srv.Hub().ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", srv.Hub().ClientCount())
	}

	srv.Hub().Broadcast(modbus.WSChannelPropertyChanged, map[string]string{"device_id": "meter-1", "value": "1200"})

	var event WSMessage
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != modbus.WSChannelPropertyChanged {
		t.Errorf("event = %+v", event)
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	srv, _ := testServer(t)
	ws := dialWebSocket(t, srv)

	subscribe(t, ws, modbus.WSChannelPropertyChanged, "mapper.health")

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{"mapper.health"}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}

	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read unsubscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "unsub-1" {
		t.Errorf("unsubscribe response = %+v", resp)
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	tests := []struct {
		name     string
		send     func(*websocket.Conn) error
		wantType string
		wantID   string
	}{
		{
			name:     "ping",
			send:     func(ws *websocket.Conn) error { return ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}) },
			wantType: WSTypePong,
			wantID:   "ping-1",
		},
		{
			name:     "invalid json",
			send:     func(ws *websocket.Conn) error { return ws.WriteMessage(websocket.TextMessage, []byte("not json")) },
			wantType: WSTypeError,
		},
		{
			name:     "unknown type",
			send:     func(ws *websocket.Conn) error { return ws.WriteJSON(WSMessage{Type: "write", ID: "w-1"}) },
			wantType: WSTypeError,
			wantID:   "w-1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t)
			ws := dialWebSocket(t, srv)

			if err := tt.send(ws); err != nil {
				t.Fatalf("write: %v", err)
			}
			var resp WSMessage
			if err := ws.ReadJSON(&resp); err != nil {
				t.Fatalf("read: %v", err)
			}
			if resp.Type != tt.wantType {
				t.Errorf("type = %q, want %q", resp.Type, tt.wantType)
			}
			if resp.ID != tt.wantID {
				t.Errorf("id = %q, want %q", resp.ID, tt.wantID)
			}
		})
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestServer_HealthCheckBeforeStart(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start = %v, want nil", err)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Config.Port = 19180
		d.ExternalHub = nil
	})

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if srv.Hub() == nil {
		t.Fatal("Start() should create a hub when none is injected")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}

	var resp *http.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = http.Get("http://127.0.0.1:19180/api/v1/health")
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
