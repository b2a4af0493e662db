package modbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Bridge operation constants.
const (
	// DefaultPollInterval is the period of the register poll.
	DefaultPollInterval = 2 * time.Second

	// twinQoS is the QoS of twin messages.
	twinQoS = 0

	// twinQueueSize bounds the pending twin messages of one device lane.
	twinQueueSize = 32

	// WSChannelPropertyChanged is the broadcast channel of actual value changes.
	WSChannelPropertyChanged = "property.changed"
)

// Logger is the structured logger used by this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// Unsubscribe removes a subscription made with Subscribe.
	Unsubscribe(topic string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// StatusRecorder tracks per-device reachability. Optional.
type StatusRecorder interface {
	// RecordPoll records the outcome of one poll cycle of a device.
	RecordPoll(deviceID string, succeeded, failed int, at time.Time)
}

// HistoryRecorder persists actual value changes. Optional.
type HistoryRecorder interface {
	RecordPropertyValue(ctx context.Context, deviceID, property, dataType, value string, at time.Time) error
}

// Telemetry receives numeric property values. Optional.
type Telemetry interface {
	WritePropertyValue(deviceID, property string, value float64, at time.Time)
}

// Broadcaster pushes live events to connected clients. Optional.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// PropertyChange is broadcast when an actual value changes.
type PropertyChange struct {
	DeviceID  string `json:"device_id"`
	Property  string `json:"property"`
	DataType  string `json:"data_type"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// statsProvider is implemented by transports that count transactions.
type statsProvider interface {
	Stats() TransportStats
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Store holds the current device profile snapshot.
	Store *ProfileStore

	// MQTTClient carries twin traffic.
	MQTTClient MQTTClient

	// Transport executes register operations.
	Transport Transport

	// Cache is the actual value cache. A new cache is created when nil.
	Cache *ActualValueCache

	// MapperID identifies this mapper in health topics.
	MapperID string

	// Version is reported in health messages.
	Version string

	// PollInterval is the register poll period. Default: 2 seconds.
	PollInterval time.Duration

	// HealthInterval is the health publish period. Default: 30 seconds.
	HealthInterval time.Duration

	// Logger is optional structured logger.
	Logger Logger

	// Status, History, Telemetry, Broadcaster and Metrics are optional
	// sinks for actual value changes and poll outcomes.
	Status      StatusRecorder
	History     HistoryRecorder
	Telemetry   Telemetry
	Broadcaster Broadcaster
	Metrics     *Metrics
}

// Bridge is the synchronisation engine between the twin store and Modbus
// devices. It handles:
//   - Twin-get results: writing expected values the device never acknowledged
//   - Twin deltas: writing newly expected values
//   - Periodic polls: reading registers and publishing changed actual values
//
// Every flow captures the profile snapshot once when it starts and uses it
// to completion, so a reload never changes the configuration under a
// running cycle.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	store        *ProfileStore
	mqtt         MQTTClient
	transport    Transport
	cache        *ActualValueCache
	health       *HealthReporter
	pollInterval time.Duration

	status      StatusRecorder
	history     HistoryRecorder
	telemetry   Telemetry
	broadcaster Broadcaster
	metrics     *Metrics

	// Devices with a poll cycle in progress
	inFlight   map[string]struct{}
	inFlightMu sync.Mutex

	// Twin messages are handled off the MQTT delivery goroutine, one lane
	// per device and message kind so a blocked write never holds back
	// deltas or other devices.
	lanes    map[twinLane]chan twinTask
	lanesMu  sync.Mutex
	stopping bool
	queued   sync.WaitGroup // twin messages accepted but not yet handled

	published  atomic.Uint64
	pollCycles atomic.Uint64

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewActualValueCache()
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		store:        opts.Store,
		mqtt:         opts.MQTTClient,
		transport:    opts.Transport,
		cache:        cache,
		pollInterval: pollInterval,
		status:       opts.Status,
		history:      opts.History,
		telemetry:    opts.Telemetry,
		broadcaster:  opts.Broadcaster,
		metrics:      opts.Metrics,
		inFlight:     make(map[string]struct{}),
		lanes:        make(map[twinLane]chan twinTask),
		done:         make(chan struct{}),
		ctx:          ctx,
		ctxCancel:    ctxCancel,
		logger:       opts.Logger,
	}

	var stats func() TransportStats
	if sp, ok := opts.Transport.(statsProvider); ok {
		stats = sp.Stats
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		MapperID:  opts.MapperID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Stats:     stats,
	})
	b.health.SetDeviceCount(opts.Store.Load().DeviceCount())
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to twin results and deltas, requests the twin of every
// device, and starts polling and health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	for _, topic := range twinSubscribeTopics() {
		if err := b.mqtt.Subscribe(topic, twinQoS, b.handleMQTTMessage); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		b.logInfo("subscribed to twin events", "topic", topic)
	}

	snap := b.store.Load()
	b.requestTwins(snap)

	// Stop cancels the cycles started from here as well as ctx does.
	runCtx, cancel := context.WithCancel(ctx)
	context.AfterFunc(b.ctx, cancel)

	b.wg.Add(1)
	go b.pollLoop(runCtx)

	b.health.Start(runCtx)

	b.logInfo("bridge started",
		"devices", snap.DeviceCount(),
		"visitors", snap.VisitorCount(),
		"poll_interval", b.pollInterval)

	return nil
}

// Stop unsubscribes from twin events, shuts down the bridge and waits for
// in-flight cycles. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.mqtt.IsConnected() {
			for _, topic := range twinSubscribeTopics() {
				if err := b.mqtt.Unsubscribe(topic); err != nil {
					b.logWarn("failed to unsubscribe from twin events", "topic", topic, "error", err)
				}
			}
		}

		b.lanesMu.Lock()
		b.stopping = true
		b.lanesMu.Unlock()

		close(b.done)
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Reload applies the profile currently held by the store: cache entries
// of removed devices are dropped and the twin of every device is requested
// again, so pending expected values are re-applied.
func (b *Bridge) Reload(ctx context.Context) {
	snap := b.store.Load()

	valid := make(map[string]struct{}, snap.DeviceCount())
	for _, inst := range snap.Instances() {
		valid[inst.ID] = struct{}{}
	}
	for _, id := range b.cache.DeviceIDs() {
		if _, ok := valid[id]; !ok {
			b.metrics.forgetDevice(id)
		}
	}
	removed := b.cache.Prune(valid)
	b.closeLanes(valid)

	b.health.SetDeviceCount(snap.DeviceCount())
	if ctx.Err() == nil {
		b.requestTwins(snap)
	}

	b.logInfo("device profile reloaded",
		"devices", snap.DeviceCount(),
		"visitors", snap.VisitorCount(),
		"pruned_devices", removed)
}

// Cache returns the actual value cache.
func (b *Bridge) Cache() *ActualValueCache {
	return b.cache
}

// requestTwins publishes a twin-get request for every device instance.
func (b *Bridge) requestTwins(snap *Snapshot) {
	for _, inst := range snap.Instances() {
		payload, err := json.Marshal(NewTwinGetRequest(time.Now()))
		if err != nil {
			b.logError("failed to marshal twin-get request", err)
			continue
		}
		if err := b.mqtt.Publish(TwinGetTopic(inst.ID), payload, twinQoS, false); err != nil {
			b.logWarn("failed to request twin", "device_id", inst.ID, "error", err)
			continue
		}
		b.metrics.observePublish(publishTwinGet)
	}
}

// twinLane identifies the worker that handles one kind of twin message
// for one device.
type twinLane struct {
	deviceID string
	delta    bool
}

type twinTask struct {
	topic   string
	payload []byte
}

// handleMQTTMessage routes inbound twin events to the lane of their device
// and returns without waiting for them to be handled.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	select {
	case <-b.done:
		return
	default:
	}

	var lane twinLane
	switch {
	case isTwinGetResult(topic):
	case isTwinDelta(topic):
		lane.delta = true
	default:
		b.logWarn("dropping message on unexpected topic", "topic", topic)
		return
	}

	deviceID, err := DeviceIDFromTopic(topic)
	if err != nil {
		b.logWarn("dropping twin message", "topic", topic, "error", err)
		return
	}
	if _, ok := b.store.Load().Instance(deviceID); !ok {
		b.logWarn("dropping twin message for unknown device", "device_id", deviceID)
		return
	}
	lane.deviceID = deviceID

	b.enqueue(lane, twinTask{topic: topic, payload: payload})
}

// enqueue hands task to the worker of lane, starting the worker on first
// use. A full lane drops the message.
func (b *Bridge) enqueue(lane twinLane, task twinTask) {
	b.lanesMu.Lock()
	defer b.lanesMu.Unlock()

	if b.stopping {
		return
	}
	q, ok := b.lanes[lane]
	if !ok {
		q = make(chan twinTask, twinQueueSize)
		b.lanes[lane] = q
		b.wg.Add(1)
		go b.runLane(lane, q)
	}

	b.queued.Add(1)
	select {
	case q <- task:
	default:
		b.queued.Done()
		b.logWarn("twin queue full, dropping message", "device_id", lane.deviceID, "topic", task.topic)
	}
}

// runLane handles the messages of one lane in arrival order until the lane
// is closed or the bridge stops.
func (b *Bridge) runLane(lane twinLane, q <-chan twinTask) {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case task, ok := <-q:
			if !ok {
				return
			}
			if lane.delta {
				b.handleTwinDelta(task.topic, task.payload)
			} else {
				b.handleTwinGetResult(task.topic, task.payload)
			}
			b.queued.Done()
		}
	}
}

// closeLanes stops the workers of devices missing from valid.
func (b *Bridge) closeLanes(valid map[string]struct{}) {
	b.lanesMu.Lock()
	defer b.lanesMu.Unlock()

	for lane, q := range b.lanes {
		if _, ok := valid[lane.deviceID]; !ok {
			close(q)
			delete(b.lanes, lane)
		}
	}
}

// handleTwinGetResult writes every expected value the device has not
// acknowledged yet, then reads the property back.
func (b *Bridge) handleTwinGetResult(topic string, payload []byte) {
	deviceID, err := DeviceIDFromTopic(topic)
	if err != nil {
		b.logWarn("dropping twin result", "topic", topic, "error", err)
		return
	}

	snap := b.store.Load()
	inst, model, proto, err := snap.Resolve(deviceID)
	if err != nil {
		b.logWarn("dropping twin result for unknown device", "device_id", deviceID)
		return
	}

	var result DeviceTwinResult
	if err := json.Unmarshal(payload, &result); err != nil {
		b.logWarn("dropping malformed twin result", "topic", topic, "error", err)
		return
	}
	if result.Code == twinNotFoundCode || result.Twin == nil {
		b.logDebug("twin result carries no twin", "device_id", deviceID, "code", result.Code)
		return
	}

	pending := result.PendingExpecteds()
	for _, name := range sortedKeys(pending) {
		expected := pending[name]
		if cached, ok := b.cache.Get(deviceID, name); ok && cached == expected {
			continue
		}

		dataType := result.Twin[name].DeclaredType()
		if err := b.writeProperty(b.ctx, snap, inst, model, proto, name, dataType, expected); err != nil {
			b.logWriteError(deviceID, name, err)
			continue
		}
		b.reconcile(b.ctx, snap, inst, model, proto, name)
	}
}

// handleTwinDelta writes expected values that are newer than the actual
// value and differ from it. Stale or duplicate deltas are ignored.
func (b *Bridge) handleTwinDelta(topic string, payload []byte) {
	deviceID, err := DeviceIDFromTopic(topic)
	if err != nil {
		b.logWarn("dropping twin delta", "topic", topic, "error", err)
		return
	}

	snap := b.store.Load()
	inst, model, proto, err := snap.Resolve(deviceID)
	if err != nil {
		b.logWarn("dropping twin delta for unknown device", "device_id", deviceID)
		return
	}

	var delta DeviceTwinDelta
	if err := json.Unmarshal(payload, &delta); err != nil {
		b.logWarn("dropping malformed twin delta", "topic", topic, "error", err)
		return
	}

	for _, name := range sortedKeys(delta.Delta) {
		twin, ok := delta.Twin[name]
		if !ok || twin == nil {
			b.logWarn("delta names a property missing from the twin", "device_id", deviceID, "property", name)
			continue
		}
		expected, ok := SyncExpected(twin)
		if !ok {
			b.logDebug("ignoring stale delta", "device_id", deviceID, "property", name)
			continue
		}
		if err := b.writeProperty(b.ctx, snap, inst, model, proto, name, twin.DeclaredType(), expected); err != nil {
			b.logWriteError(deviceID, name, err)
		}
	}
}

// writeProperty encodes value and writes it to the property's registers.
// dataType falls back to the model property type when empty.
func (b *Bridge) writeProperty(ctx context.Context, snap *Snapshot, inst DeviceInstance, model DeviceModel, proto Protocol, name, dataType, value string) error {
	prop, ok := model.Property(name)
	if !ok {
		return fmt.Errorf("%w: model %s has no property %s", ErrVisitorNotFound, model.Name, name)
	}
	visitor, ok := snap.Visitor(model.Name, name, proto.Kind)
	if !ok {
		return fmt.Errorf("%w: %s/%s/%s", ErrVisitorNotFound, model.Name, name, proto.Family())
	}
	if dataType == "" {
		dataType = prop.DataType
	}

	raw, err := ValueToRaw(visitor, dataType, value)
	if err != nil {
		return err
	}

	err = b.transport.Write(ctx, proto, visitor, raw)
	b.metrics.observeTransaction(opWrite, err)
	if err != nil {
		return err
	}

	b.logInfo("wrote expected value",
		"device_id", inst.ID,
		"property", name,
		"value", value)
	return nil
}

// reconcile reads a property back after a write and publishes it if it
// changed.
func (b *Bridge) reconcile(ctx context.Context, snap *Snapshot, inst DeviceInstance, model DeviceModel, proto Protocol, name string) {
	prop, ok := model.Property(name)
	if !ok {
		return
	}
	visitor, ok := snap.Visitor(model.Name, name, proto.Kind)
	if !ok {
		return
	}
	value, err := b.readProperty(ctx, proto, visitor, prop)
	if err != nil {
		b.logWarn("read-back after write failed", "device_id", inst.ID, "property", name, "error", err)
		return
	}
	b.reportActual(ctx, inst.ID, prop, value)
}

func (b *Bridge) logWriteError(deviceID, property string, err error) {
	if errors.Is(err, ErrNoValue) {
		b.logDebug("expected value has nothing to write", "device_id", deviceID, "property", property)
		return
	}
	b.logWarn("failed to write expected value", "device_id", deviceID, "property", property, "error", err)
}

// pollLoop runs one poll round per interval until shutdown.
func (b *Bridge) pollLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			b.PollOnce(ctx)
		}
	}
}

// PollOnce starts one poll cycle for every device whose previous cycle
// has finished. Cycles run concurrently so a slow device never delays
// the others. It does not wait for the cycles to complete; Stop cancels
// the ones still running.
func (b *Bridge) PollOnce(ctx context.Context) {
	snap := b.store.Load()
	for _, inst := range snap.Instances() {
		if !b.beginPoll(inst.ID) {
			b.metrics.observeSkippedPoll()
			b.logDebug("previous poll still running", "device_id", inst.ID)
			continue
		}
		b.wg.Add(1)
		go func(inst DeviceInstance) {
			defer b.wg.Done()
			defer b.endPoll(inst.ID)

			cycleCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			stop := context.AfterFunc(b.ctx, cancel)
			defer stop()

			b.pollDevice(cycleCtx, snap, inst)
		}(inst)
	}
}

func (b *Bridge) beginPoll(deviceID string) bool {
	b.inFlightMu.Lock()
	defer b.inFlightMu.Unlock()

	if _, busy := b.inFlight[deviceID]; busy {
		return false
	}
	b.inFlight[deviceID] = struct{}{}
	return true
}

func (b *Bridge) endPoll(deviceID string) {
	b.inFlightMu.Lock()
	delete(b.inFlight, deviceID)
	b.inFlightMu.Unlock()
}

// pollDevice reads every property of a device in model order, publishes
// changed values, and ends with the direct snapshot of the cycle.
func (b *Bridge) pollDevice(ctx context.Context, snap *Snapshot, inst DeviceInstance) {
	start := time.Now()
	b.pollCycles.Add(1)

	_, model, proto, err := snap.Resolve(inst.ID)
	if err != nil {
		return
	}

	data := make(map[string]string, len(model.Properties))
	attempted, failed := 0, 0
	for _, prop := range model.Properties {
		if ctx.Err() != nil {
			return
		}
		visitor, ok := snap.Visitor(model.Name, prop.Name, proto.Kind)
		if !ok {
			continue
		}
		attempted++

		value, err := b.readProperty(ctx, proto, visitor, prop)
		if err != nil {
			failed++
			b.logWarn("failed to read property",
				"device_id", inst.ID,
				"property", prop.Name,
				"error", err)
			continue
		}
		data[prop.Name] = value.String()
		b.reportActual(ctx, inst.ID, prop, value)
	}

	if attempted == 0 {
		return
	}

	b.publishDirect(inst, data)
	b.metrics.observePoll(time.Since(start))
	if b.status != nil {
		b.status.RecordPoll(inst.ID, attempted-failed, failed, time.Now())
	}
}

// readProperty reads and decodes one property.
func (b *Bridge) readProperty(ctx context.Context, proto Protocol, visitor VisitorConfig, prop Property) (Value, error) {
	raw, err := b.transport.Read(ctx, proto, visitor)
	b.metrics.observeTransaction(opRead, err)
	if err != nil {
		return Value{}, err
	}
	return RawToValue(visitor, prop, raw)
}

// reportActual publishes value when it differs from the cached actual.
func (b *Bridge) reportActual(ctx context.Context, deviceID string, prop Property, value Value) {
	if value.Clamped {
		b.metrics.observeClamp()
		b.logInfo("read value outside property range, using bound",
			"device_id", deviceID,
			"property", prop.Name,
			"value", value.String())
	}

	text := value.String()
	if !b.cache.CompareAndSet(deviceID, prop.Name, text) {
		return
	}

	now := time.Now()
	payload, err := json.Marshal(NewActualUpdate(prop.Name, prop.DataType, text, now))
	if err != nil {
		b.cache.Forget(deviceID, prop.Name)
		b.logError("failed to marshal twin update", err)
		return
	}
	if err := b.mqtt.Publish(TwinUpdateTopic(deviceID), payload, twinQoS, false); err != nil {
		// Publish again on the next cycle.
		b.cache.Forget(deviceID, prop.Name)
		b.logWarn("failed to publish actual value", "device_id", deviceID, "property", prop.Name, "error", err)
		return
	}
	b.published.Add(1)
	b.metrics.observePublish(publishTwinUpdate)
	b.logDebug("published actual value", "device_id", deviceID, "property", prop.Name, "value", text)

	if n, ok := value.Numeric(); ok {
		b.metrics.setPropertyValue(deviceID, prop.Name, n)
		if b.telemetry != nil {
			b.telemetry.WritePropertyValue(deviceID, prop.Name, n, now)
		}
	}
	if b.history != nil {
		if err := b.history.RecordPropertyValue(ctx, deviceID, prop.Name, prop.DataType, text, now); err != nil {
			b.logWarn("failed to record property history", "device_id", deviceID, "property", prop.Name, "error", err)
		}
	}
	if b.broadcaster != nil {
		b.broadcaster.Broadcast(WSChannelPropertyChanged, PropertyChange{
			DeviceID:  deviceID,
			Property:  prop.Name,
			DataType:  prop.DataType,
			Value:     text,
			Timestamp: now.UnixMilli(),
		})
	}
}

// publishDirect publishes the aggregated snapshot of one poll cycle.
func (b *Bridge) publishDirect(inst DeviceInstance, data map[string]string) {
	payload, err := json.Marshal(NewDirectSnapshot(inst.ID, inst.Name, data, time.Now()))
	if err != nil {
		b.logError("failed to marshal direct snapshot", err)
		return
	}
	if err := b.mqtt.Publish(DirectGetTopic(inst.ID), payload, twinQoS, false); err != nil {
		b.logWarn("failed to publish direct snapshot", "device_id", inst.ID, "error", err)
		return
	}
	b.metrics.observePublish(publishDirect)
}

func twinSubscribeTopics() []string {
	return []string{TwinGetResultSubscribeTopic(), TwinDeltaSubscribeTopic()}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// BridgeMetrics contains metrics data for the API metrics endpoint.
type BridgeMetrics struct {
	Connected      bool
	Status         string
	Reads          uint64
	Writes         uint64
	Failures       uint64
	Published      uint64
	PollCycles     uint64
	CachedValues   int
	DevicesManaged int
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() BridgeMetrics {
	var stats TransportStats
	if sp, ok := b.transport.(statsProvider); ok {
		stats = sp.Stats()
	}

	connected := b.mqtt.IsConnected()
	status := "disconnected"
	if connected {
		status = string(HealthHealthy)
	}

	return BridgeMetrics{
		Connected:      connected,
		Status:         status,
		Reads:          stats.Reads,
		Writes:         stats.Writes,
		Failures:       stats.Failures,
		Published:      b.published.Load(),
		PollCycles:     b.pollCycles.Load(),
		CachedValues:   b.cache.Len(),
		DevicesManaged: b.store.Load().DeviceCount(),
	}
}

// HealthReporter returns the reporter so callers can register its LWT.
func (b *Bridge) HealthReporter() *HealthReporter {
	return b.health
}
