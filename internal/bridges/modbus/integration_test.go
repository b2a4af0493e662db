package modbus

import (
	"context"
	"io"
	"testing"
	"time"

	gomodbus "github.com/goburrow/modbus"
)

// The bridge runs against the goburrow-backed transport with an in-memory
// register bank standing in for the device.

func TestIntegrationDeltaThenPoll(t *testing.T) {
	bank := newFakeClient()
	bank.holding[0] = 215

	transport := NewModbusTransport(TransportOptions{
		Connector: func(ctx context.Context, p Protocol) (gomodbus.Client, io.Closer, error) {
			return bank, io.NopCloser(nil), nil
		},
	})
	mqtt := NewMockMQTTClient()
	store := NewProfileStore(mustSnapshot(t, bridgeProfile))

	b, err := NewBridge(BridgeOptions{
		Store:          store,
		MQTTClient:     mqtt,
		Transport:      transport,
		MapperID:       "it",
		PollInterval:   50 * time.Millisecond,
		HealthInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	t.Run("delta writes the holding register", func(t *testing.T) {
		mqtt.SimulateMessage("$hw/events/device/thermo-1/twin/update/delta", []byte(`{
			"twin": {"setpoint": {"expected": {"value": "24"}, "metadata": {"type": "int"}}},
			"delta": {"setpoint": "24"}}`))
		b.queued.Wait()

		bank.mu.Lock()
		got := bank.holding[1]
		bank.mu.Unlock()
		if got != 24 {
			t.Errorf("holding[1] = %d, want 24", got)
		}
	})

	t.Run("poll reports the written value", func(t *testing.T) {
		deadline := time.After(5 * time.Second)
		for {
			if v, ok := b.Cache().Get("thermo-1", "setpoint"); ok && v == "24" {
				break
			}
			select {
			case <-deadline:
				t.Fatal("setpoint never reported")
			case <-time.After(20 * time.Millisecond):
			}
		}
		if v, _ := b.Cache().Get("thermo-1", "temperature"); v != "21" {
			t.Errorf("temperature = %q, want 21", v)
		}
	})

	if stats := transport.Stats(); stats.Writes != 1 || stats.Failures != 0 {
		t.Errorf("transport stats = %+v", stats)
	}
}
