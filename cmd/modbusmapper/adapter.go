package main

import (
	"errors"
	"sync/atomic"

	"github.com/nerrad567/modbus-mapper/internal/infrastructure/mqtt"
)

// errMQTTUnbound is returned when the bridge publishes before the MQTT
// client has been bound to the adapter.
var errMQTTUnbound = errors.New("mqtt client not bound")

// mqttBridgeAdapter adapts mqtt.Client to the bridge's MQTTClient interface.
//
// The bridge handlers are fire-and-forget while mqtt.MessageHandler
// returns an error, so Subscribe wraps them. The client is bound after the
// bridge exists because the connection needs the bridge's last will.
type mqttBridgeAdapter struct {
	client atomic.Pointer[mqtt.Client]
}

// bind attaches the connected client.
func (a *mqttBridgeAdapter) bind(client *mqtt.Client) {
	a.client.Store(client)
}

// Publish implements modbus.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	c := a.client.Load()
	if c == nil {
		return errMQTTUnbound
	}
	return c.Publish(topic, payload, qos, retained)
}

// Subscribe implements modbus.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	c := a.client.Load()
	if c == nil {
		return errMQTTUnbound
	}
	return c.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements modbus.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	c := a.client.Load()
	if c == nil {
		return errMQTTUnbound
	}
	return c.Unsubscribe(topic)
}

// IsConnected implements modbus.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	c := a.client.Load()
	return c != nil && c.IsConnected()
}
