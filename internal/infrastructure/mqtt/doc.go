// Package mqtt provides the broker connection used by the Modbus mapper.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and payload size checks
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - Presence on a retained status topic (online, offline, last will)
//
// The mapper exchanges device-twin messages with the edge hub over this
// connection:
//
//	Modbus devices ↔ mapper ↔ MQTT broker ↔ edge hub (device twins)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Presence{
//	    Topic: statusTopic,
//	    Will:  willPayload,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("$hw/events/device/+/twin/update/delta", 0,
//	    func(topic string, payload []byte) error {
//	        return handleDelta(topic, payload)
//	    })
//
// TLS should be enabled when the broker is not on the local host.
package mqtt
