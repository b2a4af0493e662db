// Package influxdb writes numeric property values to InfluxDB v2 so
// device readings can be graphed over time.
//
// Each reported value becomes one point:
//
//	measurement: modbus_property
//	tags:        device_id, property
//	field:       value (float)
//
// Writes are batched (batch_size, flush_interval) and non-blocking.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//	client.WritePropertyValue("thermostat-01", "temperature", 21.5, time.Now())
package influxdb
