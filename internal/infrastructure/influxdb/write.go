package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// PropertyMeasurement is the measurement holding reported property values.
const PropertyMeasurement = "modbus_property"

// WritePropertyValue records a numeric property reading.
//
// Only numeric values are written; the mapper skips string properties
// before calling this. The write is batched and non-blocking.
//
// Parameters:
//   - deviceID: Device instance ID (e.g., "thermostat-01")
//   - property: Property name (e.g., "temperature")
//   - value: Decoded engineering value
//   - at: Time the value was read
func (c *Client) WritePropertyValue(deviceID, property string, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(propertyPoint(deviceID, property, value, at))
}

// propertyPoint builds the point written by WritePropertyValue.
func propertyPoint(deviceID, property string, value float64, at time.Time) *write.Point {
	return write.NewPoint(
		PropertyMeasurement,
		map[string]string{
			"device_id": deviceID,
			"property":  property,
		},
		map[string]interface{}{
			"value": value,
		},
		at,
	)
}
