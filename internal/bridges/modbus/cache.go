package modbus

import "sync"

// ActualValueCache holds the last published actual value per device
// property. It decides whether a freshly read value must be published.
//
// Thread Safety: All methods are safe for concurrent use.
type ActualValueCache struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// NewActualValueCache creates an empty cache.
func NewActualValueCache() *ActualValueCache {
	return &ActualValueCache{values: make(map[string]map[string]string)}
}

// Get returns the cached value of a device property.
func (c *ActualValueCache) Get(deviceID, property string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[deviceID][property]
	return v, ok
}

// CompareAndSet stores value and reports whether it differs from the
// cached one. An absent entry counts as changed.
func (c *ActualValueCache) CompareAndSet(deviceID, property, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	props := c.values[deviceID]
	if props == nil {
		props = make(map[string]string)
		c.values[deviceID] = props
	}
	if cached, ok := props[property]; ok && cached == value {
		return false
	}
	props[property] = value
	return true
}

// Forget drops one property so the next read publishes again.
func (c *ActualValueCache) Forget(deviceID, property string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if props := c.values[deviceID]; props != nil {
		delete(props, property)
	}
}

// Device returns a copy of every cached property of a device.
func (c *ActualValueCache) Device(deviceID string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	props := c.values[deviceID]
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// DeviceIDs returns the devices with at least one cached value.
func (c *ActualValueCache) DeviceIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.values))
	for id := range c.values {
		ids = append(ids, id)
	}
	return ids
}

// Delete removes every entry of a device.
func (c *ActualValueCache) Delete(deviceID string) {
	c.mu.Lock()
	delete(c.values, deviceID)
	c.mu.Unlock()
}

// Prune removes entries of devices not in validIDs and returns how many
// devices were dropped.
func (c *ActualValueCache) Prune(validIDs map[string]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id := range c.values {
		if _, ok := validIDs[id]; !ok {
			delete(c.values, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached property values.
func (c *ActualValueCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, props := range c.values {
		n += len(props)
	}
	return n
}
