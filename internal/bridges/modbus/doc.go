// Package modbus implements the Modbus device mapper.
//
// The mapper keeps a device twin, held by an external twin store reached
// over MQTT, synchronised with the registers of Modbus TCP and RTU devices.
// Actual values flow from registers to the twin; expected values flow from
// the twin down to registers.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Twin Store    │   MQTT   │  Modbus Mapper  │  TCP / RTU
//	│                 │◄────────►│   (this pkg)    │◄────────► Devices
//	└─────────────────┘          └─────────────────┘
//
// # Components
//
//   - Codec (codec.go): bits, bytes and 16-bit words to integers and back
//   - Value transformer (transform.go): register data to typed values with
//     scaling and range clamping, and typed values to register data
//   - Transport (transport.go): one connect/operation/close per call over
//     goburrow/modbus, serialised per physical link
//   - Device profile (profile.go, watcher.go): the JSON profile compiled into
//     an immutable Snapshot, swapped atomically on reload
//   - Bridge (bridge.go): twin-get, twin delta and periodic poll flows with
//     an actual value cache for change detection
//
// # Topics
//
//	$hw/events/device/{id}/twin/get            request twin (publish)
//	$hw/events/device/+/twin/get/result        twin snapshot (subscribe)
//	$hw/events/device/+/twin/update/delta      expected changes (subscribe)
//	$hw/events/device/{id}/twin/update         actual values (publish)
//	$hw/devices/{id}/events/properties/get     per-cycle snapshot (publish)
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package modbus
