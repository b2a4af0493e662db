package modbus

import "errors"

// Domain errors for the Modbus mapper bridge.
var (
	// ErrInvalidLength is returned when a codec input has a length outside
	// the range the transform supports.
	ErrInvalidLength = errors.New("modbus: invalid input length")

	// ErrInvalidValue is returned when an element or textual value cannot be
	// represented in the requested encoding.
	ErrInvalidValue = errors.New("modbus: invalid value")

	// ErrValueTooWide is returned when an encoded value needs more registers
	// than the visitor's offset allows.
	ErrValueTooWide = errors.New("modbus: value wider than register offset")

	// ErrNoValue is returned when raw data or a twin value does not map to a
	// property value. The property is left unsynchronised for this cycle.
	ErrNoValue = errors.New("modbus: no value")

	// ErrUnknownDataType is returned for property data types other than
	// int, float, string and boolean.
	ErrUnknownDataType = errors.New("modbus: unknown data type")

	// ErrUnsupportedRegisterRead is returned when a visitor names a register
	// kind that cannot be read.
	ErrUnsupportedRegisterRead = errors.New("modbus: unsupported register for read")

	// ErrRegisterNotWritable is returned when a write targets a read-only
	// register kind.
	ErrRegisterNotWritable = errors.New("modbus: register not writable")

	// ErrUnknownProtocol is returned for protocol kinds other than
	// modbus-tcp and modbus-rtu.
	ErrUnknownProtocol = errors.New("modbus: unknown protocol")

	// ErrTransactionFailed wraps errors raised by the Modbus client.
	ErrTransactionFailed = errors.New("modbus: transaction failed")

	// ErrInvalidProfile is returned when the device profile document cannot
	// be decoded.
	ErrInvalidProfile = errors.New("modbus: invalid device profile")

	// ErrDeviceNotFound is returned when a device instance is not present in
	// the current profile snapshot.
	ErrDeviceNotFound = errors.New("modbus: device not found")

	// ErrVisitorNotFound is returned when no property visitor matches a
	// (model, property, protocol family) key.
	ErrVisitorNotFound = errors.New("modbus: property visitor not found")

	// ErrInvalidTopic is returned when a twin topic does not carry a device
	// identifier in the expected position.
	ErrInvalidTopic = errors.New("modbus: invalid twin topic")
)
