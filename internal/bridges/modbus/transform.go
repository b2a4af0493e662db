package modbus

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a decoded property value.
type Value struct {
	DataType string
	Int      int64
	Float    float64
	Str      string
	Bool     bool

	// Clamped is set when the decoded number was replaced by a bound.
	Clamped bool
}

// String returns the textual form published to the twin.
func (v Value) String() string {
	switch v.DataType {
	case DataTypeInt:
		return strconv.FormatInt(v.Int, 10)
	case DataTypeFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case DataTypeBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// Numeric returns the value as a float for telemetry. Strings are not numeric.
func (v Value) Numeric() (float64, bool) {
	switch v.DataType {
	case DataTypeInt:
		return float64(v.Int), true
	case DataTypeFloat:
		return v.Float, true
	case DataTypeBoolean:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// RawToValue converts raw register data into a typed property value.
//
// Word order is reversed first when IsRegisterSwap is set, then bytes are
// swapped within each word when IsSwap is set on a Holding or Input
// register. Numbers are scaled, truncated for int, then clamped to the
// property bounds.
//
// Parameters:
//   - v: Visitor configuration of the property
//   - p: Property definition (data type and bounds)
//   - raw: Registers or bits returned by the transport
//
// Returns:
//   - Value: Decoded value
//   - error: ErrNoValue, ErrUnknownDataType, ErrInvalidValue for an int
//     outside the int64 range, or a codec error
func RawToValue(v VisitorConfig, p Property, raw []uint16) (Value, error) {
	data := raw
	if v.IsRegisterSwap {
		data = ReverseWords(data)
	}
	if v.IsSwap && v.Register.IsWord() {
		data = SwapWordBytes(data)
	}

	switch p.DataType {
	case DataTypeInt, DataTypeFloat:
		return decodeNumeric(v, p, data)

	case DataTypeString:
		b := make([]byte, len(data))
		for i, w := range data {
			b[i] = byte(w)
		}
		s := strings.TrimRight(string(b), "\x00")
		return Value{DataType: DataTypeString, Str: strings.ToValidUTF8(s, "�")}, nil

	case DataTypeBoolean:
		if len(data) == 0 || data[0] > 1 {
			return Value{}, ErrNoValue
		}
		return Value{DataType: DataTypeBoolean, Bool: data[0] == 1}, nil

	default:
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownDataType, p.DataType)
	}
}

func decodeNumeric(v VisitorConfig, p Property, data []uint16) (Value, error) {
	var (
		n   uint64
		err error
	)
	switch {
	case v.Register.IsBit():
		n, err = BitsToInt(data)
	case v.Register.IsWord():
		n, err = WordsToInt(data)
	default:
		return Value{}, fmt.Errorf("%w: %q", ErrUnsupportedRegisterRead, v.Register)
	}
	if err != nil {
		return Value{}, err
	}

	f := float64(n)
	if v.Scale != 0 {
		f *= float64(v.Scale)
	}
	if p.DataType == DataTypeInt {
		f = math.Trunc(f)
	}

	out := Value{DataType: p.DataType}
	switch {
	case p.Maximum.Set && f > p.Maximum.Value:
		f = boundFor(p.DataType, p.Maximum.Value)
		out.Clamped = true
	case p.Minimum.Set && f < p.Minimum.Value:
		f = boundFor(p.DataType, p.Minimum.Value)
		out.Clamped = true
	}

	if p.DataType == DataTypeInt {
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if f >= math.MaxInt64 || f < math.MinInt64 {
			return Value{}, fmt.Errorf("%w: %.0f does not fit an int", ErrInvalidValue, f)
		}
		out.Int = int64(f)
	}
	out.Float = f
	return out, nil
}

func boundFor(dataType string, bound float64) float64 {
	if dataType == DataTypeInt {
		return math.Trunc(bound)
	}
	return bound
}

// ValueToRaw converts a twin value into the registers to write.
//
// Numbers are parsed and truncated to an integer. Coil targets receive the
// binary digits of the number; Holding targets receive the word encoding
// left-padded to the visitor offset. Word order is reversed when
// IsRegisterSwap is set. IsSwap is not applied on writes.
//
// Parameters:
//   - v: Visitor configuration of the property
//   - dataType: Data type of the twin value
//   - value: Textual twin value
//
// Returns:
//   - []uint16: Registers or coil states to write
//   - error: ErrNoValue when the value cannot be encoded; no write must follow
func ValueToRaw(v VisitorConfig, dataType string, value string) ([]uint16, error) {
	if !v.Register.Writable() {
		return nil, fmt.Errorf("%w: %q", ErrRegisterNotWritable, v.Register)
	}

	var (
		out []uint16
		err error
	)
	switch dataType {
	case DataTypeInt, DataTypeFloat:
		out, err = encodeNumeric(v, value)
		if err != nil {
			return nil, err
		}

	case DataTypeString:
		if value == "" {
			return nil, fmt.Errorf("%w: empty string", ErrNoValue)
		}
		out = make([]uint16, len(value))
		for i := 0; i < len(value); i++ {
			out[i] = uint16(value[i])
		}

	case DataTypeBoolean:
		switch value {
		case "true":
			out = []uint16{1}
		case "false":
			out = []uint16{0}
		default:
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrNoValue, value)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataType, dataType)
	}

	if v.IsRegisterSwap {
		out = ReverseWords(out)
	}
	return out, nil
}

func encodeNumeric(v VisitorConfig, value string) ([]uint16, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %q is not a number", ErrNoValue, value)
	}
	f = math.Trunc(f)
	if f < 0 || f >= 1<<64 {
		return nil, fmt.Errorf("%w: %q cannot be encoded unsigned", ErrInvalidValue, value)
	}
	n := uint64(f)

	if v.Register == CoilRegister {
		return IntToBits(n), nil
	}
	return PadWords(IntToWords(n), int(v.Offset))
}
