package modbus

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	gomodbus "github.com/goburrow/modbus"
)

// Transport timing defaults.
const (
	// DefaultResponseTimeout bounds each Modbus request/response exchange.
	DefaultResponseTimeout = 500 * time.Millisecond

	// DefaultRTUSettleDelay is waited before opening a serial port so the
	// hardware settles after the previous close.
	DefaultRTUSettleDelay = 100 * time.Millisecond

	defaultRTUBaudRate = 9600
	defaultRTUDataBits = 8
	defaultRTUStopBits = 1
	defaultRTUParity   = "N"
)

// Transport performs one register operation per call against a device link.
type Transport interface {
	// Read returns one bit for Coil/DiscreteInput registers, or Offset
	// registers for Holding/Input registers.
	Read(ctx context.Context, p Protocol, v VisitorConfig) ([]uint16, error)

	// Write writes coil states or registers starting at the visitor index.
	Write(ctx context.Context, p Protocol, v VisitorConfig, data []uint16) error
}

// Connector opens a link and returns a client plus the handle that closes it.
type Connector func(ctx context.Context, p Protocol) (gomodbus.Client, io.Closer, error)

// TransportStats counts transactions since start.
type TransportStats struct {
	Reads    uint64
	Writes   uint64
	Failures uint64
}

// ModbusTransport implements Transport with goburrow/modbus. Every call
// opens a fresh connection and closes it before returning; connections are
// never pooled.
//
// Thread Safety: safe for concurrent use. Calls sharing a link key are
// serialised through LinkLocks.
type ModbusTransport struct {
	connect Connector
	links   *LinkLocks

	reads    atomic.Uint64
	writes   atomic.Uint64
	failures atomic.Uint64
}

// TransportOptions configures a ModbusTransport.
type TransportOptions struct {
	// ResponseTimeout bounds each exchange. Default: 500ms.
	ResponseTimeout time.Duration

	// RTUSettleDelay is waited before opening a serial port. Default: 100ms.
	RTUSettleDelay time.Duration

	// Links is the shared lock table. A new table is created when nil.
	Links *LinkLocks

	// Connector replaces the goburrow connector, mainly for tests.
	Connector Connector
}

// NewModbusTransport creates a transport.
func NewModbusTransport(opts TransportOptions) *ModbusTransport {
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}
	if opts.RTUSettleDelay < 0 {
		opts.RTUSettleDelay = 0
	}
	if opts.Links == nil {
		opts.Links = NewLinkLocks()
	}
	if opts.Connector == nil {
		opts.Connector = goburrowConnector(opts.ResponseTimeout, opts.RTUSettleDelay)
	}
	return &ModbusTransport{
		connect: opts.Connector,
		links:   opts.Links,
	}
}

// Read implements Transport.
func (t *ModbusTransport) Read(ctx context.Context, p Protocol, v VisitorConfig) ([]uint16, error) {
	if !v.Register.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRegisterRead, v.Register)
	}

	var out []uint16
	err := t.transact(ctx, p, func(c gomodbus.Client) error {
		addr, qty := uint16(v.Index), uint16(v.Offset)
		var (
			res []byte
			err error
		)
		switch v.Register {
		case CoilRegister:
			res, err = c.ReadCoils(addr, qty)
		case DiscreteInputRegister:
			res, err = c.ReadDiscreteInputs(addr, qty)
		case HoldingRegister:
			res, err = c.ReadHoldingRegisters(addr, qty)
		case InputRegister:
			res, err = c.ReadInputRegisters(addr, qty)
		}
		if err != nil {
			return err
		}

		if v.Register.IsBit() {
			bit, err := firstCoil(res)
			if err != nil {
				return err
			}
			out = []uint16{bit}
			return nil
		}
		words, err := wordsFromBytes(res)
		if err != nil {
			return err
		}
		if len(words) != int(v.Offset) {
			return fmt.Errorf("%w: got %d registers, want %d", ErrInvalidLength, len(words), v.Offset)
		}
		out = words
		return nil
	})
	t.reads.Add(1)
	if err != nil {
		t.failures.Add(1)
		return nil, err
	}
	return out, nil
}

// Write implements Transport.
func (t *ModbusTransport) Write(ctx context.Context, p Protocol, v VisitorConfig, data []uint16) error {
	if !v.Register.Writable() {
		return fmt.Errorf("%w: %q", ErrRegisterNotWritable, v.Register)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: nothing to write", ErrInvalidLength)
	}

	err := t.transact(ctx, p, func(c gomodbus.Client) error {
		addr, qty := uint16(v.Index), uint16(len(data))
		var err error
		switch v.Register {
		case CoilRegister:
			_, err = c.WriteMultipleCoils(addr, qty, packCoils(data))
		case HoldingRegister:
			_, err = c.WriteMultipleRegisters(addr, qty, bytesFromWords(data))
		}
		return err
	})
	t.writes.Add(1)
	if err != nil {
		t.failures.Add(1)
	}
	return err
}

// Stats returns transaction counters.
func (t *ModbusTransport) Stats() TransportStats {
	return TransportStats{
		Reads:    t.reads.Load(),
		Writes:   t.writes.Load(),
		Failures: t.failures.Load(),
	}
}

// transact holds the link lock, connects, runs op and closes the link.
func (t *ModbusTransport) transact(ctx context.Context, p Protocol, op func(gomodbus.Client) error) error {
	unlock := t.links.Lock(p.LinkKey())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	client, closer, err := t.connect(ctx, p)
	if err != nil {
		return fmt.Errorf("%w: connect %s: %w", ErrTransactionFailed, p.Address(), err)
	}
	defer closer.Close() //nolint:errcheck // Link is discarded either way

	if err := op(client); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransactionFailed, p.Address(), err)
	}
	return nil
}

// goburrowConnector builds TCP and RTU handlers from protocol config.
func goburrowConnector(timeout, settle time.Duration) Connector {
	return func(ctx context.Context, p Protocol) (gomodbus.Client, io.Closer, error) {
		switch p.Kind {
		case ProtocolModbusTCP:
			handler := gomodbus.NewTCPClientHandler(p.Address())
			handler.Timeout = timeout
			handler.SlaveId = byte(p.Config.SlaveID)
			if err := handler.Connect(); err != nil {
				return nil, nil, err
			}
			return gomodbus.NewClient(handler), handler, nil

		case ProtocolModbusRTU:
			if settle > 0 {
				timer := time.NewTimer(settle)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, nil, ctx.Err()
				case <-timer.C:
				}
			}
			handler := gomodbus.NewRTUClientHandler(p.Config.SerialPort)
			handler.BaudRate = intOr(int(p.Config.BaudRate), defaultRTUBaudRate)
			handler.DataBits = intOr(int(p.Config.DataBits), defaultRTUDataBits)
			handler.StopBits = intOr(int(p.Config.StopBits), defaultRTUStopBits)
			handler.Parity = defaultRTUParity
			if p.Config.Parity != "" {
				handler.Parity = p.Config.Parity
			}
			handler.Timeout = timeout
			handler.SlaveId = byte(p.Config.SlaveID)
			if err := handler.Connect(); err != nil {
				return nil, nil, err
			}
			return gomodbus.NewClient(handler), handler, nil

		default:
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, p.Kind)
		}
	}
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
