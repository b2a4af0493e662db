package modbus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// RegisterKind names one of the four Modbus register classes.
type RegisterKind string

// Register kinds accepted in visitor configuration.
const (
	CoilRegister          RegisterKind = "CoilRegister"
	DiscreteInputRegister RegisterKind = "DiscreteInputRegister"
	HoldingRegister       RegisterKind = "HoldingRegister"
	InputRegister         RegisterKind = "InputRegister"
)

// IsBit reports whether the register class carries single bits.
func (k RegisterKind) IsBit() bool {
	return k == CoilRegister || k == DiscreteInputRegister
}

// IsWord reports whether the register class carries 16-bit words.
func (k RegisterKind) IsWord() bool {
	return k == HoldingRegister || k == InputRegister
}

// Writable reports whether the register class accepts writes.
func (k RegisterKind) Writable() bool {
	return k == CoilRegister || k == HoldingRegister
}

// Valid reports whether k is a known register class.
func (k RegisterKind) Valid() bool {
	return k.IsBit() || k.IsWord()
}

// Property data types.
const (
	DataTypeInt     = "int"
	DataTypeFloat   = "float"
	DataTypeString  = "string"
	DataTypeBoolean = "boolean"
)

// Protocol kinds and the family they share.
const (
	ProtocolModbusTCP = "modbus-tcp"
	ProtocolModbusRTU = "modbus-rtu"
	FamilyModbus      = "modbus"
)

// Register addressing limits.
const (
	maxRegisterIndex = 0xFFFF

	// maxReadRegisters is the Modbus limit for one register read.
	maxReadRegisters = 125
)

// ProtocolFamily collapses link-specific protocol kinds to the family used
// in visitor keys.
func ProtocolFamily(kind string) string {
	switch kind {
	case ProtocolModbusTCP, ProtocolModbusRTU:
		return FamilyModbus
	default:
		return kind
	}
}

// FlexInt decodes from a JSON number or a numeric string. Profiles written
// by hand frequently quote ports and slave IDs.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	n, set, err := decodeNumber(data)
	if err != nil {
		return err
	}
	if set {
		*f = FlexInt(n)
	}
	return nil
}

// FlexFloat decodes from a JSON number or a numeric string.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	n, set, err := decodeNumber(data)
	if err != nil {
		return err
	}
	if set {
		*f = FlexFloat(n)
	}
	return nil
}

// OptionalNumber is a numeric bound that may be absent.
type OptionalNumber struct {
	Value float64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler. null and "" leave the bound unset.
func (o *OptionalNumber) UnmarshalJSON(data []byte) error {
	n, set, err := decodeNumber(data)
	if err != nil {
		return err
	}
	o.Value, o.Set = n, set
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o OptionalNumber) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Bound returns a set OptionalNumber.
func Bound(v float64) OptionalNumber {
	return OptionalNumber{Value: v, Set: true}
}

func decodeNumber(data []byte) (float64, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return 0, false, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, false, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %q is not a number", ErrInvalidProfile, s)
		}
		return n, true, nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// DeviceInstance is one physical device in the profile.
type DeviceInstance struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Protocol string `json:"protocol"`
}

// Property is one typed value of a device model.
type Property struct {
	Name        string         `json:"name"`
	DataType    string         `json:"dataType"`
	Description string         `json:"description,omitempty"`
	Minimum     OptionalNumber `json:"minimum"`
	Maximum     OptionalNumber `json:"maximum"`
}

// DeviceModel is a named, ordered list of properties.
type DeviceModel struct {
	Name       string     `json:"name"`
	Properties []Property `json:"properties"`
}

// Property returns the named property.
func (m DeviceModel) Property(name string) (Property, bool) {
	for _, p := range m.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// ProtocolConfig carries link parameters. TCP uses IP/Port, RTU uses
// SerialPort/BaudRate and the optional framing fields.
type ProtocolConfig struct {
	IP         string  `json:"ip,omitempty"`
	Port       FlexInt `json:"port,omitempty"`
	SlaveID    FlexInt `json:"slaveID"`
	SerialPort string  `json:"serialPort,omitempty"`
	BaudRate   FlexInt `json:"baudRate,omitempty"`
	DataBits   FlexInt `json:"dataBits,omitempty"`
	StopBits   FlexInt `json:"stopBits,omitempty"`
	Parity     string  `json:"parity,omitempty"`
}

// Protocol is a named link definition.
type Protocol struct {
	Name   string         `json:"name"`
	Kind   string         `json:"protocol"`
	Config ProtocolConfig `json:"protocol_config"`
}

// Family returns the protocol family used in visitor keys.
func (p Protocol) Family() string {
	return ProtocolFamily(p.Kind)
}

// Address returns the TCP endpoint or the serial port path.
func (p Protocol) Address() string {
	if p.Kind == ProtocolModbusRTU {
		return p.Config.SerialPort
	}
	return fmt.Sprintf("%s:%d", p.Config.IP, p.Config.Port)
}

// LinkKey identifies the physical link. Protocols sharing a key share a bus.
func (p Protocol) LinkKey() string {
	if p.Kind == ProtocolModbusRTU {
		return "rtu:" + p.Config.SerialPort
	}
	return "tcp:" + p.Address()
}

// VisitorConfig locates one property on the wire.
type VisitorConfig struct {
	Register       RegisterKind `json:"register"`
	Index          FlexInt      `json:"index"`
	Offset         FlexInt      `json:"offset"`
	Scale          FlexFloat    `json:"scale"`
	IsSwap         bool         `json:"isSwap"`
	IsRegisterSwap bool         `json:"isRegisterSwap"`
}

// PropertyVisitor binds a model property to a visitor configuration.
type PropertyVisitor struct {
	ModelName    string        `json:"modelName"`
	PropertyName string        `json:"propertyName"`
	Protocol     string        `json:"protocol"`
	Config       VisitorConfig `json:"visitorConfig"`
}

// ProfileDocument is the decoded device profile.
type ProfileDocument struct {
	DeviceInstances  []DeviceInstance  `json:"deviceInstances"`
	DeviceModels     []DeviceModel     `json:"deviceModels"`
	Protocols        []Protocol        `json:"protocols"`
	PropertyVisitors []PropertyVisitor `json:"propertyVisitors"`
}

// ParseProfile decodes a device profile document.
func ParseProfile(data []byte) (*ProfileDocument, error) {
	var doc ProfileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	return &doc, nil
}

// VisitorKey identifies a visitor: model, property and protocol family.
type VisitorKey struct {
	Model    string
	Property string
	Family   string
}

// Snapshot is an immutable set of lookup maps built from one profile
// document. Readers hold a *Snapshot for the duration of an operation and
// never observe a partially built set.
type Snapshot struct {
	instances map[string]DeviceInstance
	order     []string
	models    map[string]DeviceModel
	protocols map[string]Protocol
	visitors  map[VisitorKey]VisitorConfig
	builtAt   time.Time
}

// BuildSnapshot turns a profile document into lookup maps. Entries with
// unresolved references or invalid visitor configuration are logged and
// skipped; the rest of the fleet is still loaded.
func BuildSnapshot(doc *ProfileDocument, logger Logger) *Snapshot {
	s := &Snapshot{
		instances: make(map[string]DeviceInstance),
		models:    make(map[string]DeviceModel),
		protocols: make(map[string]Protocol),
		visitors:  make(map[VisitorKey]VisitorConfig),
		builtAt:   time.Now(),
	}
	if doc == nil {
		return s
	}
	warn := func(msg string, args ...any) {
		if logger != nil {
			logger.Warn(msg, args...)
		}
	}

	for _, m := range doc.DeviceModels {
		if m.Name == "" {
			warn("skipping device model without name")
			continue
		}
		if _, dup := s.models[m.Name]; dup {
			warn("skipping duplicate device model", "model", m.Name)
			continue
		}
		for _, p := range m.Properties {
			if !knownDataType(p.DataType) {
				warn("property has unknown data type", "model", m.Name, "property", p.Name, "data_type", p.DataType)
			}
		}
		s.models[m.Name] = m
	}

	for _, p := range doc.Protocols {
		if p.Name == "" {
			warn("skipping protocol without name")
			continue
		}
		if err := validateProtocol(p); err != nil {
			warn("skipping protocol", "protocol", p.Name, "error", err)
			continue
		}
		if _, dup := s.protocols[p.Name]; dup {
			warn("skipping duplicate protocol", "protocol", p.Name)
			continue
		}
		s.protocols[p.Name] = p
	}

	for _, inst := range doc.DeviceInstances {
		if inst.ID == "" {
			warn("skipping device instance without id", "name", inst.Name)
			continue
		}
		if _, dup := s.instances[inst.ID]; dup {
			warn("skipping duplicate device instance", "device_id", inst.ID)
			continue
		}
		if _, ok := s.models[inst.Model]; !ok {
			warn("skipping device instance with unknown model", "device_id", inst.ID, "model", inst.Model)
			continue
		}
		if _, ok := s.protocols[inst.Protocol]; !ok {
			warn("skipping device instance with unknown protocol", "device_id", inst.ID, "protocol", inst.Protocol)
			continue
		}
		s.instances[inst.ID] = inst
		s.order = append(s.order, inst.ID)
	}

	for _, v := range doc.PropertyVisitors {
		model, ok := s.models[v.ModelName]
		if !ok {
			warn("skipping visitor for unknown model", "model", v.ModelName, "property", v.PropertyName)
			continue
		}
		prop, ok := model.Property(v.PropertyName)
		if !ok {
			warn("skipping visitor for unknown property", "model", v.ModelName, "property", v.PropertyName)
			continue
		}
		if err := validateVisitor(v.Config, prop); err != nil {
			warn("skipping invalid visitor", "model", v.ModelName, "property", v.PropertyName, "error", err)
			continue
		}
		if v.Config.IsSwap && v.Config.Register == HoldingRegister {
			warn("isSwap is not applied when writing", "model", v.ModelName, "property", v.PropertyName)
		}
		key := VisitorKey{Model: v.ModelName, Property: v.PropertyName, Family: ProtocolFamily(v.Protocol)}
		if _, dup := s.visitors[key]; dup {
			warn("skipping duplicate visitor", "model", v.ModelName, "property", v.PropertyName, "protocol", v.Protocol)
			continue
		}
		s.visitors[key] = v.Config
	}

	return s
}

func knownDataType(dt string) bool {
	switch dt {
	case DataTypeInt, DataTypeFloat, DataTypeString, DataTypeBoolean:
		return true
	}
	return false
}

func validateProtocol(p Protocol) error {
	switch p.Kind {
	case ProtocolModbusTCP:
		if p.Config.IP == "" {
			return fmt.Errorf("%w: tcp protocol needs ip", ErrInvalidProfile)
		}
		if p.Config.Port <= 0 || p.Config.Port > 65535 {
			return fmt.Errorf("%w: tcp port %d out of range", ErrInvalidProfile, p.Config.Port)
		}
	case ProtocolModbusRTU:
		if p.Config.SerialPort == "" {
			return fmt.Errorf("%w: rtu protocol needs serialPort", ErrInvalidProfile)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProtocol, p.Kind)
	}
	if p.Config.SlaveID < 0 || p.Config.SlaveID > 247 {
		return fmt.Errorf("%w: slave id %d out of range", ErrInvalidProfile, p.Config.SlaveID)
	}
	return nil
}

func validateVisitor(v VisitorConfig, p Property) error {
	if !v.Register.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedRegisterRead, v.Register)
	}
	if v.Index < 0 || v.Index > maxRegisterIndex {
		return fmt.Errorf("%w: index %d", ErrInvalidLength, v.Index)
	}
	if v.Offset < 1 || v.Offset > maxReadRegisters {
		return fmt.Errorf("%w: offset %d", ErrInvalidLength, v.Offset)
	}
	if v.Register.IsWord() && (p.DataType == DataTypeInt || p.DataType == DataTypeFloat) && v.Offset > maxIntWords {
		return fmt.Errorf("%w: numeric property spans %d registers, at most %d", ErrInvalidLength, v.Offset, maxIntWords)
	}
	return nil
}

// Instances returns the usable device instances in document order.
func (s *Snapshot) Instances() []DeviceInstance {
	out := make([]DeviceInstance, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.instances[id])
	}
	return out
}

// Instance returns a device instance by ID.
func (s *Snapshot) Instance(id string) (DeviceInstance, bool) {
	inst, ok := s.instances[id]
	return inst, ok
}

// Model returns a device model by name.
func (s *Snapshot) Model(name string) (DeviceModel, bool) {
	m, ok := s.models[name]
	return m, ok
}

// Protocol returns a protocol by name.
func (s *Snapshot) Protocol(name string) (Protocol, bool) {
	p, ok := s.protocols[name]
	return p, ok
}

// Visitor returns the visitor for a model property under a protocol kind.
// The kind is normalised to its family before lookup.
func (s *Snapshot) Visitor(model, property, protocolKind string) (VisitorConfig, bool) {
	v, ok := s.visitors[VisitorKey{Model: model, Property: property, Family: ProtocolFamily(protocolKind)}]
	return v, ok
}

// Resolve returns the instance, model and protocol for a device ID.
func (s *Snapshot) Resolve(deviceID string) (DeviceInstance, DeviceModel, Protocol, error) {
	inst, ok := s.instances[deviceID]
	if !ok {
		return DeviceInstance{}, DeviceModel{}, Protocol{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	// BuildSnapshot only keeps instances whose references resolve.
	return inst, s.models[inst.Model], s.protocols[inst.Protocol], nil
}

// ProtocolFor returns the protocol of a device instance.
func (s *Snapshot) ProtocolFor(deviceID string) (Protocol, bool) {
	inst, ok := s.instances[deviceID]
	if !ok {
		return Protocol{}, false
	}
	p, ok := s.protocols[inst.Protocol]
	return p, ok
}

// DeviceCount returns the number of usable device instances.
func (s *Snapshot) DeviceCount() int {
	return len(s.order)
}

// VisitorCount returns the number of loaded visitors.
func (s *Snapshot) VisitorCount() int {
	return len(s.visitors)
}

// BuiltAt returns when the snapshot was built.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// LoadProfile reads and builds a snapshot from a profile file.
func LoadProfile(path string, logger Logger) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device profile: %w", err)
	}
	doc, err := ParseProfile(data)
	if err != nil {
		return nil, err
	}
	return BuildSnapshot(doc, logger), nil
}

// ProfileStore publishes the current snapshot. Swaps are atomic: a reader
// sees either the previous or the next snapshot in full.
type ProfileStore struct {
	current atomic.Pointer[Snapshot]
}

// NewProfileStore creates a store holding initial. A nil initial is
// replaced by an empty snapshot.
func NewProfileStore(initial *Snapshot) *ProfileStore {
	if initial == nil {
		initial = BuildSnapshot(nil, nil)
	}
	s := &ProfileStore{}
	s.current.Store(initial)
	return s
}

// Load returns the current snapshot.
func (s *ProfileStore) Load() *Snapshot {
	return s.current.Load()
}

// Swap installs next and returns the previous snapshot.
func (s *ProfileStore) Swap(next *Snapshot) *Snapshot {
	return s.current.Swap(next)
}

// ReloadFromFile loads path and swaps it in. On error the current snapshot
// is kept and the store is unchanged.
func (s *ProfileStore) ReloadFromFile(path string, logger Logger) (*Snapshot, error) {
	next, err := LoadProfile(path, logger)
	if err != nil {
		return nil, err
	}
	s.Swap(next)
	return next, nil
}
