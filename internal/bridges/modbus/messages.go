package modbus

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Twin messages exchanged with the twin store over MQTT.
//
// Timestamps are Unix milliseconds. Values travel as strings; the declared
// data type rides alongside in the property metadata.

// BaseMessage carries the envelope fields common to twin messages.
type BaseMessage struct {
	EventID   string `json:"event_id"`
	Timestamp int64  `json:"timestamp"`
}

// ValueMetadata is the metadata of one expected or actual value.
type ValueMetadata struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

// TwinValue is an expected or actual value. An empty object decodes to a
// TwinValue with a nil Value.
type TwinValue struct {
	Value    *string        `json:"value,omitempty"`
	Metadata *ValueMetadata `json:"metadata,omitempty"`
}

// HasValue reports whether the twin value carries a value.
func (v *TwinValue) HasValue() bool {
	return v != nil && v.Value != nil
}

// TypeMetadata declares the data type of a twin property.
type TypeMetadata struct {
	Type string `json:"type,omitempty"`
}

// TwinVersion is the cloud/edge version pair of a twin value.
type TwinVersion struct {
	CloudVersion int64 `json:"cloud"`
	EdgeVersion  int64 `json:"edge"`
}

// MsgTwin is one property of a device twin.
type MsgTwin struct {
	Expected        *TwinValue    `json:"expected,omitempty"`
	Actual          *TwinValue    `json:"actual,omitempty"`
	Optional        *bool         `json:"optional,omitempty"`
	Metadata        *TypeMetadata `json:"metadata,omitempty"`
	ExpectedVersion *TwinVersion  `json:"expected_version,omitempty"`
	ActualVersion   *TwinVersion  `json:"actual_version,omitempty"`
}

// DeclaredType returns the property type carried in the twin metadata.
func (t *MsgTwin) DeclaredType() string {
	if t == nil || t.Metadata == nil {
		return ""
	}
	return t.Metadata.Type
}

// DeviceTwinUpdate is published to report actual values.
type DeviceTwinUpdate struct {
	BaseMessage
	Twin map[string]*MsgTwin `json:"twin"`
}

// DeviceTwinResult is the twin store's answer to a twin-get request.
type DeviceTwinResult struct {
	BaseMessage
	Code int                 `json:"code,omitempty"`
	Twin map[string]*MsgTwin `json:"twin"`
}

// DeviceTwinDelta notifies that expected values changed.
type DeviceTwinDelta struct {
	BaseMessage
	Twin  map[string]*MsgTwin `json:"twin"`
	Delta map[string]string   `json:"delta"`
}

// twinNotFoundCode is the result code for a device unknown to the twin store.
const twinNotFoundCode = 404

// PendingExpecteds returns the properties of a twin-get result that carry
// an expected value the device has never acknowledged: no actual, or an
// empty actual object.
func (r *DeviceTwinResult) PendingExpecteds() map[string]string {
	out := make(map[string]string)
	for name, twin := range r.Twin {
		if twin == nil || !twin.Expected.HasValue() {
			continue
		}
		if twin.Actual == nil || (twin.Actual.Value == nil && twin.Actual.Metadata == nil) {
			out[name] = *twin.Expected.Value
		}
	}
	return out
}

// SyncExpected returns the expected value of a twin property when it should
// be written down: the twin has no actual yet, or the expected value is
// newer than the actual and differs from it.
func SyncExpected(twin *MsgTwin) (string, bool) {
	if twin == nil || !twin.Expected.HasValue() {
		return "", false
	}
	expected := *twin.Expected.Value
	if twin.Actual == nil {
		return expected, true
	}
	if twin.Expected.Metadata == nil || twin.Actual.Metadata == nil {
		return "", false
	}
	if twin.Expected.Metadata.Timestamp <= twin.Actual.Metadata.Timestamp {
		return "", false
	}
	if twin.Actual.Value != nil && *twin.Actual.Value == expected {
		return "", false
	}
	return expected, true
}

// DirectHeader is the header of a direct snapshot message.
type DirectHeader struct {
	MsgID       string `json:"msg_id"`
	ParentMsgID string `json:"parent_msg_id"`
	Timestamp   int64  `json:"timestamp"`
	Sync        bool   `json:"sync"`
}

// DirectRoute is the route of a direct snapshot message.
type DirectRoute struct {
	Source    string `json:"source"`
	Group     string `json:"group"`
	Operation string `json:"operation"`
	Resource  string `json:"resource"`
}

// DirectContent carries the property values of one poll cycle.
type DirectContent struct {
	Data       map[string]string `json:"data"`
	DeviceName string            `json:"device_name"`
	DeviceID   string            `json:"device_id"`
	Timestamp  int64             `json:"timestamp"`
}

// DirectGetMessage is the aggregated per-cycle snapshot of a device.
type DirectGetMessage struct {
	Header  DirectHeader  `json:"header"`
	Route   DirectRoute   `json:"route"`
	Content DirectContent `json:"content"`
}

// Topic layout.
const (
	// TwinTopicPrefix prefixes every twin topic.
	TwinTopicPrefix = "$hw/events/device/"

	// DirectTopicPrefix prefixes direct snapshot topics.
	DirectTopicPrefix = "$hw/devices/"

	// MapperTopicPrefix prefixes the mapper's own health and status topics.
	MapperTopicPrefix = "$hw/events/mapper/"

	twinGetSuffix       = "/twin/get"
	twinGetResultSuffix = "/twin/get/result"
	twinDeltaSuffix     = "/twin/update/delta"
	twinUpdateSuffix    = "/twin/update"
	directGetSuffix     = "/events/properties/get"

	// deviceIDSegment is the index of the device ID in a twin topic.
	deviceIDSegment = 3

	// twinEventSegments is the segment count of result and delta topics.
	twinEventSegments = 7

	directSource    = "eventbus"
	directOperation = "upload"
)

// TwinGetTopic returns the twin-get request topic of a device.
func TwinGetTopic(deviceID string) string {
	return TwinTopicPrefix + deviceID + twinGetSuffix
}

// TwinUpdateTopic returns the actual-value update topic of a device.
func TwinUpdateTopic(deviceID string) string {
	return TwinTopicPrefix + deviceID + twinUpdateSuffix
}

// DirectGetTopic returns the direct snapshot topic of a device.
func DirectGetTopic(deviceID string) string {
	return DirectTopicPrefix + deviceID + directGetSuffix
}

// TwinGetResultSubscribeTopic matches twin-get results for every device.
func TwinGetResultSubscribeTopic() string {
	return TwinTopicPrefix + "+" + twinGetResultSuffix
}

// TwinDeltaSubscribeTopic matches twin deltas for every device.
func TwinDeltaSubscribeTopic() string {
	return TwinTopicPrefix + "+" + twinDeltaSuffix
}

// MapperHealthTopic returns the health topic of a mapper.
func MapperHealthTopic(mapperID string) string {
	return MapperTopicPrefix + mapperID + "/health"
}

// MapperStatusTopic returns the retained status (LWT) topic of a mapper.
func MapperStatusTopic(mapperID string) string {
	return MapperTopicPrefix + mapperID + "/status"
}

// DeviceIDFromTopic extracts the device ID from a twin-get result or
// twin delta topic.
func DeviceIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != twinEventSegments || parts[deviceIDSegment] == "" {
		return "", ErrInvalidTopic
	}
	return parts[deviceIDSegment], nil
}

// isTwinGetResult reports whether topic is a twin-get result topic.
func isTwinGetResult(topic string) bool {
	parts := strings.Split(topic, "/")
	return len(parts) == twinEventSegments && parts[5] == "get" && parts[6] == "result"
}

// isTwinDelta reports whether topic is a twin delta topic.
func isTwinDelta(topic string) bool {
	parts := strings.Split(topic, "/")
	return len(parts) == twinEventSegments && parts[5] == "update" && parts[6] == "delta"
}

// NewTwinGetRequest builds a twin-get request.
func NewTwinGetRequest(now time.Time) BaseMessage {
	return BaseMessage{EventID: uuid.NewString(), Timestamp: now.UnixMilli()}
}

// NewActualUpdate builds a twin update reporting one actual value.
func NewActualUpdate(property, dataType, value string, now time.Time) DeviceTwinUpdate {
	ts := now.UnixMilli()
	v := value
	return DeviceTwinUpdate{
		BaseMessage: BaseMessage{EventID: uuid.NewString(), Timestamp: ts},
		Twin: map[string]*MsgTwin{
			property: {
				Actual: &TwinValue{
					Value:    &v,
					Metadata: &ValueMetadata{Timestamp: ts},
				},
				Metadata: &TypeMetadata{Type: dataType},
			},
		},
	}
}

// NewDirectSnapshot builds the aggregated snapshot of one poll cycle.
func NewDirectSnapshot(deviceID, deviceName string, data map[string]string, now time.Time) DirectGetMessage {
	ts := now.UnixMilli()
	if data == nil {
		data = map[string]string{}
	}
	return DirectGetMessage{
		Header: DirectHeader{
			MsgID:       uuid.NewString(),
			ParentMsgID: "",
			Timestamp:   ts,
			Sync:        false,
		},
		Route: DirectRoute{
			Source:    directSource,
			Group:     "",
			Operation: directOperation,
			Resource:  DirectGetTopic(deviceID),
		},
		Content: DirectContent{
			Data:       data,
			DeviceName: deviceName,
			DeviceID:   deviceID,
			Timestamp:  ts,
		},
	}
}
