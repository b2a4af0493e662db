package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	modbus "github.com/nerrad567/modbus-mapper/internal/bridges/modbus"
	"github.com/nerrad567/modbus-mapper/internal/device"
)

const (
	// maxQueryParamLen caps path and query values echoed into lookups.
	maxQueryParamLen = 100

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// DeviceView is the API representation of one profiled device.
type DeviceView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Model        string         `json:"model"`
	Protocol     string         `json:"protocol"`
	ProtocolKind string         `json:"protocol_kind"`
	Link         string         `json:"link"`
	Status       device.Status  `json:"status"`
	Properties   []PropertyView `json:"properties"`
}

// PropertyView is one model property with its last reported value.
type PropertyView struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Value    string `json:"value,omitempty"`
	Reported bool   `json:"reported"`

	// Register and Index are empty when the property has no visitor.
	Register string `json:"register,omitempty"`
	Index    int    `json:"index,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// handleListDevices lists every device of the current profile snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Load()
	instances := snap.Instances()

	devices := make([]DeviceView, 0, len(instances))
	for _, inst := range instances {
		devices = append(devices, s.deviceView(snap, inst))
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	snap := s.store.Load()
	inst, ok := snap.Instance(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, s.deviceView(snap, inst))
}

// handleGetDeviceHistory returns recently published values of a device.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	property := strings.TrimSpace(r.URL.Query().Get("property"))
	if len(property) > maxQueryParamLen {
		writeBadRequest(w, "property exceeds maximum length")
		return
	}

	limit, ok := parseHistoryLimit(r.URL.Query().Get("limit"))
	if !ok {
		writeBadRequest(w, "invalid limit")
		return
	}

	if _, found := s.store.Load().Instance(id); !found {
		writeNotFound(w, "device not found")
		return
	}

	if s.history == nil {
		writeUnavailable(w, "property history unavailable")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), id, property, limit)
	if err != nil {
		s.logger.Error("history query failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}

func (s *Server) deviceView(snap *modbus.Snapshot, inst modbus.DeviceInstance) DeviceView {
	view := DeviceView{
		ID:       inst.ID,
		Name:     inst.Name,
		Model:    inst.Model,
		Protocol: inst.Protocol,
		Status:   device.Status{DeviceID: inst.ID, State: device.StateUnknown},
	}

	proto, hasProto := snap.Protocol(inst.Protocol)
	if hasProto {
		view.ProtocolKind = proto.Kind
		view.Link = proto.LinkKey()
	}

	if st, err := s.status.Get(inst.ID); err == nil {
		view.Status = st
	}

	values := s.cache.Device(inst.ID)
	model, _ := snap.Model(inst.Model)
	view.Properties = make([]PropertyView, 0, len(model.Properties))
	for _, prop := range model.Properties {
		pv := PropertyView{Name: prop.Name, DataType: prop.DataType}
		if v, ok := values[prop.Name]; ok {
			pv.Value = v
			pv.Reported = true
		}
		if hasProto {
			if visitor, ok := snap.Visitor(inst.Model, prop.Name, proto.Kind); ok {
				pv.Register = string(visitor.Register)
				pv.Index = int(visitor.Index)
				pv.Offset = int(visitor.Offset)
			}
		}
		view.Properties = append(view.Properties, pv)
	}

	return view
}

// parseHistoryLimit applies the default for an empty value and rejects
// anything outside 1..maxHistoryLimit.
func parseHistoryLimit(raw string) (int, bool) {
	if raw == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxHistoryLimit {
		return 0, false
	}
	return limit, true
}
