package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bluetray/bluetray/internal/device"
)

// handleListDevices returns all paired devices in display order.
//
// Query parameters:
//   - state: filter by state kind (connected, disconnected, failed, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.List()

	if stateStr := r.URL.Query().Get("state"); stateStr != "" {
		kind, err := device.ParseStateKind(stateStr)
		if err != nil {
			writeBadRequest(w, "invalid state filter")
			return
		}
		filtered := make([]device.Device, 0, len(devices))
		for _, d := range devices {
			if d.State.Kind == kind {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by address.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}

	dev, err := s.registry.Get(address)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleConnect starts a connect operation. The response is 202: the
// outcome arrives as a state change.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}

	if err := s.commands.RequestConnect(r.Context(), address); err != nil {
		s.logger.Debug("connect rejected", "address", address, "error", err)
		writeCommandError(w, err)
		return
	}
	s.writeAccepted(w, address, "connect")
}

// handleDisconnect starts a disconnect operation.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}

	if err := s.commands.RequestDisconnect(r.Context(), address); err != nil {
		s.logger.Debug("disconnect rejected", "address", address, "error", err)
		writeCommandError(w, err)
		return
	}
	s.writeAccepted(w, address, "disconnect")
}

func (s *Server) writeAccepted(w http.ResponseWriter, address device.Address, action string) {
	resp := map[string]any{
		"status":  "accepted",
		"action":  action,
		"address": address,
	}
	// Echo the state the request moved the device into.
	if d, err := s.registry.Get(address); err == nil {
		resp["state"] = d.State
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// handleRefresh re-reads the paired device list from the OS.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.commands.Refresh(r.Context()); err != nil {
		s.logger.Warn("refresh failed", "error", err)
		writeCommandError(w, err)
		return
	}
	devices := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleDeviceHistory returns recorded state changes for a device,
// newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, max 200)
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.GetHistory(r.Context(), address, limit)
	if err != nil {
		s.logger.Warn("reading history failed", "address", address, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": address,
		"history": entries,
		"count":   len(entries),
	})
}

// addressParam parses the {address} URL parameter, writing a 400 on
// failure.
func addressParam(w http.ResponseWriter, r *http.Request) (device.Address, bool) {
	address, err := device.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, "invalid device address")
		return "", false
	}
	return address, true
}

// ChangeEvent is the payload of a device.changed WebSocket event.
type ChangeEvent struct {
	Change   string            `json:"change"`
	Device   device.Device     `json:"device"`
	Previous *device.ConnState `json:"previous_state,omitempty"`
	At       time.Time         `json:"at"`
}

func newChangeEvent(c device.Change) ChangeEvent {
	ev := ChangeEvent{
		Change: c.Kind.String(),
		Device: c.Device,
		At:     c.At.UTC(),
	}
	if c.Kind == device.ChangeUpdated {
		prev := c.Previous.State
		ev.Previous = &prev
	}
	return ev
}
