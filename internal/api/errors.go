package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bluetray/bluetray/internal/bluetooth"
	"github.com/bluetray/bluetray/internal/coordinator"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in Error.Code.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeForbidden      = "forbidden"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeBadGateway     = "bluetooth_error"
	ErrCodeInternal       = "internal_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// commandOutcome maps one family of command errors to a response.
type commandOutcome struct {
	match   []error
	status  int
	code    string
	message func(error) string
}

var commandOutcomes = []commandOutcome{
	{
		match:   []error{coordinator.ErrUnknownDevice},
		status:  http.StatusNotFound,
		code:    ErrCodeNotFound,
		message: func(error) string { return "device not found" },
	},
	{
		match:   []error{coordinator.ErrAlreadyInFlight, coordinator.ErrAlreadyConnected, coordinator.ErrNotConnected},
		status:  http.StatusConflict,
		code:    ErrCodeConflict,
		message: error.Error,
	},
	{
		match:   []error{coordinator.ErrClosed, bluetooth.ErrBluetoothUnavailable, bluetooth.ErrClosed},
		status:  http.StatusServiceUnavailable,
		code:    ErrCodeUnavailable,
		message: error.Error,
	},
	{
		// The radio's own wording is what the user needs to see.
		match:   []error{bluetooth.ErrGatewayFailure, bluetooth.ErrTimeout},
		status:  http.StatusBadGateway,
		code:    ErrCodeBadGateway,
		message: bluetooth.Reason,
	},
}

// writeCommandError maps a coordinator or gateway error to a response.
// Anything unrecognised is a 500 with a generic message.
func writeCommandError(w http.ResponseWriter, err error) {
	for _, o := range commandOutcomes {
		for _, target := range o.match {
			if errors.Is(err, target) {
				writeError(w, o.status, o.code, o.message(err))
				return
			}
		}
	}
	writeInternalError(w, "request failed")
}
