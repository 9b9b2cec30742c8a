package gateway

import (
	"errors"

	"towerplane/apps/server/internal/registry"
)

// Protocol-layer errors: malformed requests at the boundary, distinct from
// orchestrator domain errors.
var (
	ErrMalformedRequest = errors.New("gateway: malformed request")
	ErrUnknownMethod    = errors.New("gateway: unknown method")
	ErrPayloadTooLarge  = errors.New("gateway: payload too large")
	ErrUnauthorized     = errors.New("gateway: unauthorized")
)

// wireErrorFor translates any error surfaced by the boundary or the
// orchestrator into a stable (code, message) pair for the client.
func wireErrorFor(err error) *WireError {
	var stateErr *registry.StateError
	if errors.As(err, &stateErr) {
		return &WireError{Code: stateErr.Kind, Message: err.Error()}
	}

	code := "Internal"
	switch {
	case errors.Is(err, ErrMalformedRequest):
		code = "MalformedRequest"
	case errors.Is(err, ErrUnknownMethod):
		code = "UnknownMethod"
	case errors.Is(err, ErrPayloadTooLarge):
		code = "PayloadTooLarge"
	case errors.Is(err, ErrUnauthorized):
		code = "Unauthorized"
	case errors.Is(err, registry.ErrInvalidParams):
		code = "InvalidParams"
	case errors.Is(err, registry.ErrNotFound):
		code = "NotFound"
	case errors.Is(err, registry.ErrAlreadyStarted):
		code = "AlreadyStarted"
	case errors.Is(err, registry.ErrAlreadyCompleted):
		code = "AlreadyCompleted"
	case errors.Is(err, registry.ErrCapacity):
		code = "Capacity"
	case errors.Is(err, registry.ErrDuplicate):
		code = "Duplicate"
	case errors.Is(err, registry.ErrNotEnoughPlayers):
		code = "NotEnoughPlayers"
	case errors.Is(err, registry.ErrNotActive):
		code = "NotActive"
	case errors.Is(err, registry.ErrNotParticipant):
		code = "NotParticipant"
	case errors.Is(err, registry.ErrNotCompleted):
		code = "NotCompleted"
	case errors.Is(err, registry.ErrCanceled):
		code = "Canceled"
	case errors.Is(err, registry.ErrStore):
		code = "StoreError"
	case errors.Is(err, registry.ErrModeNotImplemented):
		code = "ModeNotImplemented"
	}
	return &WireError{Code: code, Message: err.Error()}
}
