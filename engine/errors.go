package engine

import "errors"

var (
	ErrGameOverAlready    = errors.New("engine: game already over")
	ErrPreviousUnresolved = errors.New("engine: previous round unresolved")
	ErrNoActiveRound      = errors.New("engine: no active round")
	ErrNotParticipant     = errors.New("engine: not a participant")
	ErrNotReady           = errors.New("engine: not initialized")
)
