package engine

import (
	"time"

	"towerplane/session"
)

// RoundState is the live state of one in-progress round.
type RoundState struct {
	RoundNumber       int
	SharedCardIndex   int
	PlayerCardIndexes map[session.PlayerID]int
	StartedAtUtc      time.Time
	ResolvedAtUtc     *time.Time
	Winner            *session.PlayerID
}

func (r *RoundState) resolved() bool { return r.ResolvedAtUtc != nil }

// Resolution is RegisterAttempt's result: the accept/resolve split the
// dispatcher needs to build a RoundResultEvent.
type Resolution struct {
	AttemptAccepted        bool
	RoundResolved           bool
	ResolvingPlayerID       session.PlayerID
	ResolvingPlayerCardIndex int
	MatchingSymbolID        int
	RoundNumber             int
	ProcessedAtUtc          time.Time
	ResolutionDuration      time.Duration
	Scores                  map[session.PlayerID]int
	GameCompleted           bool
}

func copyScores(m map[session.PlayerID]int) map[session.PlayerID]int {
	out := make(map[session.PlayerID]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
