package registry

import (
	"time"

	"towerplane/session"
)

// RoundStart is the payload broadcast when a round begins.
type RoundStart struct {
	GameID            session.ID
	RoundNumber       int
	SharedCardIndex   int
	PlayerCardIndexes map[session.PlayerID]int
	StartedAtUtc      time.Time
}

// RoundResult is the payload broadcast when an attempt resolves a round.
type RoundResult struct {
	GameID                   session.ID
	RoundResolved            bool
	AttemptAccepted          bool
	ResolvingPlayerID        session.PlayerID
	ResolvingPlayerCardIndex int
	MatchingSymbolID         int
	RoundNumber              int
	ProcessedAtUtc           time.Time
	ResolutionDuration       time.Duration
	Scores                   map[session.PlayerID]int
	GameCompleted            bool

	// NextRound is populated when ClickSymbol resolves a round and the game
	// continues; the dispatcher broadcasts it as a follow-up RoundStart.
	NextRound *RoundStart
}

// GameOver is the payload broadcast when a game completes.
type GameOver struct {
	GameID        session.ID
	FinalScores   map[session.PlayerID]int
	CompletedAtUtc time.Time
}

// GameCreated is the payload returned to the caller that created a game.
type GameCreated struct {
	GameID     session.ID
	Mode       session.Mode
	MaxPlayers int
	MaxRounds  int
}
