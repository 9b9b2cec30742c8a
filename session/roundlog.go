package session

import "time"

// RoundLog is the immutable record emitted on a round's resolution. It
// carries the session id by value, not a reference, avoiding reference
// cycles between Session and RoundLog.
type RoundLog struct {
	SessionID          ID
	RoundNumber        int
	SharedCardIndex    int
	Winner             *PlayerID
	WinnerCardIndex    *int
	MatchingSymbolID   int
	LoggedAtUtc        time.Time
	ResolutionDuration time.Duration
}

// ScoreSnapshot is an immutable point-in-time copy of a game's scores.
type ScoreSnapshot struct {
	Scores       map[PlayerID]int
	CapturedAtUtc time.Time
}
