// Package session implements the Session aggregate: identity, mode, player
// roster, caps, timestamps and lifecycle flags for a single game, plus the
// round-log history attached to it. A Session enforces its own invariants on
// every mutation; it holds no transport or persistence concerns.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Mode names the game variant a session runs. Only Tower is implemented;
// Well is reserved for a future variant.
type Mode string

const (
	ModeTower Mode = "tower"
	ModeWell  Mode = "well"
)

// ID is a session's opaque identity.
type ID uuid.UUID

func NewID() ID { return ID(uuid.New()) }

func (id ID) String() string { return uuid.UUID(id).String() }

// ParseID parses a session id previously produced by String/NewID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, err
	}
	return ID(u), nil
}

// PlayerID identifies a participant; it is opaque to this package.
type PlayerID string

// Session is the mutable aggregate root for one game's lifecycle metadata.
// Every exported mutator validates invariants before mutating, and bumps
// LastUpdatedAtUtc on success.
type Session struct {
	id               ID
	mode             Mode
	maxPlayers       int
	maxRounds        int
	participants     []PlayerID
	createdAtUtc     time.Time
	lastUpdatedAtUtc time.Time
	startedAtUtc     *time.Time
	completedAtUtc   *time.Time
	roundLogs        []RoundLog
}

// Schedule constructs a new, not-yet-started Session. maxPlayers must be in
// [2,maxPlayersCap] and maxRounds in [1,maxRoundsCap]; the caller (the
// registry, per its loaded Config) is responsible for enforcing the caps
// before calling Schedule, which only checks internal consistency.
func Schedule(id ID, mode Mode, maxPlayers, maxRounds int, nowUtc time.Time) (*Session, error) {
	if maxPlayers < 2 {
		return nil, ErrInvalidParams
	}
	if maxRounds < 1 {
		return nil, ErrInvalidParams
	}
	return &Session{
		id:               id,
		mode:             mode,
		maxPlayers:       maxPlayers,
		maxRounds:        maxRounds,
		participants:     make([]PlayerID, 0, maxPlayers),
		createdAtUtc:     nowUtc,
		lastUpdatedAtUtc: nowUtc,
		roundLogs:        make([]RoundLog, 0, maxRounds),
	}, nil
}

func (s *Session) ID() ID                    { return s.id }
func (s *Session) Mode() Mode                { return s.mode }
func (s *Session) MaxPlayers() int           { return s.maxPlayers }
func (s *Session) MaxRounds() int            { return s.maxRounds }
func (s *Session) CreatedAtUtc() time.Time   { return s.createdAtUtc }
func (s *Session) LastUpdatedAtUtc() time.Time { return s.lastUpdatedAtUtc }
func (s *Session) IsStarted() bool           { return s.startedAtUtc != nil }
func (s *Session) IsCompleted() bool         { return s.completedAtUtc != nil }

// StartedAtUtc returns the start time, or nil if not yet started.
func (s *Session) StartedAtUtc() *time.Time { return s.startedAtUtc }

// CompletedAtUtc returns the completion time, or nil if not yet completed.
func (s *Session) CompletedAtUtc() *time.Time { return s.completedAtUtc }

// Participants returns a copy of the participant roster in join order.
func (s *Session) Participants() []PlayerID {
	out := make([]PlayerID, len(s.participants))
	copy(out, s.participants)
	return out
}

// RoundLogs returns a copy of the attached round-log history.
func (s *Session) RoundLogs() []RoundLog {
	out := make([]RoundLog, len(s.roundLogs))
	copy(out, s.roundLogs)
	return out
}

func (s *Session) hasParticipant(p PlayerID) bool {
	for _, q := range s.participants {
		if q == p {
			return true
		}
	}
	return false
}

// AddParticipant adds p to the roster. A no-op if p is already present.
func (s *Session) AddParticipant(p PlayerID, nowUtc time.Time) error {
	if s.IsCompleted() {
		return ErrAlreadyCompleted
	}
	if s.IsStarted() {
		return ErrAlreadyStarted
	}
	if s.hasParticipant(p) {
		return nil
	}
	if len(s.participants) >= s.maxPlayers {
		return ErrCapacity
	}
	s.participants = append(s.participants, p)
	s.lastUpdatedAtUtc = nowUtc
	return nil
}

// RemoveParticipant removes p from the roster. Best-effort: removing an
// absent player is not an error.
func (s *Session) RemoveParticipant(p PlayerID, nowUtc time.Time) error {
	if s.IsCompleted() {
		return ErrAlreadyCompleted
	}
	for i, q := range s.participants {
		if q == p {
			s.participants = append(s.participants[:i], s.participants[i+1:]...)
			s.lastUpdatedAtUtc = nowUtc
			return nil
		}
	}
	return nil
}

// Start transitions the session into the started state.
func (s *Session) Start(nowUtc time.Time) error {
	if s.IsCompleted() {
		return ErrAlreadyCompleted
	}
	if s.IsStarted() {
		return ErrAlreadyStarted
	}
	if len(s.participants) == 0 {
		return ErrEmptyRoster
	}
	started := nowUtc
	s.startedAtUtc = &started
	s.lastUpdatedAtUtc = nowUtc
	return nil
}

// Complete transitions the session into the completed state.
func (s *Session) Complete(nowUtc time.Time) error {
	if !s.IsStarted() {
		return ErrNotStarted
	}
	if s.IsCompleted() {
		return ErrAlreadyCompleted
	}
	if nowUtc.Before(*s.startedAtUtc) {
		return ErrTimestampBeforeStart
	}
	completed := nowUtc
	s.completedAtUtc = &completed
	s.lastUpdatedAtUtc = nowUtc
	return nil
}

// RegisterRound appends a resolved round's log to the session's history.
// log.RoundNumber must equal len(RoundLogs)+1 and log.SessionID must equal
// this session's id.
func (s *Session) RegisterRound(log RoundLog, nowUtc time.Time) error {
	if log.SessionID != s.id {
		return ErrWrongSession
	}
	if len(s.roundLogs) >= s.maxRounds {
		return ErrRoundCapReached
	}
	if log.RoundNumber != len(s.roundLogs)+1 {
		return ErrWrongSession
	}
	s.roundLogs = append(s.roundLogs, log)
	s.lastUpdatedAtUtc = nowUtc
	return nil
}
