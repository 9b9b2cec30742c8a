// Package store defines the persistence collaborators the core consumes:
// PlayerStore, SessionStore, RoundLogStore and LeaderboardStore, plus
// memory/sqlite/postgres implementations selected by STORE_MODE.
package store

import (
	"context"
	"errors"
	"time"

	"towerplane/session"
)

var ErrNotFound = errors.New("store: not found")

// Player is a registered player's profile and aggregate play counters.
type Player struct {
	ID              session.PlayerID
	DisplayName     string
	CreatedAtUtc    time.Time
	LastActiveAtUtc time.Time
	GamesPlayed     int
	GamesWon        int
}

// RegisterGameResult bumps the player's play/win counters.
func (p *Player) RegisterGameResult(won bool) {
	p.GamesPlayed++
	if won {
		p.GamesWon++
	}
}

// LeaderboardEntry is one row of the ranked leaderboard.
type LeaderboardEntry struct {
	PlayerID        session.PlayerID
	TotalPoints     int
	GamesPlayed     int
	GamesWon        int
	LastUpdatedAtUtc time.Time
}

// PlayerStore persists Player identity and stats.
type PlayerStore interface {
	GetByID(ctx context.Context, id session.PlayerID) (*Player, error)
	Add(ctx context.Context, p *Player) error
	Update(ctx context.Context, p *Player) error
}

// SessionStore persists Session aggregates.
type SessionStore interface {
	GetByID(ctx context.Context, id session.ID) (*session.Session, error)
	Add(ctx context.Context, s *session.Session) error
	Update(ctx context.Context, s *session.Session) error
	GetActive(ctx context.Context) ([]*session.Session, error)
}

// RoundLogStore persists resolved-round records.
type RoundLogStore interface {
	Add(ctx context.Context, log session.RoundLog) error
	GetByGameID(ctx context.Context, id session.ID) ([]session.RoundLog, error)
}

// LeaderboardStore persists the cross-session leaderboard.
type LeaderboardStore interface {
	GetByPlayerID(ctx context.Context, id session.PlayerID) (*LeaderboardEntry, error)
	Upsert(ctx context.Context, entry LeaderboardEntry) error
	GetTop(ctx context.Context, count int) ([]LeaderboardEntry, error)
}

// Bundle groups the four store collaborators the registry needs, the way
// main.go wires them together.
type Bundle struct {
	Players     PlayerStore
	Sessions    SessionStore
	RoundLogs   RoundLogStore
	Leaderboard LeaderboardStore
	Close       func() error
}
