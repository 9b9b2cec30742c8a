package store

import (
	"context"
	"sort"
	"sync"

	"towerplane/session"
)

// memoryBundle is the in-process, non-persistent store mode. It backs local
// development and the test suite.
type memoryBundle struct {
	mu          sync.Mutex
	players     map[session.PlayerID]*Player
	sessions    map[session.ID]*session.Session
	roundLogs   map[session.ID][]session.RoundLog
	leaderboard map[session.PlayerID]*LeaderboardEntry
}

// NewMemoryBundle builds an in-memory store Bundle.
func NewMemoryBundle() *Bundle {
	m := &memoryBundle{
		players:     make(map[session.PlayerID]*Player),
		sessions:    make(map[session.ID]*session.Session),
		roundLogs:   make(map[session.ID][]session.RoundLog),
		leaderboard: make(map[session.PlayerID]*LeaderboardEntry),
	}
	return &Bundle{
		Players:     (*memoryPlayerStore)(m),
		Sessions:    (*memorySessionStore)(m),
		RoundLogs:   (*memoryRoundLogStore)(m),
		Leaderboard: (*memoryLeaderboardStore)(m),
		Close:       func() error { return nil },
	}
}

type memoryPlayerStore memoryBundle

func (s *memoryPlayerStore) GetByID(_ context.Context, id session.PlayerID) (*Player, error) {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memoryPlayerStore) Add(_ context.Context, p *Player) error {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.players[p.ID] = &cp
	return nil
}

func (s *memoryPlayerStore) Update(_ context.Context, p *Player) error {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.players[p.ID] = &cp
	return nil
}

type memorySessionStore memoryBundle

func (s *memorySessionStore) GetByID(_ context.Context, id session.ID) (*session.Session, error) {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *memorySessionStore) Add(_ context.Context, sess *session.Session) error {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID()] = sess
	return nil
}

func (s *memorySessionStore) Update(_ context.Context, sess *session.Session) error {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.ID()]; !ok {
		return ErrNotFound
	}
	m.sessions[sess.ID()] = sess
	return nil
}

func (s *memorySessionStore) GetActive(_ context.Context) ([]*session.Session, error) {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if !sess.IsCompleted() {
			out = append(out, sess)
		}
	}
	return out, nil
}

type memoryRoundLogStore memoryBundle

func (s *memoryRoundLogStore) Add(_ context.Context, log session.RoundLog) error {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roundLogs[log.SessionID] = append(m.roundLogs[log.SessionID], log)
	return nil
}

func (s *memoryRoundLogStore) GetByGameID(_ context.Context, id session.ID) ([]session.RoundLog, error) {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.RoundLog, len(m.roundLogs[id]))
	copy(out, m.roundLogs[id])
	return out, nil
}

type memoryLeaderboardStore memoryBundle

func (s *memoryLeaderboardStore) GetByPlayerID(_ context.Context, id session.PlayerID) (*LeaderboardEntry, error) {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.leaderboard[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memoryLeaderboardStore) Upsert(_ context.Context, entry LeaderboardEntry) error {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := entry
	m.leaderboard[entry.PlayerID] = &cp
	return nil
}

func (s *memoryLeaderboardStore) GetTop(_ context.Context, count int) ([]LeaderboardEntry, error) {
	m := (*memoryBundle)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]LeaderboardEntry, 0, len(m.leaderboard))
	for _, e := range m.leaderboard {
		all = append(all, *e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TotalPoints > all[j].TotalPoints })
	if count >= 0 && len(all) > count {
		all = all[:count]
	}
	return all, nil
}
