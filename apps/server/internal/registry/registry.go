// Package registry implements the session registry & orchestrator: the
// single place that owns active runtimes and their locks, and serializes
// every mutating or reading operation on a session behind its own mutex so
// that a session's observable state transitions atomically between
// operations.
//
// Every session gets its own dedicated *sync.Mutex, held for the full
// duration of each operation including collaborator I/O.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"towerplane/apps/server/internal/store"
	"towerplane/deck"
	"towerplane/engine"
	"towerplane/session"
)

// Runtime is the live, unpersisted state of one in-progress game: the
// session aggregate, its engine, and the shared deck design it deals from.
type Runtime struct {
	Session *session.Session
	Engine  *engine.Engine
	Design  *deck.Design
}

// Registry is the process-wide orchestrator. Zero value is not usable; build
// one with New.
type Registry struct {
	cfg       Config
	validator *Validator
	stores    *store.Bundle
	design    *deck.Design

	locksMu sync.Mutex
	locks   map[session.ID]*sync.Mutex

	runtimesMu sync.Mutex
	runtimes   map[session.ID]*Runtime
}

// New builds a Registry bound to cfg and the given store Bundle. design is
// the shared, immutable deck design used to deal every session created
// under DesignOrder; it is built once at process start and never mutated.
func New(cfg Config, stores *store.Bundle, design *deck.Design) *Registry {
	return &Registry{
		cfg:       cfg,
		validator: NewValidator(cfg),
		stores:    stores,
		design:    design,
		locks:     make(map[session.ID]*sync.Mutex),
		runtimes:  make(map[session.ID]*Runtime),
	}
}

func (r *Registry) lockFor(id session.ID) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

func (r *Registry) dropLock(id session.ID) {
	r.locksMu.Lock()
	delete(r.locks, id)
	r.locksMu.Unlock()
}

func (r *Registry) getRuntime(id session.ID) (*Runtime, bool) {
	r.runtimesMu.Lock()
	defer r.runtimesMu.Unlock()
	rt, ok := r.runtimes[id]
	return rt, ok
}

func (r *Registry) setRuntime(id session.ID, rt *Runtime) {
	r.runtimesMu.Lock()
	r.runtimes[id] = rt
	r.runtimesMu.Unlock()
}

func (r *Registry) dropRuntime(id session.ID) {
	r.runtimesMu.Lock()
	delete(r.runtimes, id)
	r.runtimesMu.Unlock()
}

func checkCanceled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrCanceled
	default:
		return nil
	}
}

// CreateGame schedules a new session and persists it.
func (r *Registry) CreateGame(ctx context.Context, mode session.Mode, maxPlayers, maxRounds int) (*GameCreated, error) {
	if err := checkCanceled(ctx); err != nil {
		return nil, err
	}
	if mode != session.ModeTower {
		return nil, ErrModeNotImplemented
	}
	if maxPlayers < r.cfg.MinPlayers || maxPlayers > r.cfg.MaxPlayers {
		return nil, ErrInvalidParams
	}
	if maxRounds < r.cfg.MinRounds || maxRounds > r.cfg.MaxRounds {
		return nil, ErrInvalidParams
	}

	id := session.NewID()
	now := time.Now().UTC()
	sess, err := session.Schedule(id, mode, maxPlayers, maxRounds, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := r.stores.Sessions.Add(ctx, sess); err != nil {
		r.dropLock(id)
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return &GameCreated{GameID: id, Mode: mode, MaxPlayers: maxPlayers, MaxRounds: maxRounds}, nil
}

// JoinGame adds pid to sid's roster.
func (r *Registry) JoinGame(ctx context.Context, sid session.ID, pid session.PlayerID) error {
	if err := checkCanceled(ctx); err != nil {
		return err
	}
	lock := r.lockFor(sid)
	lock.Lock()
	defer lock.Unlock()

	sess, err := r.stores.Sessions.GetByID(ctx, sid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	player, err := r.stores.Players.GetByID(ctx, pid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	if err := r.validator.EnsurePlayerCanJoin(sess, pid); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := sess.AddParticipant(pid, now); err != nil {
		return translateSessionErr(err)
	}
	player.LastActiveAtUtc = now

	if err := r.stores.Sessions.Update(ctx, sess); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := r.stores.Players.Update(ctx, player); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// StartGame transitions sid into InRound(1), builds its runtime engine, and
// returns the first round so the dispatcher can broadcast RoundStart.
func (r *Registry) StartGame(ctx context.Context, sid session.ID) (*RoundStart, error) {
	if err := checkCanceled(ctx); err != nil {
		return nil, err
	}
	lock := r.lockFor(sid)
	lock.Lock()
	defer lock.Unlock()

	if _, active := r.getRuntime(sid); active {
		return nil, ErrAlreadyStarted
	}

	sess, err := r.stores.Sessions.GetByID(ctx, sid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := r.validator.EnsureSessionCanStart(sess); err != nil {
		return nil, err
	}

	eng := engine.New()
	if err := eng.Initialize(sess.Participants(), r.design, engine.Config{
		MaxRounds: sess.MaxRounds(),
		Shuffle:   r.cfg.ShuffleDeck,
		Seed:      r.cfg.RandomSeed,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	now := time.Now().UTC()
	if err := sess.Start(now); err != nil {
		return nil, translateSessionErr(err)
	}
	round, err := eng.StartNextRound(now)
	if err != nil {
		return nil, fmt.Errorf("registry: unexpected engine error on first round: %w", err)
	}

	if err := r.stores.Sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	r.setRuntime(sid, &Runtime{Session: sess, Engine: eng, Design: r.design})

	return roundStartFrom(sid, round), nil
}

// ClickSymbol applies a symbol-click attempt for pid against sid's active
// round. If the round resolves, it persists the round log, advances or
// finalizes the game, and returns the full result.
func (r *Registry) ClickSymbol(ctx context.Context, sid session.ID, pid session.PlayerID, symbolID int) (*RoundResult, error) {
	if err := checkCanceled(ctx); err != nil {
		return nil, err
	}
	lock := r.lockFor(sid)
	lock.Lock()
	defer lock.Unlock()

	rt, active := r.getRuntime(sid)
	if !active {
		return nil, ErrNotActive
	}

	if err := r.validator.EnsureAttemptAllowed(rt.Session, pid); err != nil {
		return nil, err
	}

	var sharedCardIndex int
	if current := rt.Engine.CurrentRound(); current != nil {
		sharedCardIndex = current.SharedCardIndex
	}

	now := time.Now().UTC()
	resolution, err := rt.Engine.RegisterAttempt(pid, symbolID, now)
	if err != nil {
		return nil, translateEngineErr(err)
	}

	result := &RoundResult{
		GameID:                   sid,
		RoundResolved:            resolution.RoundResolved,
		AttemptAccepted:          resolution.AttemptAccepted,
		ResolvingPlayerID:        resolution.ResolvingPlayerID,
		ResolvingPlayerCardIndex: resolution.ResolvingPlayerCardIndex,
		MatchingSymbolID:         resolution.MatchingSymbolID,
		RoundNumber:              resolution.RoundNumber,
		ProcessedAtUtc:           resolution.ProcessedAtUtc,
		ResolutionDuration:       resolution.ResolutionDuration,
		Scores:                   resolution.Scores,
		GameCompleted:            resolution.GameCompleted,
	}

	if !resolution.RoundResolved {
		return result, nil
	}

	winner := resolution.ResolvingPlayerID
	winnerCard := resolution.ResolvingPlayerCardIndex
	log := session.RoundLog{
		SessionID:          sid,
		RoundNumber:        resolution.RoundNumber,
		SharedCardIndex:    sharedCardIndex,
		Winner:             &winner,
		WinnerCardIndex:    &winnerCard,
		MatchingSymbolID:   resolution.MatchingSymbolID,
		LoggedAtUtc:        resolution.ProcessedAtUtc,
		ResolutionDuration: resolution.ResolutionDuration,
	}
	if err := rt.Session.RegisterRound(log, now); err != nil {
		return nil, translateSessionErr(err)
	}
	if err := r.stores.RoundLogs.Add(ctx, log); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := r.stores.Sessions.Update(ctx, rt.Session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if rt.Engine.IsGameOver() {
		if _, err := r.finalizeLocked(ctx, sid, rt); err != nil {
			return nil, err
		}
		return result, nil
	}

	next, err := rt.Engine.StartNextRound(now)
	if err != nil {
		return nil, fmt.Errorf("registry: unexpected engine error starting next round: %w", err)
	}
	result.NextRound = roundStartFrom(sid, next)
	return result, nil
}

// GetScoresSnapshot returns the live score snapshot for an active session.
func (r *Registry) GetScoresSnapshot(ctx context.Context, sid session.ID) (*session.ScoreSnapshot, error) {
	if err := checkCanceled(ctx); err != nil {
		return nil, err
	}
	lock := r.lockFor(sid)
	lock.Lock()
	defer lock.Unlock()

	rt, active := r.getRuntime(sid)
	if !active {
		return nil, ErrNotActive
	}
	snap := rt.Engine.GetScoreSnapshot()
	return &snap, nil
}

// PersistEndGame runs finalize for sid. If no runtime is active, the session
// must already be completed; its GameOver is then rebuilt from the persisted
// round logs.
func (r *Registry) PersistEndGame(ctx context.Context, sid session.ID) (*GameOver, error) {
	if err := checkCanceled(ctx); err != nil {
		return nil, err
	}
	lock := r.lockFor(sid)
	lock.Lock()
	defer lock.Unlock()

	rt, active := r.getRuntime(sid)
	if active {
		return r.finalizeLocked(ctx, sid, rt)
	}

	sess, err := r.stores.Sessions.GetByID(ctx, sid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if !sess.IsCompleted() {
		return nil, ErrNotCompleted
	}
	logs, err := r.stores.RoundLogs.GetByGameID(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	scores := make(map[session.PlayerID]int, len(sess.Participants()))
	for _, p := range sess.Participants() {
		scores[p] = 0
	}
	for _, l := range logs {
		if l.Winner != nil {
			scores[*l.Winner]++
		}
	}
	return &GameOver{GameID: sid, FinalScores: scores, CompletedAtUtc: *sess.CompletedAtUtc()}, nil
}

// finalizeLocked runs the atomic finalize sequence: complete the session,
// update each participant's stats, upsert the leaderboard, persist, and
// drop the runtime. Caller must already hold sid's lock.
func (r *Registry) finalizeLocked(ctx context.Context, sid session.ID, rt *Runtime) (*GameOver, error) {
	now := time.Now().UTC()
	snap := rt.Engine.GetScoreSnapshot()

	if !rt.Session.IsCompleted() {
		if err := rt.Session.Complete(now); err != nil {
			return nil, translateSessionErr(err)
		}
	}

	maxScore := 0
	for _, s := range snap.Scores {
		if s > maxScore {
			maxScore = s
		}
	}

	for pid, score := range snap.Scores {
		player, err := r.stores.Players.GetByID(ctx, pid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		player.RegisterGameResult(score == maxScore)
		player.LastActiveAtUtc = now
		if err := r.stores.Players.Update(ctx, player); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}

		entry := store.LeaderboardEntry{PlayerID: pid, LastUpdatedAtUtc: now}
		if existing, err := r.stores.Leaderboard.GetByPlayerID(ctx, pid); err == nil {
			entry = *existing
			entry.LastUpdatedAtUtc = now
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		entry.PlayerID = pid
		entry.TotalPoints += score
		entry.GamesPlayed++
		if score == maxScore {
			entry.GamesWon++
		}
		if err := r.stores.Leaderboard.Upsert(ctx, entry); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}

	if err := r.stores.Sessions.Update(ctx, rt.Session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	r.dropRuntime(sid)

	return &GameOver{GameID: sid, FinalScores: snap.Scores, CompletedAtUtc: now}, nil
}

// Shutdown finalizes every active session as if each received
// PersistEndGame. Collaborator errors are collected, not aborted on first
// failure, so a single misbehaving store cannot block the rest of the
// drain.
func (r *Registry) Shutdown(ctx context.Context) []error {
	r.runtimesMu.Lock()
	ids := make([]session.ID, 0, len(r.runtimes))
	for id := range r.runtimes {
		ids = append(ids, id)
	}
	r.runtimesMu.Unlock()

	var errs []error
	for _, id := range ids {
		if _, err := r.PersistEndGame(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("registry: finalize %s: %w", id.String(), err))
		}
	}
	return errs
}

func roundStartFrom(sid session.ID, rs *engine.RoundState) *RoundStart {
	return &RoundStart{
		GameID:            sid,
		RoundNumber:       rs.RoundNumber,
		SharedCardIndex:   rs.SharedCardIndex,
		PlayerCardIndexes: rs.PlayerCardIndexes,
		StartedAtUtc:      rs.StartedAtUtc,
	}
}

func translateSessionErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrAlreadyStarted):
		return &StateError{Kind: "AlreadyStarted", Err: ErrAlreadyStarted}
	case errors.Is(err, session.ErrAlreadyCompleted):
		return &StateError{Kind: "AlreadyCompleted", Err: ErrAlreadyCompleted}
	case errors.Is(err, session.ErrCapacity):
		return &StateError{Kind: "Capacity", Err: ErrCapacity}
	case errors.Is(err, session.ErrEmptyRoster):
		return &StateError{Kind: "NotEnoughPlayers", Err: ErrNotEnoughPlayers}
	case errors.Is(err, session.ErrNotStarted):
		return &StateError{Kind: "NotActive", Err: ErrNotActive}
	default:
		return &StateError{Kind: "InvalidParams", Err: fmt.Errorf("%w: %v", ErrInvalidParams, err)}
	}
}

func translateEngineErr(err error) error {
	switch err {
	case engine.ErrNotParticipant:
		return &StateError{Kind: "NotParticipant", Err: ErrNotParticipant}
	case engine.ErrNoActiveRound, engine.ErrGameOverAlready:
		return &StateError{Kind: "NotActive", Err: ErrNotActive}
	default:
		return err
	}
}
