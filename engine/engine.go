// Package engine implements the Tower game mode: it deals cards, advances
// rounds, arbitrates the first-correct-click winner, keeps scores, and
// decides end-of-game. It owns a session's in-memory runtime only; nothing
// here is persisted directly.
//
// An Engine is not internally synchronized. Callers (the registry) must
// hold the owning session's lock for the full duration of every call; that
// external serialization is what gives RegisterAttempt its
// at-most-one-winner guarantee.
package engine

import (
	"math/rand"
	"time"

	"towerplane/deck"
	"towerplane/session"
)

// Engine is the Tower mode runtime for one session. Engine{} zero value is
// not usable; construct with New and call Initialize before anything else.
type Engine struct {
	design       *deck.Design
	maxRounds    int
	participants []session.PlayerID
	scores       map[session.PlayerID]int
	current      *RoundState
	roundNumber  int
	gameOver     bool

	deckOrder []int
	cursor    int
}

// New returns a zero-value, uninitialized Engine. Call Initialize before any
// other method.
func New() *Engine {
	return &Engine{}
}

// Initialize binds the session's participants and the shared Design, and
// builds the engine's fixed deck order for the runtime's lifetime.
func (e *Engine) Initialize(participants []session.PlayerID, design *deck.Design, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	e.design = design
	e.maxRounds = cfg.MaxRounds
	e.participants = append([]session.PlayerID(nil), participants...)
	e.scores = make(map[session.PlayerID]int, len(participants))
	for _, p := range participants {
		e.scores[p] = 0
	}
	e.current = nil
	e.roundNumber = 0
	e.gameOver = false
	e.cursor = 0

	cardCount := design.CardCount()
	e.deckOrder = make([]int, cardCount)
	for i := range e.deckOrder {
		e.deckOrder[i] = i
	}
	if cfg.Shuffle {
		var rng *rand.Rand
		if cfg.Seed != nil {
			rng = rand.New(rand.NewSource(*cfg.Seed))
		} else {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		rng.Shuffle(len(e.deckOrder), func(i, j int) {
			e.deckOrder[i], e.deckOrder[j] = e.deckOrder[j], e.deckOrder[i]
		})
	}
	return nil
}

// IsGameOver reports whether the engine has reached the terminal GameOver
// state.
func (e *Engine) IsGameOver() bool { return e.gameOver }

// RoundNumber reports the most recently started round number (0 before the
// first StartNextRound call).
func (e *Engine) RoundNumber() int { return e.roundNumber }

// CurrentRound returns a copy of the in-progress round, or nil if none.
func (e *Engine) CurrentRound() *RoundState {
	if e.current == nil {
		return nil
	}
	cp := *e.current
	cp.PlayerCardIndexes = make(map[session.PlayerID]int, len(e.current.PlayerCardIndexes))
	for k, v := range e.current.PlayerCardIndexes {
		cp.PlayerCardIndexes[k] = v
	}
	return &cp
}

// StartNextRound deals the next round: it draws len(participants)+1
// consecutive, non-repeating card indices from the fixed deck order,
// assigns the first as the shared card and the rest to participants in
// roster order, and advances RoundNumber.
func (e *Engine) StartNextRound(nowUtc time.Time) (*RoundState, error) {
	if e.gameOver {
		return nil, ErrGameOverAlready
	}
	if e.current != nil && !e.current.resolved() {
		return nil, ErrPreviousUnresolved
	}

	sliceSize := len(e.participants) + 1
	if e.cursor+sliceSize > len(e.deckOrder) {
		e.cursor = 0
	}
	slice := e.deckOrder[e.cursor : e.cursor+sliceSize]
	e.cursor += sliceSize

	shared := slice[0]
	playerCards := make(map[session.PlayerID]int, len(e.participants))
	for i, p := range e.participants {
		playerCards[p] = slice[i+1]
	}

	e.roundNumber++
	e.current = &RoundState{
		RoundNumber:       e.roundNumber,
		SharedCardIndex:   shared,
		PlayerCardIndexes: playerCards,
		StartedAtUtc:      nowUtc,
	}
	return e.CurrentRound(), nil
}

// RegisterAttempt applies a player's symbol-click attempt. The first
// correct attempt to reach this call resolves the round; serialization is
// the caller's responsibility (see the package doc comment).
func (e *Engine) RegisterAttempt(playerID session.PlayerID, symbolID int, nowUtc time.Time) (*Resolution, error) {
	if e.current == nil || e.gameOver {
		return nil, ErrNoActiveRound
	}
	c, ok := e.current.PlayerCardIndexes[playerID]
	if !ok {
		return nil, ErrNotParticipant
	}
	s := e.current.SharedCardIndex

	matching, err := e.design.FindCommonSymbol(s, c)
	if err != nil {
		return nil, err
	}
	accepted, err := e.design.CardHasSymbol(c, symbolID)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		AttemptAccepted: accepted,
		RoundNumber:      e.current.RoundNumber,
		ProcessedAtUtc:   nowUtc,
	}

	if !accepted || symbolID != matching {
		res.RoundResolved = false
		return res, nil
	}

	winner := playerID
	e.current.Winner = &winner
	resolvedAt := nowUtc
	e.current.ResolvedAtUtc = &resolvedAt
	e.scores[playerID]++
	duration := nowUtc.Sub(e.current.StartedAtUtc)

	res.RoundResolved = true
	res.ResolvingPlayerID = playerID
	res.ResolvingPlayerCardIndex = c
	res.MatchingSymbolID = matching
	res.ResolutionDuration = duration
	res.Scores = copyScores(e.scores)

	e.current = nil
	if e.roundNumber >= e.maxRounds {
		e.gameOver = true
	}
	res.GameCompleted = e.gameOver

	return res, nil
}

// GetScoreSnapshot returns an immutable copy of the current scores.
func (e *Engine) GetScoreSnapshot() session.ScoreSnapshot {
	return session.ScoreSnapshot{
		Scores:        copyScores(e.scores),
		CapturedAtUtc: time.Now().UTC(),
	}
}
