package engine

import (
	"testing"
	"time"

	"towerplane/deck"
	"towerplane/session"
)

func newTowerEngine(t *testing.T, order int, participants []session.PlayerID, maxRounds int, seed *int64) (*Engine, *deck.Design) {
	t.Helper()
	d, err := deck.Create(order)
	if err != nil {
		t.Fatalf("deck.Create(%d): %v", order, err)
	}
	e := New()
	if err := e.Initialize(participants, d, Config{MaxRounds: maxRounds, Shuffle: seed != nil, Seed: seed}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return e, d
}

// TestE1_TwoPlayersOneRoundWinner covers two players racing for the shared symbol across a round.
func TestE1_TwoPlayersOneRoundWinner(t *testing.T) {
	p1, p2 := session.PlayerID("P1"), session.PlayerID("P2")
	e, d := newTowerEngine(t, 3, []session.PlayerID{p1, p2}, 1, nil)

	now := time.Now()
	round, err := e.StartNextRound(now)
	if err != nil {
		t.Fatalf("StartNextRound: %v", err)
	}
	s, c1, c2 := round.SharedCardIndex, round.PlayerCardIndexes[p1], round.PlayerCardIndexes[p2]
	if s == c1 || s == c2 || c1 == c2 {
		t.Fatalf("round integrity violated: shared=%d c1=%d c2=%d", s, c1, c2)
	}

	m, err := d.FindCommonSymbol(s, c1)
	if err != nil {
		t.Fatalf("FindCommonSymbol: %v", err)
	}

	res, err := e.RegisterAttempt(p1, m, now.Add(time.Second))
	if err != nil {
		t.Fatalf("RegisterAttempt: %v", err)
	}
	if !res.AttemptAccepted || !res.RoundResolved {
		t.Fatalf("expected accepted+resolved, got %+v", res)
	}
	if res.ResolvingPlayerID != p1 {
		t.Fatalf("ResolvingPlayerID = %v, want %v", res.ResolvingPlayerID, p1)
	}
	if res.Scores[p1] != 1 || res.Scores[p2] != 0 {
		t.Fatalf("Scores = %v, want {P1:1 P2:0}", res.Scores)
	}
	if !res.GameCompleted {
		t.Fatal("expected GameCompleted = true after MaxRounds=1")
	}
	if !e.IsGameOver() {
		t.Fatal("expected IsGameOver() = true")
	}
}

// TestE2_WrongClickThenCorrect checks that a wrong click on the player's own card is accepted without
// resolving the round, and that a later correct click resolves it.
func TestE2_WrongClickThenCorrect(t *testing.T) {
	p1, p2 := session.PlayerID("P1"), session.PlayerID("P2")
	e, d := newTowerEngine(t, 3, []session.PlayerID{p1, p2}, 2, nil)

	now := time.Now()
	round, err := e.StartNextRound(now)
	if err != nil {
		t.Fatalf("StartNextRound: %v", err)
	}
	c2 := round.PlayerCardIndexes[p2]
	c2Symbols, _ := d.GetCard(c2)
	m, err := d.FindCommonSymbol(round.SharedCardIndex, round.PlayerCardIndexes[p1])
	if err != nil {
		t.Fatalf("FindCommonSymbol: %v", err)
	}

	var wrongSymbol int
	for _, s := range c2Symbols {
		if s != m {
			wrongSymbol = s
			break
		}
	}

	res, err := e.RegisterAttempt(p2, wrongSymbol, now.Add(time.Second))
	if err != nil {
		t.Fatalf("RegisterAttempt(wrong): %v", err)
	}
	if !res.AttemptAccepted || res.RoundResolved {
		t.Fatalf("expected accepted, unresolved, got %+v", res)
	}
	if res.Scores != nil {
		t.Fatalf("expected no scores on unresolved attempt, got %v", res.Scores)
	}

	res2, err := e.RegisterAttempt(p1, m, now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("RegisterAttempt(correct): %v", err)
	}
	if !res2.RoundResolved || res2.Scores[p1] != 1 {
		t.Fatalf("expected resolved with P1:1, got %+v", res2)
	}
	if res2.GameCompleted {
		t.Fatal("expected GameCompleted = false (MaxRounds=2, round 1 of 2)")
	}

	next, err := e.StartNextRound(now.Add(3 * time.Second))
	if err != nil {
		t.Fatalf("StartNextRound(2): %v", err)
	}
	if next.RoundNumber != 2 {
		t.Fatalf("RoundNumber = %d, want 2", next.RoundNumber)
	}
}

// TestE3_NotParticipantRejected checks that a non-participant click is rejected.
func TestE3_NotParticipantRejected(t *testing.T) {
	p1, p2, p3 := session.PlayerID("P1"), session.PlayerID("P2"), session.PlayerID("P3")
	e, _ := newTowerEngine(t, 3, []session.PlayerID{p1, p2}, 1, nil)

	now := time.Now()
	if _, err := e.StartNextRound(now); err != nil {
		t.Fatalf("StartNextRound: %v", err)
	}

	if _, err := e.RegisterAttempt(p3, 0, now); err != ErrNotParticipant {
		t.Fatalf("RegisterAttempt(p3): got %v, want ErrNotParticipant", err)
	}
	snap := e.GetScoreSnapshot()
	if snap.Scores[p1] != 0 || snap.Scores[p2] != 0 {
		t.Fatalf("scores changed after rejected attempt: %v", snap.Scores)
	}
}

func TestStartNextRound_RejectsWhileUnresolved(t *testing.T) {
	p1, p2 := session.PlayerID("P1"), session.PlayerID("P2")
	e, _ := newTowerEngine(t, 3, []session.PlayerID{p1, p2}, 2, nil)
	now := time.Now()
	if _, err := e.StartNextRound(now); err != nil {
		t.Fatalf("StartNextRound: %v", err)
	}
	if _, err := e.StartNextRound(now); err != ErrPreviousUnresolved {
		t.Fatalf("StartNextRound while unresolved: got %v, want ErrPreviousUnresolved", err)
	}
}

func TestStartNextRound_RejectsAfterGameOver(t *testing.T) {
	p1 := session.PlayerID("P1")
	e, d := newTowerEngine(t, 3, []session.PlayerID{p1}, 1, nil)
	now := time.Now()
	round, err := e.StartNextRound(now)
	if err != nil {
		t.Fatalf("StartNextRound: %v", err)
	}
	m, _ := d.FindCommonSymbol(round.SharedCardIndex, round.PlayerCardIndexes[p1])
	if _, err := e.RegisterAttempt(p1, m, now); err != nil {
		t.Fatalf("RegisterAttempt: %v", err)
	}
	if _, err := e.StartNextRound(now); err != ErrGameOverAlready {
		t.Fatalf("StartNextRound after GameOver: got %v, want ErrGameOverAlready", err)
	}
}

// TestSeededDeterminism checks that two
// engines built with the same seed deal identical rounds.
func TestSeededDeterminism(t *testing.T) {
	p1, p2 := session.PlayerID("P1"), session.PlayerID("P2")
	seed := int64(42)

	e1, _ := newTowerEngine(t, 7, []session.PlayerID{p1, p2}, 3, &seed)
	e2, _ := newTowerEngine(t, 7, []session.PlayerID{p1, p2}, 3, &seed)

	now := time.Now()
	for i := 0; i < 3; i++ {
		r1, err := e1.StartNextRound(now)
		if err != nil {
			t.Fatalf("e1 StartNextRound: %v", err)
		}
		r2, err := e2.StartNextRound(now)
		if err != nil {
			t.Fatalf("e2 StartNextRound: %v", err)
		}
		if r1.SharedCardIndex != r2.SharedCardIndex {
			t.Fatalf("round %d: SharedCardIndex differs: %d vs %d", i+1, r1.SharedCardIndex, r2.SharedCardIndex)
		}
		for _, p := range []session.PlayerID{p1, p2} {
			if r1.PlayerCardIndexes[p] != r2.PlayerCardIndexes[p] {
				t.Fatalf("round %d: player %s card differs: %d vs %d", i+1, p, r1.PlayerCardIndexes[p], r2.PlayerCardIndexes[p])
			}
		}
		m, _ := deckMustDesign(t).FindCommonSymbol(r1.SharedCardIndex, r1.PlayerCardIndexes[p1])
		if _, err := e1.RegisterAttempt(p1, m, now); err != nil {
			t.Fatalf("e1 RegisterAttempt: %v", err)
		}
		if _, err := e2.RegisterAttempt(p1, m, now); err != nil {
			t.Fatalf("e2 RegisterAttempt: %v", err)
		}
	}
}

func deckMustDesign(t *testing.T) *deck.Design {
	t.Helper()
	d, err := deck.Create(7)
	if err != nil {
		t.Fatalf("deck.Create: %v", err)
	}
	return d
}

func TestRoundIntegrity_DistinctCardsAcrossManyRounds(t *testing.T) {
	players := []session.PlayerID{"P1", "P2", "P3", "P4"}
	e, _ := newTowerEngine(t, 5, players, 5, nil)
	now := time.Now()
	for i := 0; i < 5; i++ {
		round, err := e.StartNextRound(now)
		if err != nil {
			t.Fatalf("StartNextRound(%d): %v", i, err)
		}
		seen := map[int]bool{round.SharedCardIndex: true}
		for _, p := range players {
			c := round.PlayerCardIndexes[p]
			if seen[c] {
				t.Fatalf("round %d: duplicate card index %d", i, c)
			}
			seen[c] = true
		}
		if len(round.PlayerCardIndexes) != len(players) {
			t.Fatalf("round %d: dom(PlayerCardIndexes) size = %d, want %d", i, len(round.PlayerCardIndexes), len(players))
		}
		// Resolve immediately so the next StartNextRound succeeds.
		m, _ := e.design.FindCommonSymbol(round.SharedCardIndex, round.PlayerCardIndexes[players[0]])
		if _, err := e.RegisterAttempt(players[0], m, now); err != nil {
			t.Fatalf("RegisterAttempt(%d): %v", i, err)
		}
	}
}
