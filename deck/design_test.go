package deck

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCreate_RejectsNonPrimeAndTooSmall(t *testing.T) {
	cases := []int{-1, 0, 1, 4, 6, 8, 9, 10}
	for _, n := range cases {
		if _, err := Create(n); err == nil {
			t.Errorf("Create(%d): expected ErrInvalidOrder, got nil", n)
		}
	}
}

func TestCreate_Dimensions(t *testing.T) {
	for _, n := range []int{2, 3, 5, 7} {
		d, err := Create(n)
		if err != nil {
			t.Fatalf("Create(%d): %v", n, err)
		}
		wantCount := n*n + n + 1
		if d.CardCount() != wantCount {
			t.Errorf("n=%d: CardCount() = %d, want %d", n, d.CardCount(), wantCount)
		}
		if d.SymbolCount() != wantCount {
			t.Errorf("n=%d: SymbolCount() = %d, want %d", n, d.SymbolCount(), wantCount)
		}
		if d.SymbolsPerCard() != n+1 {
			t.Errorf("n=%d: SymbolsPerCard() = %d, want %d", n, d.SymbolsPerCard(), n+1)
		}
		for i := 0; i < d.CardCount(); i++ {
			c, err := d.GetCard(i)
			if err != nil {
				t.Fatalf("GetCard(%d): %v", i, err)
			}
			if len(c) != n+1 {
				t.Errorf("card %d has %d symbols, want %d", i, len(c), n+1)
			}
			seen := map[int]struct{}{}
			for _, s := range c {
				if s < 0 || s >= d.SymbolCount() {
					t.Errorf("card %d has out-of-range symbol %d", i, s)
				}
				if _, dup := seen[s]; dup {
					t.Errorf("card %d has duplicate symbol %d", i, s)
				}
				seen[s] = struct{}{}
			}
		}
	}
}

// TestUniqueIntersection is testable property 1 from §8: for every distinct
// pair i != j, |cards[i] ∩ cards[j]| = 1, quantified over n in {2,3,5,7}.
func TestUniqueIntersection(t *testing.T) {
	for _, n := range []int{2, 3, 5, 7} {
		d, err := Create(n)
		if err != nil {
			t.Fatalf("Create(%d): %v", n, err)
		}
		ok, msg := d.Validate()
		if !ok {
			t.Fatalf("n=%d: Validate() failed: %s", n, msg)
		}
	}
}

// TestSymbolAppearsOnNPlusOneCards is invariant P2.
func TestSymbolAppearsOnNPlusOneCards(t *testing.T) {
	for _, n := range []int{2, 3, 5} {
		d, err := Create(n)
		if err != nil {
			t.Fatalf("Create(%d): %v", n, err)
		}
		counts := make(map[int]int, d.SymbolCount())
		for i := 0; i < d.CardCount(); i++ {
			c, _ := d.GetCard(i)
			for _, s := range c {
				counts[s]++
			}
		}
		for s := 0; s < d.SymbolCount(); s++ {
			if counts[s] != n+1 {
				t.Errorf("n=%d: symbol %d appears on %d cards, want %d", n, s, counts[s], n+1)
			}
		}
	}
}

func TestFindCommonSymbol_SameCardFails(t *testing.T) {
	d, err := Create(3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := d.FindCommonSymbol(2, 2); err == nil {
		t.Fatal("expected ErrSameCard, got nil")
	}
}

func TestGetCard_OutOfRange(t *testing.T) {
	d, err := Create(3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := d.GetCard(-1); err == nil {
		t.Fatal("expected ErrOutOfRange for -1")
	}
	if _, err := d.GetCard(d.CardCount()); err == nil {
		t.Fatal("expected ErrOutOfRange for cardCount")
	}
}

func TestStats(t *testing.T) {
	d, err := Create(7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := Stats{Order: 7, CardCount: 57, SymbolCount: 57, SymbolsPerCard: 8}
	if diff := cmp.Diff(want, d.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestCardHasSymbol(t *testing.T) {
	d, err := Create(3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c0, _ := d.GetCard(0)
	has, err := d.CardHasSymbol(0, c0[0])
	if err != nil || !has {
		t.Fatalf("CardHasSymbol(0, %d) = %v, %v, want true, nil", c0[0], has, err)
	}
	// Symbol count - 1 is always a valid id; confirm a symbol not on card 0
	// correctly reports false (card 0 has only symbolsPerCard of the total).
	allSymbols := map[int]struct{}{}
	for _, s := range c0 {
		allSymbols[s] = struct{}{}
	}
	for s := 0; s < d.SymbolCount(); s++ {
		if _, on := allSymbols[s]; !on {
			has, err := d.CardHasSymbol(0, s)
			if err != nil || has {
				t.Fatalf("CardHasSymbol(0, %d) = %v, %v, want false, nil", s, has, err)
			}
			break
		}
	}
}
