package engine

import (
	"errors"
	"testing"
	"unsafe"
)

// TestStandardDeck verifies the deck has 52 unique cards plus the jokers asked for.
func TestStandardDeck(t *testing.T) {
	for jokers := uint8(0); jokers <= 2; jokers++ {
		deck := StandardDeck(jokers)
		if len(deck) != 52+int(jokers) {
			t.Fatalf("StandardDeck(%d) has %d cards", jokers, len(deck))
		}
		seen := make(map[Card]bool)
		nj := 0
		for _, c := range deck {
			if seen[c] {
				t.Errorf("duplicate card %v", c)
			}
			seen[c] = true
			if c.Rank() == RankJoker {
				nj++
			}
		}
		if nj != int(jokers) {
			t.Errorf("StandardDeck(%d) has %d jokers", jokers, nj)
		}
	}
}

// TestNewMatchSeedZero verifies that seed 0 is corrected to 1.
func TestNewMatchSeedZero(t *testing.T) {
	m := NewMatch(0, DefaultHouseRules())
	if m.RNG != 1 {
		t.Errorf("RNG = %d, want 1 for seed=0", m.RNG)
	}
	if m.Winner != -1 {
		t.Errorf("Winner = %d, want -1", m.Winner)
	}
	if m.IsDealt() {
		t.Error("new match reports dealt")
	}
}

// TestDealCounts verifies the 3/3/3 deal and the remaining stock.
func TestDealCounts(t *testing.T) {
	m := newDealtMatch(t)
	for p := uint8(0); p < 2; p++ {
		for tier := TierInHand; tier < NumTiers; tier++ {
			if n := m.Players[p].Len(tier); n != 3 {
				t.Errorf("player %d %s = %d cards, want 3", p, tier, n)
			}
		}
	}
	if m.StockLen != 34 {
		t.Errorf("StockLen = %d, want 34", m.StockLen)
	}
	if m.Pile.Len != 0 {
		t.Errorf("pile has %d cards after deal", m.Pile.Len)
	}
	if m.Current > 1 {
		t.Errorf("Current = %d, want 0 or 1", m.Current)
	}
}

// TestDealConservesCards verifies every card of the deck sits in exactly one place.
func TestDealConservesCards(t *testing.T) {
	m := newDealtMatch(t)
	checkConservation(t, m, StandardDeck(0))
}

// checkConservation asserts that tiers, stock, pile and burned cards add up to deck.
func checkConservation(t *testing.T, m *Match, deck []Card) {
	t.Helper()
	seen := make(map[Card]int)
	total := 0
	for p := uint8(0); p < m.NumActivePlayers(); p++ {
		for tier := TierInHand; tier < NumTiers; tier++ {
			for _, c := range m.Players[p].Tier(tier) {
				seen[c]++
				total++
			}
		}
	}
	for _, c := range m.Stock[:m.StockLen] {
		seen[c]++
		total++
	}
	for _, c := range m.Pile.Cards() {
		seen[c]++
		total++
	}
	if total+int(m.Burned) != len(deck) {
		t.Fatalf("cards in play %d + burned %d != deck %d", total, m.Burned, len(deck))
	}
	for c, n := range seen {
		if n > 1 {
			t.Errorf("%v appears %d times", c, n)
		}
	}
}

// TestDealDeterministic verifies the same seed deals the same match.
func TestDealDeterministic(t *testing.T) {
	a := NewMatch(12345, DefaultHouseRules())
	b := NewMatch(12345, DefaultHouseRules())
	if err := a.Deal(); err != nil {
		t.Fatal(err)
	}
	if err := b.Deal(); err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same seed produced different deals")
	}
	if a.Hash() != b.Hash() {
		t.Error("same deal hashed differently")
	}
}

// TestDealSeedsDiffer verifies different seeds produce different shuffles.
func TestDealSeedsDiffer(t *testing.T) {
	hashes := make(map[uint64]bool)
	for seed := uint64(1); seed <= 10; seed++ {
		m := NewMatch(seed, DefaultHouseRules())
		if err := m.Deal(); err != nil {
			t.Fatal(err)
		}
		hashes[m.Hash()] = true
	}
	if len(hashes) < 9 {
		t.Errorf("only %d distinct deals from 10 seeds", len(hashes))
	}
}

func TestDealFixedStart(t *testing.T) {
	rules := DefaultHouseRules()
	rules.RandomStart = false
	for seed := uint64(1); seed <= 5; seed++ {
		m := NewMatch(seed, rules)
		if err := m.Deal(); err != nil {
			t.Fatal(err)
		}
		if m.Current != 0 {
			t.Errorf("seed %d: Current = %d, want 0", seed, m.Current)
		}
	}
}

func TestDealTwice(t *testing.T) {
	m := newDealtMatch(t)
	if err := m.Deal(); !errors.Is(err, ErrInvalidRules) {
		t.Errorf("second Deal err = %v, want ErrInvalidRules", err)
	}
}

func TestDealInsufficientCards(t *testing.T) {
	m, err := NewMatchWithDeck(1, DefaultHouseRules(), StandardDeck(0)[:17])
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Deal(); !errors.Is(err, ErrInsufficientCards) {
		t.Errorf("Deal err = %v, want ErrInsufficientCards", err)
	}
	if m.IsDealt() || m.StockLen != 17 {
		t.Error("failed deal changed the match")
	}

	exact, _ := NewMatchWithDeck(1, DefaultHouseRules(), StandardDeck(0)[:18])
	if err := exact.Deal(); err != nil {
		t.Errorf("deal with exactly 18 cards: %v", err)
	}
	if exact.StockLen != 0 {
		t.Errorf("StockLen = %d, want 0", exact.StockLen)
	}
}

func TestNewMatchWithDeckTooLarge(t *testing.T) {
	deck := append(StandardDeck(2), NewCard(SuitHearts, RankTwo))
	if _, err := NewMatchWithDeck(1, DefaultHouseRules(), deck); !errors.Is(err, ErrDeckTooLarge) {
		t.Errorf("err = %v, want ErrDeckTooLarge", err)
	}
}

func TestDealPlayerCount(t *testing.T) {
	for _, n := range []uint8{1, 5} {
		rules := DefaultHouseRules()
		rules.NumPlayers = n
		m := NewMatch(1, rules)
		if err := m.Deal(); !errors.Is(err, ErrInvalidRules) {
			t.Errorf("%d players: err = %v, want ErrInvalidRules", n, err)
		}
	}
	rules := DefaultHouseRules()
	rules.NumPlayers = 4
	m := NewMatch(1, rules)
	if err := m.Deal(); err != nil {
		t.Fatalf("4 players: %v", err)
	}
	if m.StockLen != 52-36 {
		t.Errorf("StockLen = %d, want 16", m.StockLen)
	}
}

// TestMatchIsFlatValue verifies Match holds no pointers, so a copy is a snapshot.
func TestMatchIsFlatValue(t *testing.T) {
	m := newDealtMatch(t)
	s := m.Save()
	if err := m.ApplyAction(0); err != nil {
		t.Fatal(err)
	}
	if Match(s) == *m {
		t.Error("snapshot observed a later mutation")
	}
	m.Restore(s)
	if Match(s) != *m {
		t.Error("Restore did not bring back the snapshot")
	}
	if size := unsafe.Sizeof(*m); size > 2048 {
		t.Errorf("Match is %d bytes; expected a compact value", size)
	}
}

func TestSnapshotMatchIsCopy(t *testing.T) {
	m := newDealtMatch(t)
	s := m.Save()
	c := s.Match()
	if err := c.ApplyAction(0); err != nil {
		t.Fatal(err)
	}
	if s.Match() == c {
		t.Error("mutating the copy changed the snapshot")
	}
}
