package engine

import "testing"

func TestGetUtilityRunning(t *testing.T) {
	m := newDealtMatch(t)
	if u := m.GetUtility(); u != [MaxPlayers]float32{} {
		t.Errorf("utility before the end = %v, want zeros", u)
	}
}

func TestGetUtilityWinner(t *testing.T) {
	m := rigMatch(t, [2]seat{
		{hand: []Card{sp(RankNine)}},
		{hand: []Card{hr(RankSix)}, down: []Card{hr(RankThree)}},
	}, nil, nil)
	if err := m.ApplyAction(0); err != nil {
		t.Fatal(err)
	}
	want := [MaxPlayers]float32{1, -1, 0, 0}
	if u := m.GetUtility(); u != want {
		t.Errorf("utility = %v, want %v", u, want)
	}
	if left := m.CardsLeft(); left[0] != 0 || left[1] != 2 {
		t.Errorf("CardsLeft = %v, want [0 2 ...]", left)
	}
}

func TestHashDistinguishesStates(t *testing.T) {
	m := newDealtMatch(t)
	before := m.Hash()
	if before != m.Hash() {
		t.Fatal("Hash not stable")
	}
	s := m.Save()
	if err := m.ApplyAction(0); err != nil {
		t.Fatal(err)
	}
	if m.Hash() == before {
		t.Error("hash unchanged after a play")
	}
	m.Restore(s)
	if m.Hash() != before {
		t.Error("hash differs after Restore")
	}
}

// TestHashCardOrder verifies swapping two in-hand cards changes the hash.
func TestHashCardOrder(t *testing.T) {
	m := newDealtMatch(t)
	before := m.Hash()
	cards := m.Players[0].Tier(TierInHand)
	if cards[0] == cards[1] {
		t.Skip("identical cards")
	}
	cards[0], cards[1] = cards[1], cards[0]
	if m.Hash() == before {
		t.Error("hash ignores in-hand order")
	}
}
