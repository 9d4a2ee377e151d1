package engine

import "fmt"

// Hand holds one player's three tiers. Each tier keeps its cards in the
// order they arrived, which is the order play indices refer to.
type Hand struct {
	Cards [NumTiers][DeckSize]Card
	Lens  [NumTiers]uint8
}

// Tier returns the cards of tier t. The slice aliases the hand.
func (h *Hand) Tier(t Tier) []Card {
	return h.Cards[t][:h.Lens[t]]
}

// Len returns the number of cards in tier t.
func (h *Hand) Len(t Tier) uint8 { return h.Lens[t] }

// Add appends c to tier t.
func (h *Hand) Add(t Tier, c Card) {
	h.Cards[t][h.Lens[t]] = c
	h.Lens[t]++
}

// PlayableTier returns the tier the player must play from: in-hand, then
// face-up, then face-down. It returns TierNone and nil when the player
// holds no cards.
func (h *Hand) PlayableTier() (Tier, []Card) {
	for t := TierInHand; t < NumTiers; t++ {
		if h.Lens[t] > 0 {
			return t, h.Tier(t)
		}
	}
	return TierNone, nil
}

// RemoveAt removes and returns the card at idx of tier t, keeping the
// remaining cards in order. idx must be in range.
func (h *Hand) RemoveAt(t Tier, idx uint8) Card {
	n := h.Lens[t]
	c := h.Cards[t][idx]
	copy(h.Cards[t][idx:n-1], h.Cards[t][idx+1:n])
	h.Lens[t]--
	return c
}

// RemoveCard removes one instance of c from tier t.
func (h *Hand) RemoveCard(t Tier, c Card) error {
	for i := uint8(0); i < h.Lens[t]; i++ {
		if h.Cards[t][i] == c {
			h.RemoveAt(t, i)
			return nil
		}
	}
	return fmt.Errorf("%w: %v not %s", ErrCardNotFound, c, t)
}

// PromoteFaceUp moves every face-up card into the in-hand tier and returns
// how many moved.
func (h *Hand) PromoteFaceUp() uint8 {
	n := h.Lens[TierFaceUp]
	for _, c := range h.Tier(TierFaceUp) {
		h.Add(TierInHand, c)
	}
	h.Lens[TierFaceUp] = 0
	return n
}

// AbsorbPile moves the whole pile, bottom first, into the in-hand tier and
// leaves the pile empty. It returns the number of cards taken.
func (h *Hand) AbsorbPile(p *Pile) uint8 {
	for _, c := range p.Cards() {
		h.Add(TierInHand, c)
	}
	return p.Burn()
}

// Count returns the total number of cards across all tiers.
func (h *Hand) Count() int {
	return int(h.Lens[TierInHand]) + int(h.Lens[TierFaceUp]) + int(h.Lens[TierFaceDown])
}

// IsEmpty reports whether all three tiers are empty.
func (h *Hand) IsEmpty() bool { return h.Count() == 0 }
