package engine

import (
	"math/bits"
	"math/rand/v2"
)

// RolloutEval estimates the value of the match for player by Monte Carlo
// playouts. Each sample copies the match, reseeds the copy's generator from
// rng (so blind plays and the hidden draw order vary), and plays uniformly
// random accepted cards, picking up when none is accepted, until the round
// ends or maxTurns actions have been applied.
//
// A finished playout scores +1 for a win and -1 for a loss. An unfinished one
// scores (opp - own) / (opp + own), where own is player's card count and opp
// the mean over the other seats. The result is the mean over samples.
//
// The caller supplies rng (math/rand/v2) for thread safety and determinism.
// Recommended seeding:
//
//	seed := m.Hash()
//	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
func (m *Match) RolloutEval(player uint8, numSamples, maxTurns int, rng *rand.Rand) float32 {
	if numSamples <= 0 {
		return 0
	}
	if m.IsTerminal() {
		return m.GetUtility()[player]
	}

	var total float32
	for s := 0; s < numSamples; s++ {
		c := *m
		c.RNG = rng.Uint64() | 1
		for turn := 0; turn < maxTurns && !c.IsTerminal(); turn++ {
			if err := c.ApplyAction(c.rolloutAction(rng)); err != nil {
				break
			}
		}
		total += c.playoutScore(player)
	}
	return total / float32(numSamples)
}

// rolloutAction picks a uniformly random accepted play, else a pickup, else
// the first index (which resolves as a forced pickup or a blind play).
func (m *Match) rolloutAction(rng *rand.Rand) uint16 {
	if mask := m.PlayableMask(); mask != 0 {
		k := rng.IntN(bits.OnesCount64(mask))
		for ; k > 0; k-- {
			mask &= mask - 1
		}
		return uint16(bits.TrailingZeros64(mask))
	}
	if m.Pile.Len > 0 {
		return ActionPickUp
	}
	return 0
}

// playoutScore scores a playout from player's point of view.
func (m *Match) playoutScore(player uint8) float32 {
	if m.IsTerminal() {
		return m.GetUtility()[player]
	}
	left := m.CardsLeft()
	n := m.Rules.numPlayers()
	var opp float32
	for p := uint8(0); p < n; p++ {
		if p != player {
			opp += float32(left[p])
		}
	}
	opp /= float32(n - 1)
	own := float32(left[player])
	if opp+own == 0 {
		return 0
	}
	return (opp - own) / (opp + own)
}
