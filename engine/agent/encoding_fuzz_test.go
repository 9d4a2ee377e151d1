//go:build encodingfuzz

package agent

import (
	"fmt"
	"math"
	"math/bits"
	"testing"

	engine "github.com/palacecards/palace/engine"
)

// pickActionEncFuzz selects a random in-range action from the bitmask using a
// deterministic xorshift64 RNG. Returns 0 if no actions are in range.
func pickActionEncFuzz(mask uint64, rngState *uint64) uint16 {
	n := bits.OnesCount64(mask)
	if n == 0 {
		return 0
	}
	x := *rngState
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*rngState = x
	k := int(x % uint64(n))
	for ; k > 0; k-- {
		mask &= mask - 1
	}
	return uint16(bits.TrailingZeros64(mask))
}

// checkEncoding runs the encoding invariants on one match state.
// Returns the number of violations found.
func checkEncoding(t *testing.T, m *engine.Match, seed, step int) int {
	t.Helper()
	failures := 0
	prefix := fmt.Sprintf("seed=%d step=%d", seed, step)

	var out [InputDim]float32
	Encode(m, &out)

	for i, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) || v < 0 {
			t.Errorf("%s: out[%d] = %v", prefix, i, v)
			failures++
		}
	}

	// Counters plus stock, pile and burned cards cover the whole deck.
	var held float32
	for _, v := range out[:HandDim] {
		held += v
	}
	total := int(held) + int(out[OffsetStockSize]) + int(out[OffsetPileSize]) + int(m.Burned)
	if deck := 52 + int(m.Rules.NumJokers); total != deck {
		t.Errorf("%s: encoded %d cards, deck has %d", prefix, total, deck)
		failures++
	}

	// The acting seat's playable tier matches seat block 0.
	tier, cards := m.PlayableTier()
	if tier != engine.TierNone {
		var sum float32
		for _, v := range out[int(tier)*TierDim : int(tier+1)*TierDim] {
			sum += v
		}
		if int(sum) != len(cards) {
			t.Errorf("%s: playable tier encodes %d cards, holds %d", prefix, int(sum), len(cards))
			failures++
		}
	}

	if (out[OffsetRankCap] == 1) != m.RankCapActive() {
		t.Errorf("%s: rank-cap feature disagrees with match", prefix)
		failures++
	}

	var mask [NumActions]bool
	ActionMask(m.LegalActions(), &mask)
	trueCount := 0
	for _, v := range mask {
		if v {
			trueCount++
		}
	}
	if trueCount != bits.OnesCount64(m.LegalActions()) {
		t.Errorf("%s: ActionMask has %d entries, bitmask %d", prefix, trueCount, bits.OnesCount64(m.LegalActions()))
		failures++
	}

	var out2 [InputDim]float32
	Encode(m, &out2)
	if out != out2 {
		t.Errorf("%s: encoding not deterministic", prefix)
		failures++
	}
	return failures
}

// TestEncodingFuzz plays random games and checks the encoding at every step.
func TestEncodingFuzz(t *testing.T) {
	const numGames = 100
	const maxSteps = 5000
	totalSteps := 0
	totalFailures := 0

	for seed := 0; seed < numGames; seed++ {
		rules := engine.DefaultHouseRules()
		rules.NumPlayers = uint8(2 + seed%3)
		rules.NumJokers = uint8(seed % 3)
		m := engine.NewMatch(uint64(seed+1), rules)
		if err := m.Deal(); err != nil {
			t.Fatalf("seed=%d Deal: %v", seed, err)
		}
		rng := uint64(seed + 1)
		for step := 0; step < maxSteps && !m.IsTerminal(); step++ {
			totalFailures += checkEncoding(t, &m, seed, step)
			if totalFailures > 20 {
				t.Fatalf("too many failures")
			}
			// Prefer accepted plays so games make progress.
			mask := m.PlayableMask()
			if mask == 0 {
				mask = m.LegalActions()
			}
			if err := m.ApplyAction(pickActionEncFuzz(mask, &rng)); err != nil {
				t.Fatalf("seed=%d step=%d: %v", seed, step, err)
			}
			totalSteps++
		}
	}
	t.Logf("checked %d states", totalSteps)
}
