package simulation

import (
	"fmt"
	"math/bits"
	"math/rand/v2"
	"strings"

	engine "github.com/palacecards/palace/engine"
)

// Policy chooses an action for the acting player of m.
type Policy interface {
	Choose(m *engine.Match, rng *rand.Rand) uint16
}

// PolicyType names a built-in policy.
type PolicyType uint8

const (
	RandomAI  PolicyType = 0
	GreedyAI  PolicyType = 1
	RolloutAI PolicyType = 2
)

func (p PolicyType) String() string {
	switch p {
	case RandomAI:
		return "random"
	case GreedyAI:
		return "greedy"
	case RolloutAI:
		return "rollout"
	}
	return "unknown"
}

// ParsePolicy maps a policy name to its type.
func ParsePolicy(s string) (PolicyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "random":
		return RandomAI, nil
	case "greedy":
		return GreedyAI, nil
	case "rollout", "mc":
		return RolloutAI, nil
	}
	return 0, fmt.Errorf("unknown policy %q (want random, greedy or rollout)", s)
}

// NewPolicy returns the built-in policy for t with default settings.
func NewPolicy(t PolicyType) Policy {
	switch t {
	case GreedyAI:
		return GreedyPolicy{}
	case RolloutAI:
		return RolloutPolicy{Samples: 16, MaxTurns: 300}
	default:
		return RandomPolicy{}
	}
}

// pickBit returns the index of a uniformly chosen set bit of mask (non-zero).
func pickBit(mask uint64, rng *rand.Rand) uint16 {
	k := rng.IntN(bits.OnesCount64(mask))
	for ; k > 0; k-- {
		mask &= mask - 1
	}
	return uint16(bits.TrailingZeros64(mask))
}

// RandomPolicy plays uniformly over the in-range actions, leaving out the
// voluntary pickup whenever a card can be played.
type RandomPolicy struct{}

func (RandomPolicy) Choose(m *engine.Match, rng *rand.Rand) uint16 {
	mask := m.LegalActions()
	if plays := mask &^ (1 << engine.ActionPickUp); plays != 0 {
		return pickBit(plays, rng)
	}
	if mask != 0 {
		return engine.ActionPickUp
	}
	return 0
}

// GreedyPolicy plays its lowest accepted card, holding special ranks back
// until nothing else is accepted, and picks the pile up otherwise. Blind
// tiers play the first face-down card.
type GreedyPolicy struct{}

func (GreedyPolicy) Choose(m *engine.Match, _ *rand.Rand) uint16 {
	tier, cards := m.PlayableTier()
	if tier == engine.TierFaceDown {
		return 0
	}
	accepted := m.PlayableMask()
	best, bestSpecial := -1, -1
	for i, c := range cards {
		if accepted>>uint(i)&1 == 0 {
			continue
		}
		v := c.Rank().Value()
		if m.Rules.EffectOf(c.Rank()).Special() {
			if bestSpecial < 0 || v < cards[bestSpecial].Rank().Value() {
				bestSpecial = i
			}
			continue
		}
		if best < 0 || v < cards[best].Rank().Value() {
			best = i
		}
	}
	switch {
	case best >= 0:
		return uint16(best)
	case bestSpecial >= 0:
		return uint16(bestSpecial)
	case m.Pile.Len > 0:
		return engine.ActionPickUp
	}
	return 0
}

// RolloutPolicy scores every candidate action by Monte Carlo playouts from
// the resulting state and plays the best. Candidates are the accepted cards
// and, when the pile is non-empty, the voluntary pickup.
type RolloutPolicy struct {
	Samples  int
	MaxTurns int
}

func (p RolloutPolicy) Choose(m *engine.Match, rng *rand.Rand) uint16 {
	tier, _ := m.PlayableTier()
	if tier == engine.TierFaceDown {
		return 0
	}
	candidates := m.PlayableMask()
	if m.Pile.Len > 0 {
		candidates |= 1 << engine.ActionPickUp
	}
	if candidates == 0 {
		return 0
	}
	if bits.OnesCount64(candidates) == 1 {
		return uint16(bits.TrailingZeros64(candidates))
	}

	player := m.ActingPlayer()
	best := uint16(0)
	bestValue := float32(-2)
	for mask := candidates; mask != 0; mask &= mask - 1 {
		a := uint16(bits.TrailingZeros64(mask))
		next := *m
		if err := next.ApplyAction(a); err != nil {
			continue
		}
		v := next.RolloutEval(player, p.Samples, p.MaxTurns, rng)
		if v > bestValue {
			best, bestValue = a, v
		}
	}
	return best
}
