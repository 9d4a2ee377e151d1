package agent

import engine "github.com/palacecards/palace/engine"

// Encode writes the 172-dim feature vector of m, as seen by the acting
// player, into out. out is zeroed internally before writing.
func Encode(m *engine.Match, out *[InputDim]float32) {
	EncodeFor(m, m.ActingPlayer(), out)
}

// EncodeFor writes the feature vector of m as seen by viewer into out.
// Layout (172 total):
//
//	[0-167]  4 seats × 3 tiers × 14 rank counts. Seat 0 is the viewer, seat k
//	         the k-th player after it. Tiers in order in-hand, face-up,
//	         face-down. Ranks Two..Ace, then Joker.
//	[168]    pile top rank value (2-15), 0 for an empty pile
//	[169]    rank-cap flag (0 or 1)
//	[170]    pile size in cards
//	[171]    stock size in cards
//
// Counts are raw, not normalized. Face-down counts are included, so the
// encoding is full-information.
func EncodeFor(m *engine.Match, viewer uint8, out *[InputDim]float32) {
	*out = [InputDim]float32{}

	n := m.NumActivePlayers()
	for p := uint8(0); p < n; p++ {
		seat := RelativeSeat(viewer, p, n)
		hand := &m.Players[p]
		for tier := engine.TierInHand; tier < engine.NumTiers; tier++ {
			for _, c := range hand.Tier(tier) {
				if off := FeatureOffset(seat, tier, c.Rank()); off >= 0 {
					out[off]++
				}
			}
		}
	}
	// offset = 168

	out[OffsetPileTop] = float32(m.Pile.TopRank().Value())
	if m.RankCapActive() {
		out[OffsetRankCap] = 1.0
	}
	out[OffsetPileSize] = float32(m.Pile.Len)
	out[OffsetStockSize] = float32(m.StockLen)
	// offset = 172
}

// ActionMask writes the legal action mask into out.
// legalActions is the bitmask from Match.LegalActions() or Match.PlayableMask().
func ActionMask(legalActions uint64, out *[NumActions]bool) {
	*out = [NumActions]bool{}
	for i := 0; i < NumActions; i++ {
		if legalActions&(1<<uint(i)) != 0 {
			out[i] = true
		}
	}
}
