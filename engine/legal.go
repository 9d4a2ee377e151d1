package engine

// EffectOf returns the special effect of rank under these rules.
func (r *HouseRules) EffectOf(rank Rank) Effect {
	if int(rank) >= len(r.Effects) {
		return EffectNone
	}
	return r.Effects[rank]
}

// IsLegal reports whether a card of the given rank may be played onto a pile
// whose top rank is top (RankNone for an empty pile).
//
//   - An empty pile accepts anything.
//   - Wild and special ranks are always accepted.
//   - While the rank-cap is active, ranks above the cap are rejected.
//   - A wild card on top imposes no constraint.
//   - Otherwise the rank must be at least the top rank (ties are legal), so
//     under the cap only ranks between the top and the cap are accepted.
func (r *HouseRules) IsLegal(rank, top Rank, rankCap bool) bool {
	if top == RankNone {
		return true
	}
	if r.EffectOf(rank).Special() {
		return true
	}
	if rankCap && rank.Value() > r.rankCap().Value() {
		return false
	}
	if r.EffectOf(top) == EffectWild {
		return true
	}
	return rank.Value() >= top.Value()
}

// IsLegal reports whether rank may be played on the match's pile right now.
func (m *Match) IsLegal(rank Rank) bool {
	return m.Rules.IsLegal(rank, m.Pile.TopRank(), m.RankCapActive())
}

// setBit sets bit idx in the bitmask.
func setBit(mask *uint64, idx uint16) {
	*mask |= 1 << idx
}

// LegalActions returns a bitmask of in-range action indices for the current
// player: one bit per card of the playable tier, plus ActionPickUp when the
// pile is non-empty. A play whose rank the pile rejects is still in range;
// applying it causes a forced pickup.
func (m *Match) LegalActions() uint64 {
	var mask uint64
	if m.IsTerminal() {
		return mask
	}
	_, cards := m.Players[m.Current].PlayableTier()
	for i := range cards {
		setBit(&mask, uint16(i))
	}
	if m.Pile.Len > 0 {
		setBit(&mask, ActionPickUp)
	}
	return mask
}

// LegalActionsList returns legal actions as a slice (allocates).
func (m *Match) LegalActionsList() []uint16 {
	mask := m.LegalActions()
	var actions []uint16
	for i := uint16(0); i < NumActions; i++ {
		if mask>>i&1 == 1 {
			actions = append(actions, i)
		}
	}
	return actions
}

// PlayableMask returns a bitmask of playable-tier indices whose card the pile
// would accept. Face-down cards are unknown to the player, so every blind
// index is reported.
func (m *Match) PlayableMask() uint64 {
	var mask uint64
	if m.IsTerminal() {
		return mask
	}
	tier, cards := m.Players[m.Current].PlayableTier()
	for i, c := range cards {
		if tier == TierFaceDown || m.IsLegal(c.Rank()) {
			setBit(&mask, uint16(i))
		}
	}
	return mask
}
