package engine

import "fmt"

// ApplyAction applies an action for the current player.
//
// Indices below MaxPlayable select a card of the playable tier; ActionPickUp
// takes the pile into hand. A play the pile rejects is a valid action that
// ends in a forced pickup. Errors leave the match unchanged.
func (m *Match) ApplyAction(actionIdx uint16) error {
	if !m.IsDealt() {
		return ErrNotDealt
	}
	if m.IsGameOver() {
		return ErrGameOver
	}

	if actionIdx == ActionPickUp {
		return m.pickUp()
	}

	player := m.Current
	hand := &m.Players[player]
	tier, cards := hand.PlayableTier()
	if tier == TierNone {
		// Nothing left to play: the player has shed every card.
		m.finish(player)
		return nil
	}
	if actionIdx >= uint16(len(cards)) {
		return fmt.Errorf("%w: index %d, %s tier holds %d", ErrInvalidAction, actionIdx, tier, len(cards))
	}
	return m.play(player, tier, uint8(actionIdx))
}

// play resolves a single card from tier at idx.
func (m *Match) play(player uint8, tier Tier, idx uint8) error {
	hand := &m.Players[player]
	action := uint16(idx)
	blind := tier == TierFaceDown
	if blind {
		idx = uint8(m.randN(uint64(hand.Len(tier))))
	}
	card := hand.Cards[tier][idx]
	if err := hand.RemoveCard(tier, card); err != nil {
		panic(fmt.Sprintf("engine: player %d: %v", player, err))
	}

	m.LastAction = LastActionInfo{
		ActionIdx:    action,
		ActingPlayer: player,
		Card:         card,
		FromTier:     tier,
		Blind:        blind,
	}

	if !m.IsLegal(card.Rank()) {
		// Forced pickup: the pile, then the rejected card, go into hand.
		taken := hand.AbsorbPile(&m.Pile)
		hand.Add(TierInHand, card)
		m.LastAction.PickedUp = taken + 1
		m.Flags &^= FlagRankCap
		m.endTurn(player, true)
		return nil
	}

	m.Pile.Push(card)
	m.LastAction.Legal = true

	effect := m.Rules.EffectOf(card.Rank())
	m.LastAction.Effect = effect
	switch effect {
	case EffectBurn:
		burned := m.Pile.Burn()
		m.Burned += burned
		m.LastAction.Burned = burned
		m.Flags &^= FlagRankCap
	case EffectRankCap:
		m.Flags |= FlagRankCap
	default:
		// Reset, wild and plain plays all lift the cap.
		m.Flags &^= FlagRankCap
	}

	m.endTurn(player, !effect.ExtraPlay())
	return nil
}

// pickUp handles a voluntary pickup of the whole pile.
func (m *Match) pickUp() error {
	if m.Pile.Len == 0 {
		return ErrEmptyPileAbsorb
	}
	player := m.Current
	taken := m.Players[player].AbsorbPile(&m.Pile)
	m.LastAction = LastActionInfo{
		ActionIdx:    ActionPickUp,
		ActingPlayer: player,
		Card:         EmptyCard,
		FromTier:     TierNone,
		PickedUp:     taken,
	}
	m.Flags &^= FlagRankCap
	m.endTurn(player, true)
	return nil
}

// endTurn replenishes the acting player's hand, checks for a win and, when
// pass is set, hands the turn to the next player.
func (m *Match) endTurn(player uint8, pass bool) {
	m.LastAction.Drawn = m.replenish(player)
	m.TurnNumber++

	if m.Players[player].IsEmpty() {
		m.finish(player)
		return
	}
	if pass {
		m.Current = m.NextPlayer(player)
	}
	m.prepareTurn()
}

// replenish draws from the stock, one card at a time, until the player's
// in-hand tier reaches the hand floor or the stock runs out.
func (m *Match) replenish(player uint8) uint8 {
	hand := &m.Players[player]
	var drawn uint8
	for m.StockLen > 0 && hand.Len(TierInHand) < m.Rules.HandFloor {
		hand.Add(TierInHand, m.draw())
		drawn++
	}
	return drawn
}

// prepareTurn promotes the current player's face-up cards into hand once
// both their hand and the stock are exhausted.
func (m *Match) prepareTurn() {
	hand := &m.Players[m.Current]
	if hand.Len(TierInHand) == 0 && m.StockLen == 0 && hand.Len(TierFaceUp) > 0 {
		m.LastAction.Promoted = hand.PromoteFaceUp()
	}
}

// finish ends the round with player as the winner.
func (m *Match) finish(player uint8) {
	m.Flags |= FlagGameOver
	m.Flags &^= FlagRankCap
	m.Winner = int8(player)
}

// PlayCard plays a specific card from the current player's playable tier.
// It is a convenience for interactive drivers that select by card rather
// than by index; face-down tiers still play blind.
func (m *Match) PlayCard(c Card) error {
	tier, cards := m.PlayableTier()
	for i, held := range cards {
		if held == c || tier == TierFaceDown {
			return m.ApplyAction(uint16(i))
		}
	}
	return fmt.Errorf("%w: %v is not playable", ErrInvalidAction, c)
}
