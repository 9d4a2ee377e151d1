package engine

// HouseRules holds configurable game rule settings.
type HouseRules struct {
	NumPlayers  uint8       // number of active players (2–4); 0 treated as 2
	FaceDown    uint8       // cards dealt face down per player
	FaceUp      uint8       // cards dealt face up per player
	InHand      uint8       // cards dealt into hand per player
	HandFloor   uint8       // replenish in-hand tier up to this many while the stock lasts
	NumJokers   uint8       // 0, 1, or 2 jokers in the standard deck
	RankCap     Rank        // highest rank playable while the rank-cap is active
	RandomStart bool        // if false, player 0 starts
	Effects     EffectTable // special effect per rank
}

// DefaultHouseRules returns the standard Palace house rules.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		NumPlayers:  2,
		FaceDown:    3,
		FaceUp:      3,
		InHand:      3,
		HandFloor:   3,
		NumJokers:   0,
		RankCap:     RankSeven,
		RandomStart: true,
		Effects:     DefaultEffects(),
	}
}

// numPlayers returns the effective number of players, treating 0 as 2.
func (r *HouseRules) numPlayers() uint8 {
	if r.NumPlayers == 0 {
		return 2
	}
	return r.NumPlayers
}

// cardsPerPlayer is the number of cards a deal hands to each player.
func (r *HouseRules) cardsPerPlayer() int {
	return int(r.FaceDown) + int(r.FaceUp) + int(r.InHand)
}

// rankCap returns the cap rank, treating RankNone as Seven.
func (r *HouseRules) rankCap() Rank {
	if r.RankCap == RankNone {
		return RankSeven
	}
	return r.RankCap
}
