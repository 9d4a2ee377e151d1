package engine

// GetUtility returns the outcome for every seat: +1 for the winner, -1 for
// every other active player. Returns all zeros while the round is running.
func (m *Match) GetUtility() [MaxPlayers]float32 {
	var u [MaxPlayers]float32
	if !m.IsTerminal() || m.Winner < 0 {
		return u
	}
	n := m.Rules.numPlayers()
	for p := uint8(0); p < n; p++ {
		u[p] = -1.0
	}
	u[m.Winner] = 1.0
	return u
}

// CardsLeft returns the number of cards each seat still holds.
func (m *Match) CardsLeft() [MaxPlayers]int {
	var left [MaxPlayers]int
	for p := uint8(0); p < m.Rules.numPlayers(); p++ {
		left[p] = m.Players[p].Count()
	}
	return left
}

// Hash returns a fast 64-bit FNV-1a hash of the match state. The same state
// always produces the same value; it is used to key cached snapshots and to
// check replay determinism.
func (m *Match) Hash() uint64 {
	h := uint64(14695981039346656037) // FNV-1a offset basis
	const prime = uint64(1099511628211)

	np := m.Rules.numPlayers()
	for p := uint8(0); p < np; p++ {
		for t := TierInHand; t < NumTiers; t++ {
			for _, c := range m.Players[p].Tier(t) {
				h ^= uint64(c)
				h *= prime
			}
			h ^= uint64(m.Players[p].Lens[t]) << (8 * (uint(t) + 1))
			h *= prime
		}
	}
	for i := uint8(0); i < m.StockLen; i++ {
		h ^= uint64(m.Stock[i])
		h *= prime
	}
	for _, c := range m.Pile.Cards() {
		h ^= uint64(c)
		h *= prime
	}
	h ^= uint64(m.Pile.Len) << 16
	h *= prime
	h ^= uint64(m.TurnNumber) << 32
	h *= prime
	h ^= uint64(m.Current) << 48
	h *= prime
	h ^= uint64(m.Flags) << 52
	h *= prime
	return h
}
