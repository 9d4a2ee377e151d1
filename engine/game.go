// Package engine implements the Palace card game rules.
//
// A Match is a flat value type (arrays, no pointers or slices), so copying
// it is a full snapshot and independent matches share nothing. That makes it
// suitable both for interactive play and for agents simulating many games in
// parallel. Randomness comes from a seedable xorshift generator stored in
// the match itself, so a seed fully determines a game given its actions.
package engine

import "fmt"

const (
	MaxPlayers = 4
	DeckSize   = 54
)

// Match holds the complete, self-contained state of a Palace round.
type Match struct {
	Players    [MaxPlayers]Hand
	Stock      [DeckSize]Card
	StockLen   uint8
	Pile       Pile
	Current    uint8
	Winner     int8 // -1 until the round is over
	TurnNumber uint16
	Flags      uint16
	Burned     uint8 // cards removed from play by burns so far
	LastAction LastActionInfo
	RNG        uint64
	Rules      HouseRules
}

// ---------------------------------------------------------------------------
// Flags bitfield
// ---------------------------------------------------------------------------

const (
	FlagGameOver uint16 = 1 << 0
	FlagRankCap  uint16 = 1 << 1
	FlagDealt    uint16 = 1 << 2
)

func (m *Match) IsGameOver() bool    { return m.Flags&FlagGameOver != 0 }
func (m *Match) RankCapActive() bool { return m.Flags&FlagRankCap != 0 }
func (m *Match) IsDealt() bool       { return m.Flags&FlagDealt != 0 }

// ---------------------------------------------------------------------------
// xorshift64 RNG (inline, no interface)
// ---------------------------------------------------------------------------

func (m *Match) nextRand() uint64 {
	x := m.RNG
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	m.RNG = x
	return x
}

// randN returns a random number in [0, n).
func (m *Match) randN(n uint64) uint64 {
	return m.nextRand() % n
}

// ---------------------------------------------------------------------------
// NewMatch and Deal
// ---------------------------------------------------------------------------

// StandardDeck returns the 52 standard cards followed by up to two jokers.
func StandardDeck(jokers uint8) []Card {
	deck := make([]Card, 0, DeckSize)
	for suit := SuitHearts; suit <= SuitSpades; suit++ {
		for rank := RankTwo; rank <= RankAce; rank++ {
			deck = append(deck, NewCard(suit, rank))
		}
	}
	jokerSuits := [2]uint8{SuitRedJoker, SuitBlackJoker}
	for j := uint8(0); j < jokers && j < 2; j++ {
		deck = append(deck, NewCard(jokerSuits[j], RankJoker))
	}
	return deck
}

// NewMatch initializes a match with the given seed and rules over the
// standard deck. The deck is loaded into the stock but not yet shuffled or
// dealt.
func NewMatch(seed uint64, rules HouseRules) Match {
	m, _ := NewMatchWithDeck(seed, rules, StandardDeck(rules.NumJokers))
	return m
}

// NewMatchWithDeck is like NewMatch but uses the supplied deck, in order,
// as the undealt stock.
func NewMatchWithDeck(seed uint64, rules HouseRules, deck []Card) (Match, error) {
	var m Match
	if len(deck) > DeckSize {
		return m, fmt.Errorf("%w: %d cards, max %d", ErrDeckTooLarge, len(deck), DeckSize)
	}
	m.RNG = seed
	if m.RNG == 0 {
		m.RNG = 1 // xorshift can't start at 0
	}
	m.Rules = rules
	m.Winner = -1
	copy(m.Stock[:], deck)
	m.StockLen = uint8(len(deck))
	return m, nil
}

// Deal shuffles the stock and gives every player their face-down, face-up
// and in-hand cards, in that order, from the top of the stock. The rest of
// the stock stays as the draw pile.
func (m *Match) Deal() error {
	if m.IsDealt() {
		return fmt.Errorf("%w: already dealt", ErrInvalidRules)
	}
	n := m.Rules.numPlayers()
	if n < 2 || n > MaxPlayers {
		return fmt.Errorf("%w: %d players (want 2-%d)", ErrInvalidRules, n, MaxPlayers)
	}
	need := int(n) * m.Rules.cardsPerPlayer()
	if need > int(m.StockLen) {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientCards, need, m.StockLen)
	}

	// Fisher-Yates shuffle.
	for i := int(m.StockLen) - 1; i > 0; i-- {
		j := int(m.randN(uint64(i + 1)))
		m.Stock[i], m.Stock[j] = m.Stock[j], m.Stock[i]
	}

	counts := [NumTiers]uint8{
		TierFaceDown: m.Rules.FaceDown,
		TierFaceUp:   m.Rules.FaceUp,
		TierInHand:   m.Rules.InHand,
	}
	order := [NumTiers]Tier{TierFaceDown, TierFaceUp, TierInHand}
	for p := uint8(0); p < n; p++ {
		for _, t := range order {
			for c := uint8(0); c < counts[t]; c++ {
				m.Players[p].Add(t, m.draw())
			}
		}
	}

	if m.Rules.RandomStart {
		m.Current = uint8(m.randN(uint64(n)))
	}
	m.Flags |= FlagDealt
	m.LastAction = LastActionInfo{Card: EmptyCard, FromTier: TierNone}
	m.prepareTurn()
	return nil
}

// draw pops the top card of the stock. The stock must be non-empty.
func (m *Match) draw() Card {
	m.StockLen--
	return m.Stock[m.StockLen]
}

// ---------------------------------------------------------------------------
// Query methods
// ---------------------------------------------------------------------------

// IsTerminal returns true when the round is over.
func (m *Match) IsTerminal() bool { return m.Flags&FlagGameOver != 0 }

// ActingPlayer returns the index of the player who must act next.
func (m *Match) ActingPlayer() uint8 { return m.Current }

// NumActivePlayers returns the number of active players in this match.
func (m *Match) NumActivePlayers() uint8 { return m.Rules.numPlayers() }

// NextPlayer returns the next player after current in turn order.
func (m *Match) NextPlayer(current uint8) uint8 {
	return (current + 1) % m.Rules.numPlayers()
}

// PlayableTier returns the current player's playable tier and its cards.
func (m *Match) PlayableTier() (Tier, []Card) {
	return m.Players[m.Current].PlayableTier()
}

// PileTop returns the top card of the pile, or EmptyCard if empty.
func (m *Match) PileTop() Card {
	c, _ := m.Pile.Top()
	return c
}

// ---------------------------------------------------------------------------
// Snapshot Undo (Save / Restore)
// ---------------------------------------------------------------------------

// Snapshot is a complete value-copy of Match. Holding one never observes
// later mutations of the match it came from.
type Snapshot Match

// Save returns a snapshot of the current match.
func (m *Match) Save() Snapshot { return Snapshot(*m) }

// Restore replaces the match with the given snapshot.
func (m *Match) Restore(s Snapshot) { *m = Match(s) }

// Match returns a mutable copy of the snapshot.
func (s Snapshot) Match() Match { return Match(s) }
