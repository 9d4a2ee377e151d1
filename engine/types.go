package engine

import "strings"

// Suit constants, packed into upper 4 bits of Card.
const (
	SuitHearts     uint8 = 0
	SuitDiamonds   uint8 = 1
	SuitClubs      uint8 = 2
	SuitSpades     uint8 = 3
	SuitRedJoker   uint8 = 4
	SuitBlackJoker uint8 = 5
)

// Rank is a card rank. Its numeric value is its position in the rank
// ordering table, so comparisons between ranks are plain integer compares.
type Rank uint8

// Rank constants, packed into lower 4 bits of Card.
const (
	RankNone  Rank = 0 // no card (empty pile)
	RankTwo   Rank = 2
	RankThree Rank = 3
	RankFour  Rank = 4
	RankFive  Rank = 5
	RankSix   Rank = 6
	RankSeven Rank = 7
	RankEight Rank = 8
	RankNine  Rank = 9
	RankTen   Rank = 10
	RankJack  Rank = 11
	RankQueen Rank = 12
	RankKing  Rank = 13
	RankAce   Rank = 14
	RankJoker Rank = 15

	// NumRankSlots is the size of tables indexed by Rank.
	NumRankSlots = 16
)

// Value returns the ordering value of the rank (2–15, 0 for RankNone).
func (r Rank) Value() int { return int(r) }

// Valid reports whether r is a dealable rank.
func (r Rank) Valid() bool { return r >= RankTwo && r <= RankJoker }

var rankNames = [NumRankSlots]string{
	RankNone:  "-",
	RankTwo:   "2",
	RankThree: "3",
	RankFour:  "4",
	RankFive:  "5",
	RankSix:   "6",
	RankSeven: "7",
	RankEight: "8",
	RankNine:  "9",
	RankTen:   "10",
	RankJack:  "Jack",
	RankQueen: "Queen",
	RankKing:  "King",
	RankAce:   "Ace",
	RankJoker: "Joker",
}

func (r Rank) String() string {
	if int(r) >= len(rankNames) || rankNames[r] == "" {
		return "?"
	}
	return rankNames[r]
}

// ParseRank maps a rank name ("2".."10", "Jack", "J", "Ace", "Joker", ...)
// to a Rank. Matching is case-insensitive.
func ParseRank(s string) (Rank, bool) {
	switch lower(s) {
	case "2":
		return RankTwo, true
	case "3":
		return RankThree, true
	case "4":
		return RankFour, true
	case "5":
		return RankFive, true
	case "6":
		return RankSix, true
	case "7":
		return RankSeven, true
	case "8":
		return RankEight, true
	case "9":
		return RankNine, true
	case "10", "t":
		return RankTen, true
	case "jack", "j":
		return RankJack, true
	case "queen", "q":
		return RankQueen, true
	case "king", "k":
		return RankKing, true
	case "ace", "a":
		return RankAce, true
	case "joker", "o":
		return RankJoker, true
	}
	return RankNone, false
}

// ParseSuit maps a suit name ("Hearts", "H", ...) to a suit constant.
func ParseSuit(s string) (uint8, bool) {
	switch lower(s) {
	case "hearts", "heart", "h":
		return SuitHearts, true
	case "diamonds", "diamond", "d":
		return SuitDiamonds, true
	case "clubs", "club", "c":
		return SuitClubs, true
	case "spades", "spade", "s":
		return SuitSpades, true
	case "red", "redjoker", "r":
		return SuitRedJoker, true
	case "black", "blackjoker", "b":
		return SuitBlackJoker, true
	}
	return 0, false
}

// SuitName returns a human-readable suit name.
func SuitName(s uint8) string {
	switch s {
	case SuitHearts:
		return "Hearts"
	case SuitDiamonds:
		return "Diamonds"
	case SuitClubs:
		return "Clubs"
	case SuitSpades:
		return "Spades"
	case SuitRedJoker:
		return "Red"
	case SuitBlackJoker:
		return "Black"
	}
	return "?"
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Card is a packed uint8: upper 4 bits = suit, lower 4 bits = rank.
// A card carries no tier information; the tier is implied by where it is held.
type Card uint8

// EmptyCard represents the absence of a card.
const EmptyCard Card = 0xFF

// NewCard constructs a Card from suit and rank.
func NewCard(suit uint8, rank Rank) Card {
	return Card((suit << 4) | (uint8(rank) & 0x0F))
}

// Suit returns the suit bits (upper 4).
func (c Card) Suit() uint8 { return uint8(c) >> 4 }

// Rank returns the rank bits (lower 4).
func (c Card) Rank() Rank {
	if c == EmptyCard {
		return RankNone
	}
	return Rank(uint8(c) & 0x0F)
}

func (c Card) String() string {
	if c == EmptyCard {
		return "--"
	}
	if c.Rank() == RankJoker {
		return SuitName(c.Suit()) + " Joker"
	}
	return c.Rank().String() + " of " + SuitName(c.Suit())
}

// Tier identifies one of a player's three card collections.
type Tier uint8

const (
	TierInHand   Tier = iota // 0
	TierFaceUp               // 1
	TierFaceDown             // 2
	NumTiers                 // 3

	// TierNone is returned when a player holds no cards at all.
	TierNone Tier = 0xFF
)

func (t Tier) String() string {
	switch t {
	case TierInHand:
		return "in hand"
	case TierFaceUp:
		return "face up"
	case TierFaceDown:
		return "face down"
	}
	return "none"
}

// Effect is the special effect a rank has when it lands on the pile.
type Effect uint8

const (
	EffectNone    Effect = iota // 0
	EffectBurn                  // pile cleared, same player plays again
	EffectReset                 // rank-cap cleared, same player plays again
	EffectRankCap               // next play capped at the cap rank
	EffectWild                  // always playable
)

// ExtraPlay reports whether the effect lets the same player play again.
func (e Effect) ExtraPlay() bool { return e == EffectBurn || e == EffectReset }

// Special reports whether the effect exempts a rank from pile comparison.
func (e Effect) Special() bool { return e != EffectNone }

func (e Effect) String() string {
	switch e {
	case EffectBurn:
		return "burn"
	case EffectReset:
		return "reset"
	case EffectRankCap:
		return "rank-cap"
	case EffectWild:
		return "wild"
	}
	return "none"
}

// EffectTable maps each rank to its special effect.
type EffectTable [NumRankSlots]Effect

// DefaultEffects returns the canonical table: 10 burns, 2 resets, 7 caps,
// Joker is wild.
func DefaultEffects() EffectTable {
	var t EffectTable
	t[RankTen] = EffectBurn
	t[RankTwo] = EffectReset
	t[RankSeven] = EffectRankCap
	t[RankJoker] = EffectWild
	return t
}

// ---------------------------------------------------------------------------
// Action index constants
// ---------------------------------------------------------------------------

const (
	// MaxPlayable bounds the playable-tier length, and so the play indices.
	MaxPlayable uint16 = DeckSize

	// ActionPickUp requests a voluntary pickup of the pile.
	ActionPickUp uint16 = MaxPlayable

	NumActions uint16 = MaxPlayable + 1
)

// ---------------------------------------------------------------------------
// LastActionInfo
// ---------------------------------------------------------------------------

// LastActionInfo summarizes the most recent transition.
type LastActionInfo struct {
	ActionIdx    uint16
	ActingPlayer uint8
	Card         Card   // card played or rejected; EmptyCard for a voluntary pickup
	FromTier     Tier   // tier the card came from
	Blind        bool   // card was drawn blind from the face-down tier
	Legal        bool   // card was accepted onto the pile
	Effect       Effect // effect applied when Legal
	PickedUp     uint8  // cards taken into hand by a pickup (rejected card included)
	Burned       uint8  // cards removed from play by a burn
	Drawn        uint8  // cards drawn from the stock afterwards
	Promoted     uint8  // face-up cards promoted for the next player
}
