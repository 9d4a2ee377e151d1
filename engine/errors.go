package engine

import "errors"

var (
	// ErrInsufficientCards is returned by Deal when the deck cannot cover
	// every player's three tiers.
	ErrInsufficientCards = errors.New("not enough cards to deal")

	// ErrDeckTooLarge is returned when a supplied deck exceeds DeckSize.
	ErrDeckTooLarge = errors.New("deck exceeds maximum size")

	// ErrInvalidRules is returned by Deal for rules the engine cannot host.
	ErrInvalidRules = errors.New("invalid house rules")

	// ErrInvalidAction is returned when an action index is outside the
	// current player's playable tier.
	ErrInvalidAction = errors.New("invalid action")

	// ErrEmptyPileAbsorb is returned when a pickup is requested on an empty pile.
	ErrEmptyPileAbsorb = errors.New("cannot pick up an empty pile")

	// ErrGameOver is returned for any action after the round has a winner.
	ErrGameOver = errors.New("game is already over")

	// ErrNotDealt is returned for actions on a match that has not been dealt.
	ErrNotDealt = errors.New("match has not been dealt")

	// ErrCardNotFound signals a card missing from the tier it should be in.
	ErrCardNotFound = errors.New("card not found")
)
