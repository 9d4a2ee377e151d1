// Package deckfile reads and writes decks as JSON lists of cards:
//
//	[{"suit": "Hearts", "rank": "10"}, {"suit": "Red", "rank": "Joker"}]
//
// Suits and ranks are matched case-insensitively and accept short forms
// ("H", "J", "10"). Extra fields on a card object are ignored.
package deckfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	engine "github.com/palacecards/palace/engine"
)

var (
	// ErrUnknownSuit is returned for a card whose suit does not parse.
	ErrUnknownSuit = errors.New("unknown suit")

	// ErrUnknownRank is returned for a card whose rank does not parse.
	ErrUnknownRank = errors.New("unknown rank")

	// ErrDuplicateCard is returned when the same card appears twice.
	ErrDuplicateCard = errors.New("duplicate card")
)

// Record is one card as stored in a deck file.
type Record struct {
	Suit string `json:"suit"`
	Rank string `json:"rank"`
}

// Load decodes a deck from r, in file order.
func Load(r io.Reader) ([]engine.Card, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode deck: %w", err)
	}
	if len(records) > engine.DeckSize {
		return nil, fmt.Errorf("%w: %d cards, max %d", engine.ErrDeckTooLarge, len(records), engine.DeckSize)
	}

	cards := make([]engine.Card, 0, len(records))
	seen := make(map[engine.Card]bool, len(records))
	for i, rec := range records {
		c, err := rec.Card()
		if err != nil {
			return nil, fmt.Errorf("card %d: %w", i, err)
		}
		if seen[c] {
			return nil, fmt.Errorf("card %d: %w: %v", i, ErrDuplicateCard, c)
		}
		seen[c] = true
		cards = append(cards, c)
	}
	return cards, nil
}

// LoadFile reads a deck from the JSON file at path.
func LoadFile(path string) ([]engine.Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open deck file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Card converts the record to an engine card.
func (r Record) Card() (engine.Card, error) {
	suit, ok := engine.ParseSuit(r.Suit)
	if !ok {
		return engine.EmptyCard, fmt.Errorf("%w: %q", ErrUnknownSuit, r.Suit)
	}
	rank, ok := engine.ParseRank(r.Rank)
	if !ok {
		return engine.EmptyCard, fmt.Errorf("%w: %q", ErrUnknownRank, r.Rank)
	}
	jokerSuit := suit == engine.SuitRedJoker || suit == engine.SuitBlackJoker
	if jokerSuit != (rank == engine.RankJoker) {
		return engine.EmptyCard, fmt.Errorf("%w: %q %q", ErrUnknownRank, r.Suit, r.Rank)
	}
	return engine.NewCard(suit, rank), nil
}

// RecordOf converts an engine card to its file form.
func RecordOf(c engine.Card) Record {
	return Record{Suit: engine.SuitName(c.Suit()), Rank: c.Rank().String()}
}

// Write encodes cards to w as an indented JSON list.
func Write(w io.Writer, cards []engine.Card) error {
	records := make([]Record, len(cards))
	for i, c := range cards {
		records[i] = RecordOf(c)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
