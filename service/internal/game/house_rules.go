// internal/game/house_rules.go
package game

import (
	"fmt"

	"github.com/google/uuid"
	engine "github.com/palacecards/palace/engine"
	"github.com/palacecards/palace/simulation"
)

// HouseRules captures the table configuration chosen when a game is created,
// including disconnection policy and turn timeouts.
type HouseRules struct {
	// ForfeitOnDisconnect drops a disconnected player from scoring and ends
	// the game once fewer than two players remain connected.
	ForfeitOnDisconnect bool `json:"forfeitOnDisconnect"`

	// TurnTimerSec is how long a player may think before the server plays
	// for them (0 => no limit).
	TurnTimerSec int `json:"turnTimerSec"`

	// NumJokers adds 0, 1 or 2 jokers to the standard deck.
	NumJokers int `json:"numJokers"`

	// RankCap is the highest rank playable on a capping card ("7" by default).
	RankCap string `json:"rankCap,omitempty"`

	// FixedStart makes the first player to join lead instead of a random seat.
	FixedStart bool `json:"fixedStart"`
}

// DefaultHouseRules returns the rules a game uses when none are given.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		ForfeitOnDisconnect: true,
		TurnTimerSec:        30,
		RankCap:             "7",
	}
}

// Validate reports the first setting the engine cannot host.
func (h HouseRules) Validate() error {
	if h.TurnTimerSec < 0 {
		return fmt.Errorf("turnTimerSec must be >= 0, got %d", h.TurnTimerSec)
	}
	if h.NumJokers < 0 || h.NumJokers > 2 {
		return fmt.Errorf("numJokers must be 0-2, got %d", h.NumJokers)
	}
	if h.RankCap != "" {
		r, ok := engine.ParseRank(h.RankCap)
		if !ok || r == engine.RankJoker {
			return fmt.Errorf("unknown rankCap %q", h.RankCap)
		}
	}
	return nil
}

// GameAction is a client request sent over the websocket.
type GameAction struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`
}

// Client action types.
const (
	ActionPlay   = "play"
	ActionPickup = "pickup"
	ActionSync   = "sync"
)

// Player is a seat at the table: a connected human or a bot.
type Player struct {
	ID        uuid.UUID
	Name      string
	Connected bool
	IsBot     bool
	Bot       simulation.Policy // nil for humans
}
