// internal/game/sync_state.go
package game

import (
	"math/bits"

	"github.com/google/uuid"
	engine "github.com/palacecards/palace/engine"
)

// ObfCard represents a card's state for client synchronization, potentially hiding details.
type ObfCard struct {
	Known bool   `json:"known"` // True if Rank/Suit/Value are revealed to the requesting client.
	Rank  string `json:"rank,omitempty"`
	Suit  string `json:"suit,omitempty"`
	Value int    `json:"value,omitempty"`
	Idx   int    `json:"idx"` // Position in its tier; play indices refer to it.
}

// ObfPlayerState represents the state of a single player, obfuscated for a specific observer.
type ObfPlayerState struct {
	PlayerID      uuid.UUID `json:"playerId"`
	Username      string    `json:"username"`
	Connected     bool      `json:"connected"`
	IsBot         bool      `json:"isBot"`
	IsCurrentTurn bool      `json:"isCurrentTurn"`
	CardsLeft     int       `json:"cardsLeft"`
	InHandCount   int       `json:"inHandCount"`
	FaceDownCount int       `json:"faceDownCount"`
	// FaceUp is public to everyone.
	FaceUp []ObfCard `json:"faceUp"`
	// InHand is revealed only to its owner, or to everyone once the game is over.
	InHand []ObfCard `json:"inHand,omitempty"`
	// FaceDown is revealed to everyone once the game is over.
	FaceDown []ObfCard `json:"faceDown,omitempty"`
}

// ObfGameState represents the overall game state, obfuscated for a specific observer.
type ObfGameState struct {
	GameID          uuid.UUID        `json:"gameId"`
	Started         bool             `json:"started"`
	GameOver        bool             `json:"gameOver"`
	Seats           int              `json:"seats"`
	HasPassword     bool             `json:"hasPassword"`
	CurrentPlayerID uuid.UUID        `json:"currentPlayerId"`
	WinnerID        uuid.UUID        `json:"winnerId"`
	TurnID          int              `json:"turnId"`
	StockSize       int              `json:"stockSize"`
	PileSize        int              `json:"pileSize"`
	PileTop         *ObfCard         `json:"pileTop,omitempty"`
	RankCap         bool             `json:"rankCap"`
	CapRank         string           `json:"capRank"`
	Burned          int              `json:"burned"`
	Players         []ObfPlayerState `json:"players"`
	HouseRules      HouseRules       `json:"houseRules"`

	// Populated only for the acting player.
	PlayableTier string `json:"playableTier,omitempty"`
	Accepted     []int  `json:"accepted,omitempty"` // indices the pile accepts; every index when blind
	CanPickUp    bool   `json:"canPickUp,omitempty"`
}

func obfCard(c engine.Card, idx int, known bool) ObfCard {
	if !known {
		return ObfCard{Idx: idx}
	}
	return ObfCard{
		Known: true,
		Rank:  engineRankToString(c.Rank()),
		Suit:  engineSuitToString(c.Suit()),
		Value: c.Rank().Value(),
		Idx:   idx,
	}
}

func obfTier(cards []engine.Card, known bool) []ObfCard {
	out := make([]ObfCard, len(cards))
	for i, c := range cards {
		out[i] = obfCard(c, i, known)
	}
	return out
}

// GetCurrentObfuscatedGameState generates a snapshot of the game state,
// tailored to the perspective of the requesting user (`forUser`). Pass
// uuid.Nil for a spectator view. Face-down cards stay hidden from everyone,
// their owner included, until the game is over.
// Assumes lock is held by caller.
func (g *PalaceGame) GetCurrentObfuscatedGameState(forUser uuid.UUID) ObfGameState {
	obf := ObfGameState{
		GameID:      g.ID,
		Started:     g.Started,
		GameOver:    g.GameOver,
		Seats:       g.Seats,
		HasPassword: g.PasswordHash != "",
		WinnerID:    g.WinnerID,
		TurnID:      g.TurnID,
		HouseRules:  g.HouseRules,
	}

	obf.Players = make([]ObfPlayerState, len(g.Players))
	for i, pl := range g.Players {
		obf.Players[i] = ObfPlayerState{
			PlayerID:  pl.ID,
			Username:  pl.Name,
			Connected: pl.Connected,
			IsBot:     pl.IsBot,
		}
	}
	if !g.Started {
		return obf
	}

	m := &g.Engine
	obf.CurrentPlayerID = g.currentPlayerID()
	obf.StockSize = int(m.StockLen)
	obf.PileSize = int(m.Pile.Len)
	obf.RankCap = m.RankCapActive()
	obf.CapRank = engineRankToString(m.Rules.RankCap)
	obf.Burned = int(m.Burned)
	if top, ok := m.Pile.Top(); ok {
		c := obfCard(top, int(m.Pile.Len)-1, true)
		obf.PileTop = &c
	}

	reveal := g.GameOver
	for i, pl := range g.Players {
		engineIdx, ok := g.PlayerToEngine[pl.ID]
		if !ok {
			continue
		}
		hand := &m.Players[engineIdx]
		ps := &obf.Players[i]
		ps.IsCurrentTurn = obf.CurrentPlayerID == pl.ID
		ps.CardsLeft = hand.Count()
		ps.InHandCount = int(hand.Len(engine.TierInHand))
		ps.FaceDownCount = int(hand.Len(engine.TierFaceDown))
		ps.FaceUp = obfTier(hand.Tier(engine.TierFaceUp), true)
		if pl.ID == forUser || reveal {
			ps.InHand = obfTier(hand.Tier(engine.TierInHand), true)
		}
		if reveal {
			ps.FaceDown = obfTier(hand.Tier(engine.TierFaceDown), true)
		}
	}

	if forUser != uuid.Nil && forUser == obf.CurrentPlayerID {
		tier, _ := m.PlayableTier()
		obf.PlayableTier = tier.String()
		mask := m.PlayableMask()
		obf.Accepted = make([]int, 0, bits.OnesCount64(mask))
		for ; mask != 0; mask &= mask - 1 {
			obf.Accepted = append(obf.Accepted, bits.TrailingZeros64(mask))
		}
		obf.CanPickUp = m.Pile.Len > 0
	}
	return obf
}
