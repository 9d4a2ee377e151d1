// engine_adapter.go: bridge between engine.Match and PalaceGame.
package game

import (
	"time"

	"github.com/google/uuid"
	engine "github.com/palacecards/palace/engine"
	"github.com/palacecards/palace/simulation"
	log "github.com/sirupsen/logrus"
)

// engineRankToString converts an engine rank to the service rank string.
func engineRankToString(rank engine.Rank) string {
	switch rank {
	case engine.RankAce:
		return "A"
	case engine.RankTwo:
		return "2"
	case engine.RankThree:
		return "3"
	case engine.RankFour:
		return "4"
	case engine.RankFive:
		return "5"
	case engine.RankSix:
		return "6"
	case engine.RankSeven:
		return "7"
	case engine.RankEight:
		return "8"
	case engine.RankNine:
		return "9"
	case engine.RankTen:
		return "T"
	case engine.RankJack:
		return "J"
	case engine.RankQueen:
		return "Q"
	case engine.RankKing:
		return "K"
	case engine.RankJoker:
		return "O"
	default:
		return "?"
	}
}

// engineSuitToString converts an engine suit to the service suit string.
func engineSuitToString(suit uint8) string {
	switch suit {
	case engine.SuitHearts:
		return "H"
	case engine.SuitDiamonds:
		return "D"
	case engine.SuitClubs:
		return "C"
	case engine.SuitSpades:
		return "S"
	case engine.SuitRedJoker:
		return "R"
	case engine.SuitBlackJoker:
		return "B"
	default:
		return "?"
	}
}

// engineCardToEvent converts a card to its event form. tier may be TierNone.
func engineCardToEvent(c engine.Card, tier engine.Tier) *EventCard {
	ev := &EventCard{
		Rank:  engineRankToString(c.Rank()),
		Suit:  engineSuitToString(c.Suit()),
		Value: c.Rank().Value(),
	}
	if tier != engine.TierNone {
		ev.Tier = tier.String()
	}
	return ev
}

// mapHouseRulesToEngine maps service HouseRules onto the engine defaults.
func (g *PalaceGame) mapHouseRulesToEngine() engine.HouseRules {
	r := engine.DefaultHouseRules()
	r.NumPlayers = uint8(len(g.Players))
	if g.HouseRules.NumJokers > 0 && g.HouseRules.NumJokers <= 2 {
		r.NumJokers = uint8(g.HouseRules.NumJokers)
	}
	if rank, ok := engine.ParseRank(g.HouseRules.RankCap); ok && rank != engine.RankJoker {
		r.RankCap = rank
	}
	r.RandomStart = !g.HouseRules.FixedStart
	return r
}

// currentPlayerID returns the service id of the engine's acting seat.
func (g *PalaceGame) currentPlayerID() uuid.UUID {
	if !g.Started || g.GameOver {
		return uuid.Nil
	}
	return g.EngineToPlayer[g.Engine.ActingPlayer()]
}

// applyEngineAction applies actionIdx for actorID and emits the resulting
// events. Engine errors leave the match untouched and are reported privately.
// Assumes lock is held by caller.
func (g *PalaceGame) applyEngineAction(actionIdx uint16, actorID uuid.UUID) error {
	if err := g.Engine.ApplyAction(actionIdx); err != nil {
		log.WithFields(log.Fields{
			"game_id": g.ID,
			"player":  actorID,
			"action":  actionIdx,
		}).WithError(err).Debug("Engine rejected action.")
		g.fireActionFail(actorID, err.Error())
		return err
	}
	g.TurnID++

	la := g.Engine.LastAction
	payload := map[string]any{"index": int(actionIdx)}
	actionType := "action_play"
	if actionIdx == engine.ActionPickUp {
		actionType = "action_pickup"
	} else {
		payload["card"] = la.Card.String()
		payload["legal"] = la.Legal
	}
	g.logAction(actorID, actionType, payload)

	g.emitEventsForAction(actorID, la)
	g.persistSnapshot()

	if g.Engine.IsTerminal() {
		g.EndGame("win")
		return nil
	}
	g.broadcastSyncStateToAll()
	g.onTurnAdvanced()
	return nil
}

// emitEventsForAction broadcasts the public consequences of the last action.
// Assumes lock is held by caller.
func (g *PalaceGame) emitEventsForAction(actorID uuid.UUID, la engine.LastActionInfo) {
	user := &EventUser{ID: actorID}
	if la.Card != engine.EmptyCard {
		card := engineCardToEvent(la.Card, la.FromTier)
		if !la.Blind {
			idx := int(la.ActionIdx)
			card.Idx = &idx
		}
		g.fireEvent(GameEvent{
			Type: EventPlayerPlay,
			User: user,
			Card: card,
			Payload: map[string]any{
				"legal":  la.Legal,
				"blind":  la.Blind,
				"effect": la.Effect.String(),
			},
		})
	}
	if la.PickedUp > 0 {
		g.fireEvent(GameEvent{
			Type: EventPlayerPickup,
			User: user,
			Payload: map[string]any{
				"count":  int(la.PickedUp),
				"forced": la.Card != engine.EmptyCard,
			},
		})
	}
	if la.Burned > 0 {
		g.fireEvent(GameEvent{
			Type:    EventPileBurn,
			User:    user,
			Payload: map[string]any{"count": int(la.Burned)},
		})
	}
	if la.Drawn > 0 {
		g.fireEvent(GameEvent{
			Type:    EventPlayerDraw,
			User:    user,
			Payload: map[string]any{"count": int(la.Drawn), "stockSize": int(g.Engine.StockLen)},
		})
	}
}

// onTurnAdvanced announces the acting seat, arms its timer and lets bots
// move.
// Assumes lock is held by caller.
func (g *PalaceGame) onTurnAdvanced() {
	if g.GameOver || !g.Started {
		return
	}
	if g.Engine.IsTerminal() {
		g.EndGame("win")
		return
	}
	g.broadcastPlayerTurn()
	g.scheduleNextTurnTimer()
	g.playBots()
}

// broadcastPlayerTurn notifies all players of the current player's turn.
// Assumes lock is held by caller.
func (g *PalaceGame) broadcastPlayerTurn() {
	tier, cards := g.Engine.PlayableTier()
	g.fireEvent(GameEvent{
		Type: EventGamePlayerTurn,
		User: &EventUser{ID: g.currentPlayerID()},
		Payload: map[string]any{
			"turn":     g.TurnID,
			"tier":     tier.String(),
			"playable": len(cards),
			"rankCap":  g.Engine.RankCapActive(),
		},
	})
}

// playBots moves for every consecutive bot seat. Bot moves re-enter
// onTurnAdvanced; botsRunning keeps that from recursing.
// Assumes lock is held by caller.
func (g *PalaceGame) playBots() {
	if g.botsRunning {
		return
	}
	g.botsRunning = true
	defer func() { g.botsRunning = false }()

	for steps := 0; !g.GameOver && g.Started; steps++ {
		p := g.getPlayerByID(g.currentPlayerID())
		if p == nil || !p.IsBot {
			return
		}
		if steps >= maxBotSteps {
			log.Warnf("Game %s: Bots made %d moves without a human turn. Abandoning.", g.ID, steps)
			g.EndGame("abandoned")
			return
		}
		policy := p.Bot
		if policy == nil {
			policy = simulation.GreedyPolicy{}
		}
		if err := g.applyEngineAction(policy.Choose(&g.Engine, g.rng), p.ID); err != nil {
			// A policy only picks in-range actions, so fall back to a pickup
			// or the first card rather than stalling the table.
			log.WithError(err).Warnf("Game %s: Bot %s chose an invalid action.", g.ID, p.ID)
			if g.applyEngineAction(g.fallbackAction(), p.ID) != nil {
				g.EndGame("abandoned")
				return
			}
		}
	}
}

// fallbackAction picks the lowest accepted card, else a pickup, else index 0.
func (g *PalaceGame) fallbackAction() uint16 {
	return simulation.GreedyPolicy{}.Choose(&g.Engine, g.rng)
}

// scheduleNextTurnTimer arms the timer for the acting human seat. A
// disconnected player is played for after disconnectedMoveDelay even when
// turn timers are off.
// Assumes lock is held by caller.
func (g *PalaceGame) scheduleNextTurnTimer() {
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}
	if g.GameOver || !g.Started || g.Engine.IsTerminal() {
		return
	}

	currentPlayerUUID := g.currentPlayerID()
	currentPlayer := g.getPlayerByID(currentPlayerUUID)
	if currentPlayer == nil {
		log.Printf("Game %s: Cannot schedule timer, acting player %s not found.", g.ID, currentPlayerUUID)
		return
	}
	if currentPlayer.IsBot {
		return
	}

	d := g.TurnDuration
	if !currentPlayer.Connected {
		d = disconnectedMoveDelay
	}
	if d <= 0 {
		return
	}

	curTurnID := g.TurnID
	g.turnTimer = time.AfterFunc(d, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()

		if !g.GameOver && g.Started && g.TurnID == curTurnID {
			log.Printf("Game %s, Turn %d: Timer fired for player %s.", g.ID, g.TurnID, currentPlayerUUID)
			g.handleTimeout(currentPlayerUUID)
		}
	})
}

// handleTimeout plays for a player who ran out of time: the lowest accepted
// card, else a pickup, else a blind play.
// Assumes lock is held by caller.
func (g *PalaceGame) handleTimeout(playerID uuid.UUID) {
	if g.currentPlayerID() != playerID {
		return
	}
	action := g.fallbackAction()
	g.fireEvent(GameEvent{
		Type:    EventPlayerTimeout,
		User:    &EventUser{ID: playerID},
		Payload: map[string]any{"action": int(action)},
	})
	g.logAction(playerID, "player_timeout", map[string]any{"action": int(action)})
	if err := g.applyEngineAction(action, playerID); err != nil {
		log.WithError(err).Errorf("Game %s: Timeout action failed for %s.", g.ID, playerID)
	}
}
