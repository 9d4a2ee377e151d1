// internal/game/game.go
package game

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	engine "github.com/palacecards/palace/engine"
	"github.com/palacecards/palace/service/internal/cache"
	"github.com/palacecards/palace/service/internal/database"
	"github.com/palacecards/palace/simulation"
	log "github.com/sirupsen/logrus"
)

var (
	ErrGameStarted      = errors.New("game already started")
	ErrGameFull         = errors.New("game is full")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
)

// OnGameEndFunc defines the signature for a callback function executed when a game ends.
// It receives the game ID, the winner's ID (can be Nil), and each player's cards left.
type OnGameEndFunc func(gameID uuid.UUID, winner uuid.UUID, scores map[uuid.UUID]int)

// GameEventType represents the type of a game-related event broadcast via WebSockets.
type GameEventType string

// Constants defining the various GameEvent types used for WebSocket communication.
const (
	EventGameStart         GameEventType = "game_start"          // Public: Cards are dealt; includes seat order.
	EventGamePlayerTurn    GameEventType = "game_player_turn"    // Public: Notification of the current player's turn.
	EventPlayerPlay        GameEventType = "player_play"         // Public: A card left a player's tier (accepted or not).
	EventPlayerPickup      GameEventType = "player_pickup"       // Public: A player took the pile, forced or voluntary.
	EventPileBurn          GameEventType = "pile_burn"           // Public: The pile was removed from play.
	EventPlayerDraw        GameEventType = "player_draw"         // Public: A player replenished from the stock (count only).
	EventPlayerTimeout     GameEventType = "player_timeout"      // Public: The server acted for a player.
	EventPlayerDisconnect  GameEventType = "player_disconnect"   // Public
	EventPlayerReconnect   GameEventType = "player_reconnect"    // Public
	EventPrivateSyncState  GameEventType = "private_sync_state"  // Private: Full game state sync for a player.
	EventPrivateActionFail GameEventType = "private_action_fail" // Private: The player's request was rejected.
	EventGameEnd           GameEventType = "game_end"            // Public: Game has ended, includes results.
)

// EventUser identifies a user within a GameEvent payload.
type EventUser struct {
	ID uuid.UUID `json:"id"`
}

// EventCard identifies a card within a GameEvent payload.
type EventCard struct {
	Rank  string `json:"rank"`
	Suit  string `json:"suit"`
	Value int    `json:"value"`
	Tier  string `json:"tier,omitempty"`
	Idx   *int   `json:"idx,omitempty"` // Index in the tier, if relevant.
}

// GameEvent is the standard structure for broadcasting game state changes and actions.
type GameEvent struct {
	Type GameEventType `json:"type"`
	User *EventUser    `json:"user,omitempty"` // The user initiating or targeted by the event.
	Card *EventCard    `json:"card,omitempty"` // Card involved.

	Payload map[string]any `json:"payload,omitempty"` // Additional arbitrary data.

	State *ObfGameState `json:"state,omitempty"` // Full obfuscated state for sync events.
}

// maxBotSteps bounds the bot moves made back to back before the game is
// abandoned. It only matters for tables without a human seat.
const maxBotSteps = 2000

// disconnectedMoveDelay is how long the server waits before playing for a
// disconnected player whose seat was not forfeited.
const disconnectedMoveDelay = time.Second

// PalaceGame represents the state and logic for a single table.
type PalaceGame struct {
	ID        uuid.UUID // Unique identifier for this game instance.
	CreatedAt time.Time

	HouseRules HouseRules
	Seats      int           // Players needed before the game can start (2-4).
	Deck       []engine.Card // Optional custom deck; nil deals the standard deck.
	Seed       uint64        // Deal seed; 0 picks one at start.

	PasswordHash string // bcrypt hash; empty for open games.

	Players []*Player // Seats in join order; index i is engine seat i.

	// Engine integration: the match is the authoritative game state.
	Engine         engine.Match
	PlayerToEngine map[uuid.UUID]uint8          // Service player UUID -> engine index.
	EngineToPlayer [engine.MaxPlayers]uuid.UUID // Engine index -> service player UUID.

	// Turn Management
	TurnID       int           // Increments each applied action, used to discard stale timers.
	TurnDuration time.Duration // Configurable duration for each turn timer.
	turnTimer    *time.Timer
	actionIndex  int // Sequential index for the action log.

	Started  bool
	GameOver bool
	WinnerID uuid.UUID

	botsRunning bool
	rng         *rand.Rand

	lastSeen map[uuid.UUID]time.Time
	Mu       sync.Mutex // Mutex protecting concurrent access to game state.

	// Communication Callbacks
	BroadcastFn         func(ev GameEvent)                     // Sends an event to all connected players.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev GameEvent) // Sends an event to a single player.
	OnGameEnd           OnGameEndFunc
}

// NewPalaceGame creates a new game instance with default settings.
// Engine is initialized during Start.
func NewPalaceGame(seats int, rules HouseRules) *PalaceGame {
	id, _ := uuid.NewRandom()
	if seats < 2 || seats > engine.MaxPlayers {
		seats = 2
	}
	g := &PalaceGame{
		ID:             id,
		CreatedAt:      time.Now(),
		HouseRules:     rules,
		Seats:          seats,
		PlayerToEngine: make(map[uuid.UUID]uint8),
		lastSeen:       make(map[uuid.UUID]time.Time),
	}
	g.TurnDuration = time.Duration(rules.TurnTimerSec) * time.Second
	return g
}

// AddPlayer seats a new player before the game starts, or marks a known
// player as reconnected.
// Assumes lock is held by caller.
func (g *PalaceGame) AddPlayer(p *Player) error {
	if existing := g.getPlayerByID(p.ID); existing != nil {
		existing.Connected = p.Connected
		if p.Name != "" {
			existing.Name = p.Name
		}
		g.lastSeen[p.ID] = time.Now()
		log.Printf("Game %s: Player %s (%s) rejoined.", g.ID, p.ID, existing.Name)
		return nil
	}
	if g.Started || g.GameOver {
		log.Printf("Game %s: Player %s (%s) cannot be added because game has already started.", g.ID, p.ID, p.Name)
		return ErrGameStarted
	}
	if len(g.Players) >= g.Seats {
		return ErrGameFull
	}
	g.Players = append(g.Players, p)
	g.lastSeen[p.ID] = time.Now()
	log.Printf("Game %s: Player %s (%s) added (%d/%d).", g.ID, p.ID, p.Name, len(g.Players), g.Seats)
	g.logAction(p.ID, "player_add", map[string]any{"username": p.Name, "bot": p.IsBot})
	return nil
}

// AddBot seats a bot that plays with policy.
// Assumes lock is held by caller.
func (g *PalaceGame) AddBot(name string, policy simulation.Policy) (*Player, error) {
	id, _ := uuid.NewRandom()
	p := &Player{ID: id, Name: name, Connected: true, IsBot: true, Bot: policy}
	if err := g.AddPlayer(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadyToStart reports whether every seat is taken and every human is
// connected.
// Assumes lock is held by caller.
func (g *PalaceGame) ReadyToStart() bool {
	if g.Started || g.GameOver || len(g.Players) < g.Seats {
		return false
	}
	for _, p := range g.Players {
		if !p.Connected {
			return false
		}
	}
	return true
}

// Start deals the round and begins the first turn.
// Assumes lock is held by caller.
func (g *PalaceGame) Start() error {
	if g.Started || g.GameOver {
		return ErrGameStarted
	}
	if len(g.Players) < 2 {
		return ErrNotEnoughPlayers
	}

	// Build player <-> engine index mapping.
	for i, p := range g.Players {
		g.PlayerToEngine[p.ID] = uint8(i)
		g.EngineToPlayer[i] = p.ID
	}

	if g.Seed == 0 {
		g.Seed = uint64(time.Now().UnixNano())
	}
	rules := g.mapHouseRulesToEngine()
	var err error
	if g.Deck != nil {
		g.Engine, err = engine.NewMatchWithDeck(g.Seed, rules, g.Deck)
	} else {
		g.Engine = engine.NewMatch(g.Seed, rules)
	}
	if err == nil {
		err = g.Engine.Deal()
	}
	if err != nil {
		log.WithError(err).Errorf("Game %s: Cannot deal.", g.ID)
		return err
	}
	g.rng = rand.New(rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15))

	g.Started = true
	seats := append([]uuid.UUID(nil), g.EngineToPlayer[:len(g.Players)]...)
	log.WithFields(log.Fields{
		"game_id": g.ID,
		"players": len(g.Players),
		"seed":    g.Seed,
	}).Info("Game started.")
	g.logAction(uuid.Nil, "game_start", map[string]any{"seed": g.Seed, "players": seats})
	g.persistSnapshot()

	g.fireEvent(GameEvent{
		Type: EventGameStart,
		Payload: map[string]any{
			"players":   seats,
			"stockSize": int(g.Engine.StockLen),
		},
	})
	g.broadcastSyncStateToAll()
	g.onTurnAdvanced()
	return nil
}

// fireEvent broadcasts an event to all connected players via the BroadcastFn callback.
// Assumes lock is held by caller.
func (g *PalaceGame) fireEvent(ev GameEvent) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	} else {
		log.Debugf("Game %s: BroadcastFn is nil, cannot broadcast event type %s.", g.ID, ev.Type)
	}
}

// fireEventToPlayer sends an event to a specific connected human player.
// Assumes lock is held by caller.
func (g *PalaceGame) fireEventToPlayer(playerID uuid.UUID, ev GameEvent) {
	if g.BroadcastToPlayerFn == nil {
		log.Debugf("Game %s: BroadcastToPlayerFn is nil, cannot send private event type %s to player %s.", g.ID, ev.Type, playerID)
		return
	}
	target := g.getPlayerByID(playerID)
	if target != nil && target.Connected && !target.IsBot {
		g.BroadcastToPlayerFn(playerID, ev)
	}
}

// fireActionFail tells a player why their request was ignored.
// Assumes lock is held by caller.
func (g *PalaceGame) fireActionFail(playerID uuid.UUID, reason string) {
	g.fireEventToPlayer(playerID, GameEvent{
		Type:    EventPrivateActionFail,
		Payload: map[string]any{"message": reason},
	})
}

// HandlePlayerAction routes incoming player actions (play, pickup, sync).
// Validates turn and state before passing the action to the engine.
// Assumes lock is held by the caller.
func (g *PalaceGame) HandlePlayerAction(playerID uuid.UUID, action GameAction) {
	if action.Type == ActionSync {
		g.sendSyncState(playerID)
		return
	}
	if g.GameOver {
		log.Printf("Game %s: Action %s from %s ignored (game over).", g.ID, action.Type, playerID)
		g.fireActionFail(playerID, "The game is over.")
		return
	}
	if !g.Started {
		log.Printf("Game %s: Action %s from %s ignored (game not started).", g.ID, action.Type, playerID)
		g.fireActionFail(playerID, "The game has not started yet.")
		return
	}

	player := g.getPlayerByID(playerID)
	if player == nil || !player.Connected {
		log.Printf("Game %s: Action %s from non-existent/disconnected player %s ignored.", g.ID, action.Type, playerID)
		return
	}
	engineIdx, ok := g.PlayerToEngine[playerID]
	if !ok {
		log.Printf("Game %s: Action %s from %s ignored (not in engine mapping).", g.ID, action.Type, playerID)
		return
	}
	if g.Engine.ActingPlayer() != engineIdx {
		g.fireActionFail(playerID, "It's not your turn.")
		return
	}

	g.lastSeen[playerID] = time.Now()

	switch action.Type {
	case ActionPlay:
		if action.Index < 0 || action.Index >= int(engine.MaxPlayable) {
			g.fireActionFail(playerID, "Card index out of range.")
			return
		}
		_ = g.applyEngineAction(uint16(action.Index), playerID)
	case ActionPickup:
		_ = g.applyEngineAction(engine.ActionPickUp, playerID)
	default:
		log.Printf("Game %s: Unknown action type '%s' received from player %s.", g.ID, action.Type, playerID)
		g.fireActionFail(playerID, "Unknown action type.")
	}
}

// HandleDisconnect marks a player as disconnected and handles game state consequences.
// Assumes lock is held by caller.
func (g *PalaceGame) HandleDisconnect(playerID uuid.UUID) {
	p := g.getPlayerByID(playerID)
	if p == nil {
		log.Printf("Game %s: Disconnected player %s not found.", g.ID, playerID)
		return
	}
	if !p.Connected {
		return
	}
	p.Connected = false
	log.Printf("Game %s: Player %s disconnected.", g.ID, playerID)
	g.logAction(playerID, "player_disconnect", nil)
	g.fireEvent(GameEvent{Type: EventPlayerDisconnect, User: &EventUser{ID: playerID}})

	if !g.Started || g.GameOver {
		return
	}
	if g.HouseRules.ForfeitOnDisconnect && (g.countConnectedPlayers() <= 1 || g.countConnectedHumans() == 0) {
		log.Printf("Game %s: Only %d player(s) left connected after forfeit. Ending game.", g.ID, g.countConnectedPlayers())
		g.EndGame("forfeit")
		return
	}
	g.broadcastSyncStateToAll()
	if g.currentPlayerID() == playerID {
		g.scheduleNextTurnTimer()
	}
}

// HandleReconnect marks a player as connected and sends them the current game state.
// Assumes lock is held by caller.
func (g *PalaceGame) HandleReconnect(playerID uuid.UUID) bool {
	p := g.getPlayerByID(playerID)
	if p == nil {
		log.Printf("Game %s: Reconnecting player %s not found in game.", g.ID, playerID)
		return false
	}
	wasConnected := p.Connected
	p.Connected = true
	g.lastSeen[playerID] = time.Now()
	if !wasConnected {
		g.logAction(playerID, "player_reconnect", map[string]any{"username": p.Name})
		g.fireEvent(GameEvent{Type: EventPlayerReconnect, User: &EventUser{ID: playerID}})
	}
	g.sendSyncState(playerID)

	// A reconnect on one's own turn restores the normal turn timer.
	if g.Started && !g.GameOver && g.currentPlayerID() == playerID {
		g.scheduleNextTurnTimer()
	}
	return true
}

// sendSyncState sends the current obfuscated game state to a single player.
// Assumes lock is held by caller.
func (g *PalaceGame) sendSyncState(playerID uuid.UUID) {
	state := g.GetCurrentObfuscatedGameState(playerID)
	g.fireEventToPlayer(playerID, GameEvent{
		Type:  EventPrivateSyncState,
		State: &state,
	})
}

// broadcastSyncStateToAll sends each connected player their own view of the table.
// Assumes lock is held by caller.
func (g *PalaceGame) broadcastSyncStateToAll() {
	for _, p := range g.Players {
		if p.Connected && !p.IsBot {
			g.sendSyncState(p.ID)
		}
	}
}

func (g *PalaceGame) countConnectedPlayers() int {
	n := 0
	for _, p := range g.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

func (g *PalaceGame) countConnectedHumans() int {
	n := 0
	for _, p := range g.Players {
		if p.Connected && !p.IsBot {
			n++
		}
	}
	return n
}

// EndGame finalizes the game, broadcasts results, persists them and
// triggers the OnGameEnd callback. A game ended early (forfeit or abandon)
// is won by the only connected player, if there is exactly one.
// Assumes lock is held by caller.
func (g *PalaceGame) EndGame(reason string) {
	if g.GameOver {
		log.Printf("Game %s: EndGame called, but game is already over.", g.ID)
		return
	}
	g.GameOver = true
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}

	switch {
	case g.Engine.IsTerminal() && g.Engine.Winner >= 0:
		g.WinnerID = g.EngineToPlayer[g.Engine.Winner]
	case g.countConnectedPlayers() == 1:
		for _, p := range g.Players {
			if p.Connected {
				g.WinnerID = p.ID
			}
		}
	}

	scores := g.computeScoresFromEngine()
	g.logAction(uuid.Nil, string(EventGameEnd), map[string]any{
		"winner": g.WinnerID,
		"reason": reason,
		"scores": scores,
	})
	g.persistFinalGameState(scores)

	payloadScores := make(map[string]int, len(scores))
	for id, s := range scores {
		payloadScores[id.String()] = s
	}
	g.fireEvent(GameEvent{
		Type: EventGameEnd,
		Payload: map[string]any{
			"winner": g.WinnerID.String(),
			"reason": reason,
			"scores": payloadScores,
			"turns":  int(g.Engine.TurnNumber),
		},
	})
	g.broadcastSyncStateToAll()

	if g.OnGameEnd != nil {
		g.OnGameEnd(g.ID, g.WinnerID, scores)
	}
	log.WithFields(log.Fields{
		"game_id": g.ID,
		"winner":  g.WinnerID,
		"reason":  reason,
		"turns":   g.Engine.TurnNumber,
	}).Info("Game ended.")
}

// computeScoresFromEngine returns each scored player's cards left. Players
// who forfeited by disconnecting are omitted.
// Assumes lock is held by caller.
func (g *PalaceGame) computeScoresFromEngine() map[uuid.UUID]int {
	left := g.Engine.CardsLeft()
	scores := make(map[uuid.UUID]int, len(g.Players))
	for i, p := range g.Players {
		if p.Connected || !g.HouseRules.ForfeitOnDisconnect || p.ID == g.WinnerID {
			scores[p.ID] = left[i]
		} else {
			log.Printf("Game %s: Player %s score omitted (disconnected/forfeited).", g.ID, p.ID)
		}
	}
	return scores
}

// persistFinalGameState stores the result in Postgres when connected.
// Assumes lock is held by caller.
func (g *PalaceGame) persistFinalGameState(scores map[uuid.UUID]int) {
	if database.DB == nil {
		return
	}
	res := database.MatchResult{
		GameID:   g.ID,
		WinnerID: g.WinnerID,
		NumSeats: len(g.Players),
		Turns:    int(g.Engine.TurnNumber),
		Seed:     g.Seed,
		Scores:   make(map[string]int, len(scores)),
		Final:    g.GetCurrentObfuscatedGameState(uuid.Nil),
		EndedAt:  time.Now(),
	}
	for id, s := range scores {
		res.Scores[id.String()] = s
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.StoreMatchResult(ctx, res); err != nil {
			log.WithError(err).Errorf("Game %s: Failed to store match result.", res.GameID)
		}
	}()
}

// persistSnapshot caches the engine state in Redis when connected.
// Assumes lock is held by caller.
func (g *PalaceGame) persistSnapshot() {
	if cache.Rdb == nil {
		return
	}
	snap, turn, id := g.Engine.Save(), g.TurnID, g.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.SaveSnapshot(ctx, id, turn, snap); err != nil {
			log.WithError(err).Warnf("Game %s: Failed caching snapshot.", id)
		}
	}()
}

// getPlayerByID finds a player by ID. Returns nil if not found.
// Assumes lock is held by caller.
func (g *PalaceGame) getPlayerByID(playerID uuid.UUID) *Player {
	for _, p := range g.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// HasPlayer reports whether playerID holds a seat.
// Assumes lock is held by caller.
func (g *PalaceGame) HasPlayer(playerID uuid.UUID) bool {
	return g.getPlayerByID(playerID) != nil
}

// logAction appends an entry to the game's action log in Redis.
// Increments the internal action index for ordering.
// Assumes lock is held by caller.
func (g *PalaceGame) logAction(actorID uuid.UUID, actionType string, payload map[string]any) {
	g.actionIndex++
	if cache.Rdb == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	rec := cache.GameActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		ActorUserID:   actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	go func(rec cache.GameActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishGameAction(ctx, rec); err != nil {
			log.Printf("Error: Game %s: Failed publishing action %d ('%s') to Redis: %v", rec.GameID, rec.ActionIndex, rec.ActionType, err)
		}
	}(rec)
}
