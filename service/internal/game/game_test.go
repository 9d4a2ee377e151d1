// internal/game/game_test.go
package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	engine "github.com/palacecards/palace/engine"
	"github.com/palacecards/palace/simulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster captures game events for testing assertions.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []GameEvent
	playerEvents map[uuid.UUID][]GameEvent
}

// newMockBroadcaster creates an instance of the mock broadcaster.
func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		playerEvents: make(map[uuid.UUID][]GameEvent),
	}
}

func (mb *mockBroadcaster) broadcastFn(ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = []GameEvent{}
	mb.playerEvents = make(map[uuid.UUID][]GameEvent)
}

func (mb *mockBroadcaster) findEventByType(eventType GameEventType) *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i := len(mb.allEvents) - 1; i >= 0; i-- {
		if mb.allEvents[i].Type == eventType {
			return &mb.allEvents[i]
		}
	}
	return nil
}

func (mb *mockBroadcaster) findFirstEventByType(eventType GameEventType) *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i := range mb.allEvents {
		if mb.allEvents[i].Type == eventType {
			return &mb.allEvents[i]
		}
	}
	return nil
}

func (mb *mockBroadcaster) findPlayerEventByType(playerID uuid.UUID, eventType GameEventType) *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[playerID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

func (mb *mockBroadcaster) eventsFrom(userID uuid.UUID, eventType GameEventType) int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for _, ev := range mb.allEvents {
		if ev.Type == eventType && ev.User != nil && ev.User.ID == userID {
			n++
		}
	}
	return n
}

// setupTestGame seats numHumans connected players and numBots greedy bots,
// with a fixed seed, seat 0 leading and turn timers off. The game is not
// started.
func setupTestGame(t *testing.T, numHumans, numBots int, rules *HouseRules) (*PalaceGame, []*Player, *mockBroadcaster) {
	t.Helper()
	hr := DefaultHouseRules()
	if rules != nil {
		hr = *rules
	}
	hr.FixedStart = true
	hr.TurnTimerSec = 0

	g := NewPalaceGame(numHumans+numBots, hr)
	g.Seed = 12345
	mb := newMockBroadcaster()
	g.BroadcastFn = mb.broadcastFn
	g.BroadcastToPlayerFn = mb.broadcastToPlayerFn

	players := make([]*Player, 0, numHumans+numBots)
	for i := 0; i < numHumans; i++ {
		p := &Player{ID: uuid.New(), Name: "Player" + string(rune('A'+i)), Connected: true}
		require.NoError(t, g.AddPlayer(p))
		players = append(players, p)
	}
	for i := 0; i < numBots; i++ {
		p, err := g.AddBot("Bot"+string(rune('A'+i)), simulation.GreedyPolicy{})
		require.NoError(t, err)
		players = append(players, p)
	}
	return g, players, mb
}

func startTestGame(t *testing.T, numHumans, numBots int, rules *HouseRules) (*PalaceGame, []*Player, *mockBroadcaster) {
	t.Helper()
	g, players, mb := setupTestGame(t, numHumans, numBots, rules)
	require.True(t, g.ReadyToStart())
	require.NoError(t, g.Start())
	require.True(t, g.Started, "Game should be marked as started")
	return g, players, mb
}

// rigSingleCardWin leaves the acting player one Ace in hand, an empty pile
// and an empty stock, so their next play wins.
func rigSingleCardWin(g *PalaceGame) {
	h := &g.Engine.Players[g.Engine.ActingPlayer()]
	*h = engine.Hand{}
	h.Add(engine.TierInHand, engine.NewCard(engine.SuitSpades, engine.RankAce))
	g.Engine.Pile = engine.Pile{}
	g.Engine.StockLen = 0
}

// greedyAction returns the server's fallback move as a client request.
func greedyAction(g *PalaceGame) GameAction {
	idx := g.fallbackAction()
	if idx == engine.ActionPickUp {
		return GameAction{Type: ActionPickup}
	}
	return GameAction{Type: ActionPlay, Index: int(idx)}
}

func TestStartDealsAndSyncs(t *testing.T) {
	g, players, mb := startTestGame(t, 2, 0, nil)

	assert.Equal(t, uint8(0), g.Engine.ActingPlayer(), "fixed start: seat 0 leads")
	assert.Equal(t, 34, int(g.Engine.StockLen))
	assert.Equal(t, players[0].ID, g.EngineToPlayer[0])
	assert.Equal(t, uint8(1), g.PlayerToEngine[players[1].ID])
	assert.NotNil(t, mb.findEventByType(EventGameStart))

	turn := mb.findEventByType(EventGamePlayerTurn)
	require.NotNil(t, turn)
	assert.Equal(t, players[0].ID, turn.User.ID)

	for _, p := range players {
		ev := mb.findPlayerEventByType(p.ID, EventPrivateSyncState)
		require.NotNil(t, ev, "player %s should receive a sync state", p.Name)
		require.NotNil(t, ev.State)
		assert.True(t, ev.State.Started)
		assert.Equal(t, 34, ev.State.StockSize)
	}
}

func TestStartErrors(t *testing.T) {
	g, _, _ := setupTestGame(t, 1, 0, nil)
	assert.False(t, g.ReadyToStart(), "one of two seats taken")
	assert.ErrorIs(t, g.Start(), ErrNotEnoughPlayers)

	g, _, _ = startTestGame(t, 2, 0, nil)
	assert.ErrorIs(t, g.Start(), ErrGameStarted)
}

func TestStartCustomDeck(t *testing.T) {
	g, _, _ := setupTestGame(t, 2, 0, nil)
	g.Deck = engine.StandardDeck(0)[:17]
	assert.ErrorIs(t, g.Start(), engine.ErrInsufficientCards)
	assert.False(t, g.Started)

	g.Deck = engine.StandardDeck(0)[:18]
	require.NoError(t, g.Start())
	assert.Zero(t, g.Engine.StockLen)
}

func TestAddPlayerErrors(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, 0, nil)
	assert.ErrorIs(t, g.AddPlayer(&Player{ID: uuid.New(), Name: "late"}), ErrGameFull)

	// Rejoining a known seat is not an error.
	require.NoError(t, g.AddPlayer(&Player{ID: players[0].ID, Name: "renamed", Connected: true}))
	assert.Equal(t, "renamed", players[0].Name)

	require.NoError(t, g.Start())
	assert.ErrorIs(t, g.AddPlayer(&Player{ID: uuid.New()}), ErrGameStarted)
}

func TestReadyToStartWaitsForHumans(t *testing.T) {
	g := NewPalaceGame(2, DefaultHouseRules())
	a := &Player{ID: uuid.New(), Name: "A"}
	require.NoError(t, g.AddPlayer(a))
	_, err := g.AddBot("bot", nil)
	require.NoError(t, err)

	assert.False(t, g.ReadyToStart(), "human not connected yet")
	require.True(t, g.HandleReconnect(a.ID))
	assert.True(t, g.ReadyToStart())
}

func TestNewPalaceGameSeats(t *testing.T) {
	assert.Equal(t, 2, NewPalaceGame(0, DefaultHouseRules()).Seats)
	assert.Equal(t, 2, NewPalaceGame(7, DefaultHouseRules()).Seats)
	assert.Equal(t, 4, NewPalaceGame(4, DefaultHouseRules()).Seats)
	assert.Equal(t, 30*time.Second, NewPalaceGame(2, DefaultHouseRules()).TurnDuration)
}

func TestActionNotYourTurn(t *testing.T) {
	g, players, mb := startTestGame(t, 2, 0, nil)
	mb.clear()

	g.HandlePlayerAction(players[1].ID, GameAction{Type: ActionPlay, Index: 0})
	ev := mb.findPlayerEventByType(players[1].ID, EventPrivateActionFail)
	require.NotNil(t, ev)
	assert.Equal(t, "It's not your turn.", ev.Payload["message"])
	assert.Zero(t, g.TurnID, "rejected action must not advance the turn")
}

func TestActionBeforeStart(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, 0, nil)
	g.HandlePlayerAction(players[0].ID, GameAction{Type: ActionPlay})
	assert.NotNil(t, mb.findPlayerEventByType(players[0].ID, EventPrivateActionFail))
}

func TestPickupEmptyPileRejected(t *testing.T) {
	g, players, mb := startTestGame(t, 2, 0, nil)
	mb.clear()
	before := g.Engine

	g.HandlePlayerAction(players[0].ID, GameAction{Type: ActionPickup})
	ev := mb.findPlayerEventByType(players[0].ID, EventPrivateActionFail)
	require.NotNil(t, ev)
	assert.Contains(t, ev.Payload["message"], "empty pile")
	assert.Equal(t, before, g.Engine, "engine must be untouched")
}

func TestBadIndexAndUnknownType(t *testing.T) {
	g, players, mb := startTestGame(t, 2, 0, nil)
	mb.clear()

	g.HandlePlayerAction(players[0].ID, GameAction{Type: ActionPlay, Index: -1})
	g.HandlePlayerAction(players[0].ID, GameAction{Type: ActionPlay, Index: 9})
	g.HandlePlayerAction(players[0].ID, GameAction{Type: "snap"})

	mb.mu.Lock()
	fails := 0
	for _, ev := range mb.playerEvents[players[0].ID] {
		if ev.Type == EventPrivateActionFail {
			fails++
		}
	}
	mb.mu.Unlock()
	assert.Equal(t, 3, fails)
	assert.Zero(t, g.TurnID)
}

func TestPlayAdvancesTurn(t *testing.T) {
	g, players, mb := startTestGame(t, 2, 0, nil)
	mb.clear()

	g.HandlePlayerAction(players[0].ID, GameAction{Type: ActionPlay, Index: 0})
	assert.Equal(t, 1, g.TurnID)

	play := mb.findEventByType(EventPlayerPlay)
	require.NotNil(t, play)
	assert.Equal(t, players[0].ID, play.User.ID)
	require.NotNil(t, play.Card)
	assert.Equal(t, "in hand", play.Card.Tier)
	assert.Equal(t, true, play.Payload["legal"], "any card is accepted on an empty pile")

	// The player replenished from the stock back to three cards.
	draw := mb.findEventByType(EventPlayerDraw)
	require.NotNil(t, draw)
	assert.Equal(t, 1, draw.Payload["count"])
	assert.Equal(t, 3, int(g.Engine.Players[0].Len(engine.TierInHand)))
}

func TestVoluntaryPickup(t *testing.T) {
	g, players, mb := startTestGame(t, 2, 0, nil)
	g.Engine.Pile.Push(engine.NewCard(engine.SuitClubs, engine.RankFive))
	g.Engine.Pile.Push(engine.NewCard(engine.SuitClubs, engine.RankNine))
	mb.clear()

	g.HandlePlayerAction(players[0].ID, GameAction{Type: ActionPickup})

	ev := mb.findEventByType(EventPlayerPickup)
	require.NotNil(t, ev)
	assert.Equal(t, 2, ev.Payload["count"])
	assert.Equal(t, false, ev.Payload["forced"])
	assert.Nil(t, mb.findEventByType(EventPlayerPlay), "a voluntary pickup plays no card")
	assert.Zero(t, g.Engine.Pile.Len)
	assert.Equal(t, 5, int(g.Engine.Players[0].Len(engine.TierInHand)))
	assert.Equal(t, players[1].ID, g.currentPlayerID())
}

func TestSyncStateObfuscation(t *testing.T) {
	g, players, _ := startTestGame(t, 2, 0, nil)
	a, b := players[0].ID, players[1].ID

	st := g.GetCurrentObfuscatedGameState(a)
	require.Len(t, st.Players, 2)
	self, opp := st.Players[0], st.Players[1]

	assert.True(t, self.IsCurrentTurn)
	assert.Len(t, self.InHand, 3)
	for _, c := range self.InHand {
		assert.True(t, c.Known)
	}
	assert.Empty(t, opp.InHand, "opponent's hand must be hidden")
	assert.Equal(t, 3, opp.InHandCount)
	assert.Len(t, opp.FaceUp, 3, "face-up cards are public")
	assert.Empty(t, self.FaceDown, "face-down cards are hidden from their owner too")
	assert.Equal(t, 3, self.FaceDownCount)
	assert.Equal(t, 9, self.CardsLeft)

	assert.Equal(t, "in hand", st.PlayableTier)
	assert.Equal(t, []int{0, 1, 2}, st.Accepted, "empty pile accepts every card")
	assert.False(t, st.CanPickUp)
	assert.Equal(t, "7", st.CapRank)

	// The waiting player gets no action hints.
	st = g.GetCurrentObfuscatedGameState(b)
	assert.Empty(t, st.PlayableTier)
	assert.Nil(t, st.Accepted)

	// Spectators see no hand at all.
	st = g.GetCurrentObfuscatedGameState(uuid.Nil)
	for _, ps := range st.Players {
		assert.Empty(t, ps.InHand)
	}

	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"faceDownCount":3`)
}

func TestSyncStateBeforeStart(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, 0, nil)
	st := g.GetCurrentObfuscatedGameState(players[0].ID)
	assert.False(t, st.Started)
	assert.Len(t, st.Players, 2)
	assert.Nil(t, st.PileTop)
	assert.Zero(t, st.StockSize)
}

func TestWinEndsGame(t *testing.T) {
	g, players, mb := startTestGame(t, 2, 0, nil)

	var (
		endCalled bool
		endWinner uuid.UUID
		endScores map[uuid.UUID]int
	)
	g.OnGameEnd = func(id uuid.UUID, winner uuid.UUID, scores map[uuid.UUID]int) {
		endCalled = true
		endWinner = winner
		endScores = scores
		assert.Equal(t, g.ID, id)
	}

	rigSingleCardWin(g)
	g.HandlePlayerAction(players[0].ID, GameAction{Type: ActionPlay, Index: 0})

	assert.True(t, g.GameOver)
	assert.Equal(t, players[0].ID, g.WinnerID)
	require.True(t, endCalled)
	assert.Equal(t, players[0].ID, endWinner)
	assert.Equal(t, 0, endScores[players[0].ID])
	assert.Equal(t, 9, endScores[players[1].ID])

	ev := mb.findEventByType(EventGameEnd)
	require.NotNil(t, ev)
	assert.Equal(t, players[0].ID.String(), ev.Payload["winner"])
	assert.Equal(t, "win", ev.Payload["reason"])

	// Everything is revealed once the game is over.
	st := g.GetCurrentObfuscatedGameState(players[0].ID)
	assert.True(t, st.GameOver)
	assert.Len(t, st.Players[1].InHand, 3)
	assert.Len(t, st.Players[1].FaceDown, 3)

	// Further actions are ignored.
	mb.clear()
	g.HandlePlayerAction(players[1].ID, GameAction{Type: ActionPlay})
	assert.NotNil(t, mb.findPlayerEventByType(players[1].ID, EventPrivateActionFail))
}

func TestBotMovesAfterHuman(t *testing.T) {
	g, players, mb := startTestGame(t, 1, 1, nil)
	human, bot := players[0], players[1]
	require.Equal(t, human.ID, g.currentPlayerID(), "fixed start: the human leads")

	for i := 0; i < 50 && !g.GameOver && mb.eventsFrom(bot.ID, EventPlayerPlay)+mb.eventsFrom(bot.ID, EventPlayerPickup) == 0; i++ {
		require.Equal(t, human.ID, g.currentPlayerID(), "bots move before control returns")
		g.HandlePlayerAction(human.ID, greedyAction(g))
	}
	assert.Positive(t, mb.eventsFrom(bot.ID, EventPlayerPlay)+mb.eventsFrom(bot.ID, EventPlayerPickup))
	if !g.GameOver {
		assert.Equal(t, human.ID, g.currentPlayerID())
	}
	assert.Nil(t, mb.findPlayerEventByType(bot.ID, EventPrivateSyncState), "bots receive no private events")
}

func TestTurnTimeoutPlaysForPlayer(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, 0, nil)
	g.TurnDuration = 50 * time.Millisecond

	g.Mu.Lock()
	require.NoError(t, g.Start())
	g.Mu.Unlock()

	require.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		return g.TurnID > 0
	}, 2*time.Second, 10*time.Millisecond)

	ev := mb.findFirstEventByType(EventPlayerTimeout)
	require.NotNil(t, ev)
	assert.Equal(t, players[0].ID, ev.User.ID)

	g.Mu.Lock()
	g.EndGame("test")
	g.Mu.Unlock()
}

func TestDisconnectForfeit(t *testing.T) {
	g, players, mb := startTestGame(t, 2, 0, nil)
	var ended bool
	g.OnGameEnd = func(_ uuid.UUID, winner uuid.UUID, scores map[uuid.UUID]int) {
		ended = true
		assert.Equal(t, players[0].ID, winner)
		assert.NotContains(t, scores, players[1].ID, "forfeited player is not scored")
	}

	g.HandleDisconnect(players[1].ID)
	assert.True(t, ended)
	assert.True(t, g.GameOver)
	assert.NotNil(t, mb.findEventByType(EventPlayerDisconnect))
	ev := mb.findEventByType(EventGameEnd)
	require.NotNil(t, ev)
	assert.Equal(t, "forfeit", ev.Payload["reason"])

	// A second disconnect is a no-op.
	g.HandleDisconnect(players[1].ID)
}

func TestDisconnectWithoutForfeitAutoPlays(t *testing.T) {
	rules := DefaultHouseRules()
	rules.ForfeitOnDisconnect = false
	g, players, mb := setupTestGame(t, 2, 0, &rules)

	g.Mu.Lock()
	require.NoError(t, g.Start())
	g.HandleDisconnect(players[0].ID)
	assert.False(t, g.GameOver)
	g.Mu.Unlock()

	require.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		return g.TurnID > 0
	}, 3*time.Second, 20*time.Millisecond, "disconnected player's turn should be played")
	assert.NotNil(t, mb.findEventByType(EventPlayerTimeout))

	g.Mu.Lock()
	assert.True(t, g.HandleReconnect(players[0].ID))
	assert.True(t, players[0].Connected)
	assert.False(t, g.HandleReconnect(uuid.New()))
	g.EndGame("test")
	g.Mu.Unlock()
}

func TestSyncAction(t *testing.T) {
	g, players, mb := startTestGame(t, 2, 0, nil)
	mb.clear()
	g.HandlePlayerAction(players[1].ID, GameAction{Type: ActionSync})
	ev := mb.findPlayerEventByType(players[1].ID, EventPrivateSyncState)
	require.NotNil(t, ev)
	assert.Equal(t, g.ID, ev.State.GameID)
}

func TestHouseRulesValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*HouseRules)
		wantErr bool
	}{
		{"defaults", func(*HouseRules) {}, false},
		{"two jokers", func(h *HouseRules) { h.NumJokers = 2 }, false},
		{"three jokers", func(h *HouseRules) { h.NumJokers = 3 }, true},
		{"negative timer", func(h *HouseRules) { h.TurnTimerSec = -1 }, true},
		{"cap eight", func(h *HouseRules) { h.RankCap = "8" }, false},
		{"cap joker", func(h *HouseRules) { h.RankCap = "Joker" }, true},
		{"cap garbage", func(h *HouseRules) { h.RankCap = "Z" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := DefaultHouseRules()
			tt.mutate(&h)
			if tt.wantErr {
				assert.Error(t, h.Validate())
			} else {
				assert.NoError(t, h.Validate())
			}
		})
	}
}

func TestMapHouseRulesToEngine(t *testing.T) {
	rules := DefaultHouseRules()
	rules.NumJokers = 2
	rules.RankCap = "8"
	g, _, _ := setupTestGame(t, 3, 0, &rules)

	er := g.mapHouseRulesToEngine()
	assert.Equal(t, uint8(3), er.NumPlayers)
	assert.Equal(t, uint8(2), er.NumJokers)
	assert.Equal(t, engine.RankEight, er.RankCap)
	assert.False(t, er.RandomStart)
	assert.Equal(t, engine.DefaultEffects(), er.Effects)
}

func TestCardStrings(t *testing.T) {
	assert.Equal(t, "T", engineRankToString(engine.RankTen))
	assert.Equal(t, "A", engineRankToString(engine.RankAce))
	assert.Equal(t, "O", engineRankToString(engine.RankJoker))
	assert.Equal(t, "?", engineRankToString(engine.RankNone))
	assert.Equal(t, "S", engineSuitToString(engine.SuitSpades))
	assert.Equal(t, "R", engineSuitToString(engine.SuitRedJoker))

	ev := engineCardToEvent(engine.NewCard(engine.SuitHearts, engine.RankQueen), engine.TierFaceUp)
	assert.Equal(t, EventCard{Rank: "Q", Suit: "H", Value: 12, Tier: "face up"}, *ev)
}
