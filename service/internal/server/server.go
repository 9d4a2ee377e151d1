// internal/server/server.go
package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	engine "github.com/palacecards/palace/engine"
	"github.com/palacecards/palace/service/internal/auth"
	"github.com/palacecards/palace/service/internal/cache"
	"github.com/palacecards/palace/service/internal/config"
	"github.com/palacecards/palace/service/internal/database"
	"github.com/palacecards/palace/service/internal/game"
	"github.com/palacecards/palace/simulation"
	log "github.com/sirupsen/logrus"
)

// finishedGameTTL is how long a finished game stays queryable in memory.
const finishedGameTTL = 10 * time.Minute

// GameStore holds the live games of this process.
type GameStore struct {
	mu    sync.RWMutex
	games map[uuid.UUID]*game.PalaceGame
}

func NewGameStore() *GameStore {
	return &GameStore{games: make(map[uuid.UUID]*game.PalaceGame)}
}

func (s *GameStore) Add(g *game.PalaceGame) {
	s.mu.Lock()
	s.games[g.ID] = g
	s.mu.Unlock()
}

func (s *GameStore) Get(id uuid.UUID) (*game.PalaceGame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	return g, ok
}

func (s *GameStore) Remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.games, id)
	s.mu.Unlock()
}

// List returns the games ordered by creation time.
func (s *GameStore) List() []*game.PalaceGame {
	s.mu.RLock()
	out := make([]*game.PalaceGame, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Server serves the HTTP API and the websocket play loop.
type Server struct {
	cfg    config.Config
	issuer *auth.Issuer
	games  *GameStore
	hub    *hub
	deck   []engine.Card // nil deals the standard deck
}

// New returns a Server. deck, when non-nil, is used for every new game.
func New(cfg config.Config, issuer *auth.Issuer, deck []engine.Card) *Server {
	return &Server{
		cfg:    cfg,
		issuer: issuer,
		games:  NewGameStore(),
		hub:    newHub(),
		deck:   deck,
	}
}

// Games exposes the store, mainly for tests and shutdown.
func (s *Server) Games() *GameStore { return s.games }

// Handler returns the routed, logged HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/token", s.handleToken)
	mux.HandleFunc("GET /api/games", s.handleListGames)
	mux.HandleFunc("POST /api/games", s.authed(s.handleCreateGame))
	mux.HandleFunc("GET /api/games/{id}", s.authed(s.handleGetGame))
	mux.HandleFunc("POST /api/games/{id}/join", s.authed(s.handleJoinGame))
	mux.HandleFunc("POST /api/games/{id}/start", s.authed(s.handleStartGame))
	mux.HandleFunc("GET /api/games/{id}/actions", s.authed(s.handleGameActions))
	mux.HandleFunc("GET /api/games/{id}/ws", s.authed(s.handleGameWS))
	mux.HandleFunc("GET /api/results", s.handleListResults)
	mux.HandleFunc("GET /api/results/{id}", s.handleGetResult)
	return logRequests(mux)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type authedHandler func(w http.ResponseWriter, r *http.Request, playerID uuid.UUID, claims auth.Claims)

// authed verifies the bearer token (or the token query parameter, which
// browsers need for websockets) before calling h.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			tok = r.URL.Query().Get("token")
		}
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims, err := s.issuer.Verify(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		id, _ := claims.PlayerID()
		h(w, r, id, claims)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed writing response.")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody decodes an optional JSON body into v. An empty body is fine.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bad request body: %w", err)
	}
	return nil
}

// gameFromPath resolves the {id} path value, writing the error response
// itself when it fails.
func (s *Server) gameFromPath(w http.ResponseWriter, r *http.Request) (*game.PalaceGame, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad game id")
		return nil, false
	}
	g, ok := s.games.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "game not found")
		return nil, false
	}
	return g, true
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"database": database.DB != nil,
		"cache":    cache.Rdb != nil,
	})
}

type tokenRequest struct {
	Name string `json:"name"`
}

type tokenResponse struct {
	PlayerID uuid.UUID `json:"playerId"`
	Token    string    `json:"token"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, tok, err := s.issuer.Issue(req.Name)
	if err != nil {
		log.WithError(err).Error("Failed issuing token.")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{PlayerID: id, Token: tok})
}

type gameSummary struct {
	ID          uuid.UUID `json:"id"`
	Seats       int       `json:"seats"`
	Players     int       `json:"players"`
	Started     bool      `json:"started"`
	GameOver    bool      `json:"gameOver"`
	HasPassword bool      `json:"hasPassword"`
}

func (s *Server) handleListGames(w http.ResponseWriter, _ *http.Request) {
	list := s.games.List()
	out := make([]gameSummary, 0, len(list))
	for _, g := range list {
		g.Mu.Lock()
		out = append(out, gameSummary{
			ID:          g.ID,
			Seats:       g.Seats,
			Players:     len(g.Players),
			Started:     g.Started,
			GameOver:    g.GameOver,
			HasPassword: g.PasswordHash != "",
		})
		g.Mu.Unlock()
	}
	writeJSON(w, http.StatusOK, out)
}

type createGameRequest struct {
	Seats      int              `json:"seats"`
	Bots       []string         `json:"bots"`
	Password   string           `json:"password"`
	HouseRules *game.HouseRules `json:"houseRules"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request, playerID uuid.UUID, claims auth.Claims) {
	var req createGameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Seats == 0 {
		req.Seats = 2
	}
	if req.Seats < 2 || req.Seats > engine.MaxPlayers {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("seats must be 2-%d", engine.MaxPlayers))
		return
	}
	if len(req.Bots) >= req.Seats {
		writeError(w, http.StatusBadRequest, "at least one seat must be left for a human")
		return
	}
	if s.deck != nil && len(s.deck) < req.Seats*9 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("configured deck has %d cards, too few for %d seats", len(s.deck), req.Seats))
		return
	}
	policies := make([]simulation.Policy, len(req.Bots))
	for i, name := range req.Bots {
		t, err := simulation.ParsePolicy(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		policies[i] = simulation.NewPolicy(t)
	}
	rules := game.DefaultHouseRules()
	rules.TurnTimerSec = int(s.cfg.TurnTimeout / time.Second)
	if req.HouseRules != nil {
		rules = *req.HouseRules
	}
	if err := rules.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g := game.NewPalaceGame(req.Seats, rules)
	g.Deck = s.deck
	if req.Password != "" {
		h, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not hash password")
			return
		}
		g.PasswordHash = h
	}
	s.wireGame(g)

	g.Mu.Lock()
	if err := g.AddPlayer(&game.Player{ID: playerID, Name: claims.Name}); err != nil {
		g.Mu.Unlock()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i, p := range policies {
		if _, err := g.AddBot(fmt.Sprintf("%s bot %d", req.Bots[i], i+1), p); err != nil {
			g.Mu.Unlock()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	state := g.GetCurrentObfuscatedGameState(playerID)
	g.Mu.Unlock()

	s.games.Add(g)
	log.WithFields(log.Fields{"game_id": g.ID, "seats": req.Seats, "bots": len(req.Bots), "creator": playerID}).Info("Game created.")
	writeJSON(w, http.StatusCreated, state)
}

// wireGame connects a game's callbacks to the hub and the store.
func (s *Server) wireGame(g *game.PalaceGame) {
	id := g.ID
	g.BroadcastFn = func(ev game.GameEvent) { s.hub.broadcast(id, ev) }
	g.BroadcastToPlayerFn = func(playerID uuid.UUID, ev game.GameEvent) { s.hub.sendTo(id, playerID, ev) }
	g.OnGameEnd = func(gameID uuid.UUID, winner uuid.UUID, _ map[uuid.UUID]int) {
		time.AfterFunc(finishedGameTTL, func() {
			s.hub.closeGame(gameID, "game over")
			s.games.Remove(gameID)
		})
	}
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request, playerID uuid.UUID, _ auth.Claims) {
	g, ok := s.gameFromPath(w, r)
	if !ok {
		return
	}
	g.Mu.Lock()
	viewer := uuid.Nil
	if g.HasPlayer(playerID) {
		viewer = playerID
	}
	state := g.GetCurrentObfuscatedGameState(viewer)
	g.Mu.Unlock()
	writeJSON(w, http.StatusOK, state)
}

type joinRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request, playerID uuid.UUID, claims auth.Claims) {
	g, ok := s.gameFromPath(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()
	if !g.HasPlayer(playerID) {
		if err := auth.CheckPassword(g.PasswordHash, req.Password); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		err := g.AddPlayer(&game.Player{ID: playerID, Name: claims.Name})
		switch {
		case errors.Is(err, game.ErrGameFull), errors.Is(err, game.ErrGameStarted):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, g.GetCurrentObfuscatedGameState(playerID))
}

// handleStartGame starts a game before every seat is filled. The empty
// seats are dropped.
func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request, playerID uuid.UUID, _ auth.Claims) {
	g, ok := s.gameFromPath(w, r)
	if !ok {
		return
	}
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if !g.HasPlayer(playerID) {
		writeError(w, http.StatusForbidden, "not a player of this game")
		return
	}
	if g.Started || g.GameOver {
		writeError(w, http.StatusConflict, game.ErrGameStarted.Error())
		return
	}
	for _, p := range g.Players {
		if !p.Connected {
			writeError(w, http.StatusConflict, "waiting for players to connect")
			return
		}
	}
	if len(g.Players) < 2 {
		writeError(w, http.StatusConflict, game.ErrNotEnoughPlayers.Error())
		return
	}
	g.Seats = len(g.Players)
	if err := g.Start(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g.GetCurrentObfuscatedGameState(playerID))
}

// handleGameActions returns the game's action log from the cache.
func (s *Server) handleGameActions(w http.ResponseWriter, r *http.Request, _ uuid.UUID, _ auth.Claims) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad game id")
		return
	}
	if cache.Rdb == nil {
		writeError(w, http.StatusServiceUnavailable, "action log not configured")
		return
	}
	recs, err := cache.GameActions(r.Context(), id)
	if err != nil {
		log.WithError(err).Errorf("Game %s: Failed reading action log.", id)
		writeError(w, http.StatusInternalServerError, "could not read action log")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "match history not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	res, err := database.RecentMatchResults(r.Context(), limit)
	if err != nil {
		log.WithError(err).Error("Failed listing match results.")
		writeError(w, http.StatusInternalServerError, "could not list results")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "match history not configured")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad game id")
		return
	}
	res, err := database.GetMatchResult(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.WithError(err).Errorf("Game %s: Failed loading match result.", id)
		writeError(w, http.StatusInternalServerError, "could not load result")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGameWS upgrades a seated player to a websocket. Client messages are
// game.GameAction JSON; server messages are game.GameEvent JSON.
func (s *Server) handleGameWS(w http.ResponseWriter, r *http.Request, playerID uuid.UUID, _ auth.Claims) {
	g, ok := s.gameFromPath(w, r)
	if !ok {
		return
	}
	g.Mu.Lock()
	seated := g.HasPlayer(playerID)
	g.Mu.Unlock()
	if !seated {
		writeError(w, http.StatusForbidden, "join the game first")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.WithError(err).Warnf("Game %s: websocket accept failed for %s.", g.ID, playerID)
		return
	}
	c := newClient(g.ID, playerID, conn)
	if prev := s.hub.register(c); prev != nil {
		prev.conn.Close(websocket.StatusPolicyViolation, "connected elsewhere")
	}
	go c.writeLoop()

	g.Mu.Lock()
	g.HandleReconnect(playerID)
	if g.ReadyToStart() {
		if err := g.Start(); err != nil {
			log.WithError(err).Errorf("Game %s: Failed to start.", g.ID)
		}
	}
	g.Mu.Unlock()

	ctx := r.Context()
	for {
		var action game.GameAction
		if err := wsjson.Read(ctx, conn, &action); err != nil {
			if websocket.CloseStatus(err) == -1 {
				log.WithError(err).Debugf("Game %s: Read from %s ended.", g.ID, playerID)
			}
			break
		}
		g.Mu.Lock()
		g.HandlePlayerAction(playerID, action)
		g.Mu.Unlock()
	}

	if s.hub.unregister(c) {
		g.Mu.Lock()
		g.HandleDisconnect(playerID)
		g.Mu.Unlock()
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// ---------------------------------------------------------------------------
// Request logging
// ---------------------------------------------------------------------------

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("HTTP request")
	})
}
