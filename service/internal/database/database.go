// internal/database/database.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// DB is the shared connection pool. It stays nil when no DATABASE_URL is
// configured, and callers skip persistence in that case.
var DB *pgxpool.Pool

// ErrNotFound is returned when a match result does not exist.
var ErrNotFound = errors.New("match result not found")

const schema = `
CREATE TABLE IF NOT EXISTS match_results (
	game_id    UUID PRIMARY KEY,
	winner_id  UUID NOT NULL,
	num_seats  SMALLINT NOT NULL,
	turns      INTEGER NOT NULL,
	seed       BIGINT NOT NULL,
	scores     JSONB NOT NULL,
	final      JSONB NOT NULL,
	ended_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS match_results_ended_at ON match_results (ended_at DESC);
`

// MatchResult is the persisted outcome of one finished game.
type MatchResult struct {
	GameID   uuid.UUID      `json:"gameId"`
	WinnerID uuid.UUID      `json:"winnerId"` // uuid.Nil when the game ended without a winner
	NumSeats int            `json:"numSeats"`
	Turns    int            `json:"turns"`
	Seed     uint64         `json:"seed"`
	Scores   map[string]int `json:"scores"` // player id -> cards left
	Final    any            `json:"final"`  // final table, marshalled to JSON
	EndedAt  time.Time      `json:"endedAt"`
}

// ConnectDB opens the pool, verifies it with a ping and creates the schema.
func ConnectDB(ctx context.Context, url string) error {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	DB = pool
	log.Info("Connected to Postgres.")
	return nil
}

// Close releases the pool.
func Close() {
	if DB != nil {
		DB.Close()
		DB = nil
	}
}

// StoreMatchResult upserts a finished game.
func StoreMatchResult(ctx context.Context, r MatchResult) error {
	if DB == nil {
		return errors.New("database not connected")
	}
	scores, err := json.Marshal(r.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	final, err := json.Marshal(r.Final)
	if err != nil {
		return fmt.Errorf("marshal final state: %w", err)
	}
	if r.EndedAt.IsZero() {
		r.EndedAt = time.Now()
	}
	_, err = DB.Exec(ctx, `
		INSERT INTO match_results (game_id, winner_id, num_seats, turns, seed, scores, final, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (game_id) DO UPDATE SET
			winner_id = EXCLUDED.winner_id,
			turns     = EXCLUDED.turns,
			scores    = EXCLUDED.scores,
			final     = EXCLUDED.final,
			ended_at  = EXCLUDED.ended_at`,
		r.GameID, r.WinnerID, r.NumSeats, r.Turns, int64(r.Seed), scores, final, r.EndedAt)
	if err != nil {
		return fmt.Errorf("store match result %s: %w", r.GameID, err)
	}
	return nil
}

// GetMatchResult loads one result. Final is returned as json.RawMessage.
func GetMatchResult(ctx context.Context, gameID uuid.UUID) (MatchResult, error) {
	if DB == nil {
		return MatchResult{}, errors.New("database not connected")
	}
	row := DB.QueryRow(ctx, `
		SELECT game_id, winner_id, num_seats, turns, seed, scores, final, ended_at
		FROM match_results WHERE game_id = $1`, gameID)
	r, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return MatchResult{}, ErrNotFound
	}
	return r, err
}

// RecentMatchResults returns up to limit results, newest first.
func RecentMatchResults(ctx context.Context, limit int) ([]MatchResult, error) {
	if DB == nil {
		return nil, errors.New("database not connected")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := DB.Query(ctx, `
		SELECT game_id, winner_id, num_seats, turns, seed, scores, final, ended_at
		FROM match_results ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query match results: %w", err)
	}
	defer rows.Close()

	var out []MatchResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanResult(row pgx.Row) (MatchResult, error) {
	var (
		r      MatchResult
		seed   int64
		scores []byte
		final  []byte
	)
	if err := row.Scan(&r.GameID, &r.WinnerID, &r.NumSeats, &r.Turns, &seed, &scores, &final, &r.EndedAt); err != nil {
		return MatchResult{}, err
	}
	r.Seed = uint64(seed)
	if err := json.Unmarshal(scores, &r.Scores); err != nil {
		return MatchResult{}, fmt.Errorf("decode scores: %w", err)
	}
	r.Final = json.RawMessage(final)
	return r, nil
}
