// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	engine "github.com/palacecards/palace/engine"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Rdb is the shared client. It stays nil when no REDIS_ADDR is configured,
// and callers skip caching in that case.
var Rdb *redis.Client

// GameTTL bounds how long a game's snapshot and action log are kept.
const GameTTL = 24 * time.Hour

// ErrNoSnapshot is returned when no snapshot is cached for a game.
var ErrNoSnapshot = errors.New("no cached snapshot")

var errNotConnected = errors.New("redis not connected")

// GameActionRecord is one entry of a game's action log.
type GameActionRecord struct {
	GameID        uuid.UUID      `json:"game_id"`
	ActionIndex   int            `json:"action_index"`
	ActorUserID   uuid.UUID      `json:"actor_user_id"` // uuid.Nil for game events
	ActionType    string         `json:"action_type"`
	ActionPayload map[string]any `json:"action_payload"`
	Timestamp     int64          `json:"timestamp"` // unix millis
}

// SnapshotRecord is a cached copy of a game's engine state.
type SnapshotRecord struct {
	GameID   uuid.UUID       `json:"game_id"`
	Hash     uint64          `json:"hash"`
	TurnID   int             `json:"turn_id"`
	Snapshot engine.Snapshot `json:"snapshot"`
	SavedAt  int64           `json:"saved_at"`
}

func actionsKey(gameID uuid.UUID) string  { return "palace:game:" + gameID.String() + ":actions" }
func snapshotKey(gameID uuid.UUID) string { return "palace:game:" + gameID.String() + ":snapshot" }

// ConnectRedis creates the client and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr, password string) error {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return fmt.Errorf("ping redis %s: %w", addr, err)
	}
	Rdb = c
	log.Infof("Connected to Redis at %s.", addr)
	return nil
}

// Close releases the client.
func Close() {
	if Rdb != nil {
		_ = Rdb.Close()
		Rdb = nil
	}
}

// PublishGameAction appends rec to its game's action log.
func PublishGameAction(ctx context.Context, rec GameActionRecord) error {
	if Rdb == nil {
		return errNotConnected
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	key := actionsKey(rec.GameID)
	_, err = Rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, data)
		p.Expire(ctx, key, GameTTL)
		return nil
	})
	return err
}

// GameActions returns a game's action log in order.
func GameActions(ctx context.Context, gameID uuid.UUID) ([]GameActionRecord, error) {
	if Rdb == nil {
		return nil, errNotConnected
	}
	raw, err := Rdb.LRange(ctx, actionsKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]GameActionRecord, 0, len(raw))
	for _, s := range raw {
		var rec GameActionRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decode action: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveSnapshot caches the engine state of a game.
func SaveSnapshot(ctx context.Context, gameID uuid.UUID, turnID int, snap engine.Snapshot) error {
	if Rdb == nil {
		return errNotConnected
	}
	m := snap.Match()
	rec := SnapshotRecord{
		GameID:   gameID,
		Hash:     m.Hash(),
		TurnID:   turnID,
		Snapshot: snap,
		SavedAt:  time.Now().UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return Rdb.Set(ctx, snapshotKey(gameID), data, GameTTL).Err()
}

// LoadSnapshot returns the cached snapshot of a game. The stored hash is
// checked against the decoded state.
func LoadSnapshot(ctx context.Context, gameID uuid.UUID) (SnapshotRecord, error) {
	if Rdb == nil {
		return SnapshotRecord{}, errNotConnected
	}
	data, err := Rdb.Get(ctx, snapshotKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SnapshotRecord{}, ErrNoSnapshot
	}
	if err != nil {
		return SnapshotRecord{}, err
	}
	var rec SnapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return SnapshotRecord{}, fmt.Errorf("decode snapshot: %w", err)
	}
	m := rec.Snapshot.Match()
	if m.Hash() != rec.Hash {
		return SnapshotRecord{}, fmt.Errorf("snapshot for game %s: hash mismatch", gameID)
	}
	return rec, nil
}

// DeleteGame removes everything cached for a game.
func DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	if Rdb == nil {
		return errNotConnected
	}
	return Rdb.Del(ctx, actionsKey(gameID), snapshotKey(gameID)).Err()
}
