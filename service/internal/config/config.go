// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingSecret is returned when no JWT secret is configured.
var ErrMissingSecret = errors.New("PALACE_JWT_SECRET is not set")

// Config holds the server settings read from the environment.
type Config struct {
	Addr          string        // listen address, e.g. ":8080"
	JWTSecret     string        // HMAC key for player tokens
	TokenTTL      time.Duration // lifetime of issued tokens
	DatabaseURL   string        // empty disables match history
	RedisAddr     string        // empty disables the snapshot cache
	RedisPassword string
	TurnTimeout   time.Duration // 0 disables turn timers
	DeckFile      string        // optional JSON deck used for every new game
	LogLevel      string
	LogFormat     string
}

// Load reads a .env file from the working directory when present, then the
// process environment. Variables already set in the environment win over
// the .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:          getenv("PALACE_ADDR", ":8080"),
		JWTSecret:     os.Getenv("PALACE_JWT_SECRET"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DeckFile:      os.Getenv("PALACE_DECK_FILE"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "text"),
	}

	turn, err := atoiDef("PALACE_TURN_TIMEOUT_SEC", 30)
	if err != nil {
		return cfg, err
	}
	if turn < 0 {
		return cfg, fmt.Errorf("PALACE_TURN_TIMEOUT_SEC must be >= 0, got %d", turn)
	}
	cfg.TurnTimeout = time.Duration(turn) * time.Second

	ttl, err := atoiDef("PALACE_TOKEN_TTL_HOURS", 24)
	if err != nil {
		return cfg, err
	}
	cfg.TokenTTL = time.Duration(ttl) * time.Hour

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return cfg, ErrMissingSecret
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func atoiDef(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}
