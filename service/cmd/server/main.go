// Command server runs the Palace multiplayer service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	engine "github.com/palacecards/palace/engine"
	"github.com/palacecards/palace/engine/deckfile"
	"github.com/palacecards/palace/internal/logging"
	"github.com/palacecards/palace/service/internal/auth"
	"github.com/palacecards/palace/service/internal/cache"
	"github.com/palacecards/palace/service/internal/config"
	"github.com/palacecards/palace/service/internal/database"
	"github.com/palacecards/palace/service/internal/server"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatalf("logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var deck []engine.Card
	if cfg.DeckFile != "" {
		deck, err = deckfile.LoadFile(cfg.DeckFile)
		if err != nil {
			log.Fatalf("deck file: %v", err)
		}
		log.Infof("Loaded %d-card deck from %s.", len(deck), cfg.DeckFile)
	}

	if cfg.DatabaseURL != "" {
		if err := database.ConnectDB(ctx, cfg.DatabaseURL); err != nil {
			log.Fatalf("database: %v", err)
		}
		defer database.Close()
		log.Info("Connected to Postgres; match results will be stored.")
	} else {
		log.Warn("DATABASE_URL not set; match results will not be stored.")
	}

	if cfg.RedisAddr != "" {
		if err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer cache.Close()
		log.Info("Connected to Redis; action logs and snapshots enabled.")
	} else {
		log.Warn("REDIS_ADDR not set; action logs and snapshots disabled.")
	}

	srv := server.New(cfg, auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL), deck)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Graceful shutdown failed.")
		}
	}
}
