// Package logging configures the process-wide logrus logger shared by the
// command-line tools and the game server.
package logging

import (
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Setup applies a level name ("debug", "info", "warn", ...) and a format
// ("text" or "json") to the standard logger. An empty level keeps info; an
// unknown one is returned as an error and leaves the level unchanged.
func Setup(level, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if strings.TrimSpace(level) == "" {
		log.SetLevel(log.InfoLevel)
		return nil
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

// Quiet routes log output to w and raises the level to warn. The interactive
// CLI uses it so log lines do not interleave with the board.
func Quiet(w io.Writer) {
	log.SetOutput(w)
	log.SetLevel(log.WarnLevel)
}
