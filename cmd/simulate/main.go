// Command simulate plays batches of Palace rounds between built-in policies
// and prints per-seat results. With -transitions it also writes every
// agent transition as JSON lines for offline training.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	log "github.com/sirupsen/logrus"

	engine "github.com/palacecards/palace/engine"
	"github.com/palacecards/palace/engine/agent"
	"github.com/palacecards/palace/engine/deckfile"
	"github.com/palacecards/palace/internal/logging"
	"github.com/palacecards/palace/simulation"
)

// CLI flags
var (
	games           int
	workers         int
	seed            uint64
	policies        string
	players         int
	jokers          int
	maxTurns        int
	deckPath        string
	transitionsPath string
	logLevel        string
)

func init() {
	flag.IntVar(&games, "games", 1000, "Number of rounds to play")
	flag.IntVar(&workers, "workers", 0, "Number of worker goroutines (0 = auto-detect CPU count)")
	flag.Uint64Var(&seed, "seed", 0, "Batch seed (0 = use current time)")
	flag.StringVar(&policies, "policies", "greedy,random", "Comma-separated policy per seat (random, greedy, rollout); cycled over seats")
	flag.IntVar(&players, "players", 2, "Players per round (2-4)")
	flag.IntVar(&jokers, "jokers", 0, "Jokers added to the standard deck (0-2)")
	flag.IntVar(&maxTurns, "max-turns", simulation.DefaultMaxTurns, "Actions before a round counts as unfinished")
	flag.StringVar(&deckPath, "deck", "", "JSON deck file to deal instead of the standard deck")
	flag.StringVar(&transitionsPath, "transitions", "", "Write agent transitions as JSON lines to this file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// jsonlRecorder writes transitions as JSON lines. Batches call it from
// several workers at once.
type jsonlRecorder struct {
	mu       sync.Mutex
	w        *bufio.Writer
	enc      *json.Encoder
	err      error
	written  int
	episodes int
}

func newJSONLRecorder(f *os.File) *jsonlRecorder {
	w := bufio.NewWriter(f)
	return &jsonlRecorder{w: w, enc: json.NewEncoder(w)}
}

func (r *jsonlRecorder) OnTransition(t agent.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if r.err = r.enc.Encode(t); r.err == nil {
		r.written++
	}
}

func (r *jsonlRecorder) OnEpisodeEnd(engine.Snapshot, [engine.MaxPlayers]float32) {
	r.mu.Lock()
	r.episodes++
	r.mu.Unlock()
}

func (r *jsonlRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return r.w.Flush()
}

func parsePolicies(s string) ([]simulation.PolicyType, error) {
	var out []simulation.PolicyType
	for _, name := range strings.Split(s, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, err := simulation.ParsePolicy(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no policies given")
	}
	return out, nil
}

func main() {
	flag.Parse()
	if err := logging.Setup(logLevel, "text"); err != nil {
		log.Fatal(err)
	}

	if players < 2 || players > engine.MaxPlayers {
		log.Fatalf("players must be 2-%d, got %d", engine.MaxPlayers, players)
	}
	if jokers < 0 || jokers > 2 {
		log.Fatalf("jokers must be 0-2, got %d", jokers)
	}
	seatPolicies, err := parsePolicies(policies)
	if err != nil {
		log.Fatal(err)
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	rules := engine.DefaultHouseRules()
	rules.NumPlayers = uint8(players)
	rules.NumJokers = uint8(jokers)

	cfg := simulation.Config{
		Games:    games,
		Workers:  workers,
		Seed:     seed,
		Rules:    rules,
		Policies: seatPolicies,
		MaxTurns: maxTurns,
	}
	if deckPath != "" {
		cfg.Deck, err = deckfile.LoadFile(deckPath)
		if err != nil {
			log.Fatal(err)
		}
	}

	var rec *jsonlRecorder
	if transitionsPath != "" {
		f, err := os.Create(transitionsPath)
		if err != nil {
			log.Fatalf("Cannot create transitions file: %v", err)
		}
		defer f.Close()
		rec = newJSONLRecorder(f)
		cfg.Recorder = rec
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"games":    games,
		"players":  players,
		"policies": policies,
		"seed":     seed,
	}).Info("Starting batch.")
	start := time.Now()
	stats, err := simulation.RunBatch(ctx, cfg)
	if err != nil {
		log.Fatalf("Batch failed: %v", err)
	}
	elapsed := time.Since(start)

	if rec != nil {
		if err := rec.Flush(); err != nil {
			log.Fatalf("Writing transitions failed: %v", err)
		}
		log.Infof("Wrote %d transitions from %d rounds to %s.", rec.written, rec.episodes, transitionsPath)
	}

	printSummary(stats, seatPolicies, elapsed)
}

func printSummary(stats simulation.Stats, seatPolicies []simulation.PolicyType, elapsed time.Duration) {
	pterm.DefaultSection.Println("Results")
	data := pterm.TableData{{"Seat", "Policy", "Wins", "Win rate", "Mean reward"}}
	for seat := 0; seat < players; seat++ {
		data = append(data, []string{
			fmt.Sprint(seat),
			seatPolicies[seat%len(seatPolicies)].String(),
			fmt.Sprint(stats.Wins[seat]),
			fmt.Sprintf("%.1f%%", 100*stats.WinRate(seat)),
			fmt.Sprintf("%.2f", stats.MeanReward[seat]),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		log.WithError(err).Warn("Cannot render table.")
	}

	pterm.DefaultSection.Println("Batch")
	batch := pterm.TableData{
		{"Rounds", fmt.Sprint(stats.TotalGames)},
		{"Unfinished", fmt.Sprint(stats.Unfinished)},
		{"Errors", fmt.Sprint(stats.Errors)},
		{"Avg turns", fmt.Sprintf("%.1f", stats.AvgTurns)},
		{"Median turns", fmt.Sprint(stats.MedianTurns)},
		{"Pickups (voluntary/forced)", fmt.Sprintf("%d/%d", stats.TotalPickups, stats.TotalForcedPickups)},
		{"Burns", fmt.Sprint(stats.TotalBurns)},
		{"Blind plays", fmt.Sprint(stats.TotalBlindPlays)},
		{"Avg round time", time.Duration(stats.AvgDurationNs).String()},
		{"Wall time", elapsed.Round(time.Millisecond).String()},
	}
	if err := pterm.DefaultTable.WithData(batch).Render(); err != nil {
		log.WithError(err).Warn("Cannot render table.")
	}
	if stats.Errors > 0 {
		pterm.Warning.Printfln("%d rounds failed to deal or step.", stats.Errors)
	}
}
