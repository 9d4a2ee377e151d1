// Package simulation plays batches of Palace rounds between built-in
// policies, on a bounded worker pool, and aggregates the results.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	engine "github.com/palacecards/palace/engine"
	"github.com/palacecards/palace/engine/agent"
)

// DefaultMaxTurns caps a single round; rounds that reach it are unfinished.
const DefaultMaxTurns = 2000

// Config describes a batch.
type Config struct {
	Games    int
	Workers  int                // <= 0 uses runtime.NumCPU()
	Seed     uint64             // batch seed; game seeds derive from it
	Rules    engine.HouseRules  // zero value uses engine.DefaultHouseRules()
	Policies []PolicyType       // per seat, cycled when shorter than the player count
	MaxTurns int                // <= 0 uses DefaultMaxTurns
	Deck     []engine.Card
	Rewards  agent.RewardConfig // zero value uses agent.DefaultRewards()

	// Recorder, when set, receives every transition. It is called from
	// several goroutines and must be safe for concurrent use.
	Recorder agent.Recorder
}

// GameMetrics holds per-round counters.
type GameMetrics struct {
	Actions       uint32
	Pickups       uint32 // voluntary
	ForcedPickups uint32 // a rejected play
	Burns         uint32
	BurnedCards   uint32
	BlindPlays    uint32
	CardsPickedUp uint32
	RewardsBySeat [engine.MaxPlayers]float32
}

// GameResult holds the outcome of a single round.
type GameResult struct {
	SimID      int
	Seed       uint64
	WinnerID   int8 // -1 when unfinished
	TurnCount  uint16
	DurationNs uint64
	Error      string
	Metrics    GameMetrics
}

// Stats summarizes a batch.
type Stats struct {
	TotalGames    uint32
	Wins          [engine.MaxPlayers]uint32
	Unfinished    uint32
	Errors        uint32
	AvgTurns      float32
	MedianTurns   uint16
	AvgDurationNs uint64

	TotalActions       uint64
	TotalPickups       uint64
	TotalForcedPickups uint64
	TotalBurns         uint64
	TotalBlindPlays    uint64
	MeanReward         [engine.MaxPlayers]float32
}

// WinRate returns seat's share of finished rounds.
func (s Stats) WinRate(seat int) float32 {
	finished := s.TotalGames - s.Unfinished - s.Errors
	if finished == 0 {
		return 0
	}
	return float32(s.Wins[seat]) / float32(finished)
}

// gameSeeds derives one seed per round from the batch seed, in round order,
// so results do not depend on scheduling.
func gameSeeds(seed uint64, n int) []uint64 {
	rng := rand.New(rand.NewPCG(seed, 0))
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}
	return seeds
}

// RunBatch plays cfg.Games rounds on at most cfg.Workers goroutines. It
// stops early, returning ctx.Err(), if ctx is cancelled.
func RunBatch(ctx context.Context, cfg Config) (Stats, error) {
	if cfg.Games <= 0 {
		return Stats{}, errors.New("games must be positive")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	seeds := gameSeeds(cfg.Seed, cfg.Games)
	results := make([]GameResult, cfg.Games)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range seeds {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = RunSingleGame(cfg, i, seeds[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	return aggregateResults(results), nil
}

// RunSingleGame plays one round from seed and reports its outcome.
func RunSingleGame(cfg Config, simID int, seed uint64) GameResult {
	start := time.Now()
	result := GameResult{SimID: simID, Seed: seed, WinnerID: -1}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	rewards := cfg.Rewards
	if rewards == (agent.RewardConfig{}) {
		rewards = agent.DefaultRewards()
	}
	rules := cfg.Rules
	if rules == (engine.HouseRules{}) {
		rules = engine.DefaultHouseRules()
	}
	env := agent.NewEnv(seed, rules, rewards)
	env.Deck = cfg.Deck
	env.Recorder = cfg.Recorder
	if _, err := env.ResetSeed(seed); err != nil {
		result.Error = err.Error()
		return result
	}

	m := env.Match()
	n := m.NumActivePlayers()
	policies := make([]Policy, n)
	for p := range policies {
		t := RandomAI
		if len(cfg.Policies) > 0 {
			t = cfg.Policies[p%len(cfg.Policies)]
		}
		policies[p] = NewPolicy(t)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	for step := 0; step < maxTurns && !env.Done(); step++ {
		player := m.ActingPlayer()
		action := policies[player].Choose(m, rng)
		_, reward, _, err := env.Step(action)
		if err != nil {
			result.Error = fmt.Sprintf("step %d: %v", step, err)
			break
		}
		result.Metrics.RewardsBySeat[player] += reward
		countAction(&result.Metrics, m.LastAction)
	}

	if m.IsTerminal() {
		result.WinnerID = m.Winner
		final := env.TerminalRewards()
		for p := uint8(0); p < n; p++ {
			if int8(p) != m.Winner {
				result.Metrics.RewardsBySeat[p] += final[p]
			}
		}
	}
	result.TurnCount = m.TurnNumber
	result.DurationNs = uint64(time.Since(start).Nanoseconds())
	return result
}

func countAction(gm *GameMetrics, la engine.LastActionInfo) {
	gm.Actions++
	if la.Blind {
		gm.BlindPlays++
	}
	if la.PickedUp > 0 {
		gm.CardsPickedUp += uint32(la.PickedUp)
		if la.Card == engine.EmptyCard {
			gm.Pickups++
		} else {
			gm.ForcedPickups++
		}
	}
	if la.Burned > 0 {
		gm.Burns++
		gm.BurnedCards += uint32(la.Burned)
	}
}

func aggregateResults(results []GameResult) Stats {
	stats := Stats{TotalGames: uint32(len(results))}

	turnCounts := make([]uint16, 0, len(results))
	var totalDuration uint64
	var rewardSum [engine.MaxPlayers]float64
	counted := 0

	for _, r := range results {
		if r.Error != "" {
			stats.Errors++
			continue
		}
		if r.WinnerID >= 0 {
			stats.Wins[r.WinnerID]++
		} else {
			stats.Unfinished++
		}
		turnCounts = append(turnCounts, r.TurnCount)
		totalDuration += r.DurationNs
		counted++

		stats.TotalActions += uint64(r.Metrics.Actions)
		stats.TotalPickups += uint64(r.Metrics.Pickups)
		stats.TotalForcedPickups += uint64(r.Metrics.ForcedPickups)
		stats.TotalBurns += uint64(r.Metrics.Burns)
		stats.TotalBlindPlays += uint64(r.Metrics.BlindPlays)
		for p, v := range r.Metrics.RewardsBySeat {
			rewardSum[p] += float64(v)
		}
	}

	if counted == 0 {
		return stats
	}
	var turnSum uint64
	for _, t := range turnCounts {
		turnSum += uint64(t)
	}
	stats.AvgTurns = float32(turnSum) / float32(counted)
	slices.Sort(turnCounts)
	stats.MedianTurns = turnCounts[len(turnCounts)/2]
	stats.AvgDurationNs = totalDuration / uint64(counted)
	for p := range rewardSum {
		stats.MeanReward[p] = float32(rewardSum[p] / float64(counted))
	}
	return stats
}
