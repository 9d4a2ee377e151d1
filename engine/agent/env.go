package agent

import (
	"errors"
	"fmt"

	engine "github.com/palacecards/palace/engine"
)

// RewardConfig sets the scalar rewards returned by Env.Step.
type RewardConfig struct {
	Play    float32 `json:"play"`    // card accepted onto the pile
	Pickup  float32 `json:"pickup"`  // forced or voluntary pickup
	Win     float32 `json:"win"`     // acting player shed their last card
	Loss    float32 `json:"loss"`    // delivered to every other seat when the round ends
	Invalid float32 `json:"invalid"` // out-of-range action index

	// EndOnInvalid ends the episode on an out-of-range action.
	EndOnInvalid bool `json:"end_on_invalid"`
}

// DefaultRewards returns the reward schedule used for training by default.
func DefaultRewards() RewardConfig {
	return RewardConfig{
		Play:    1,
		Pickup:  -5,
		Win:     10,
		Loss:    -10,
		Invalid: -10,
	}
}

// Observation is what an agent sees before choosing an action.
type Observation struct {
	Snapshot engine.Snapshot
	Player   uint8 // acting player the features are relative to
	Features [InputDim]float32
	Mask     [NumActions]bool // in-range actions
	Accepted [NumActions]bool // plays the pile would accept (all blind indices)
}

// Transition is one recorded step of one seat: the observation it acted on,
// its action and reward, and the observation at its next decision (or at the
// end of the round).
type Transition struct {
	Episode  uint64            `json:"episode"`
	Player   uint8             `json:"player"`
	State    [InputDim]float32 `json:"state"`
	Mask     [NumActions]bool  `json:"mask"`
	Action   uint16            `json:"action"`
	Reward   float32           `json:"reward"`
	Next     [InputDim]float32 `json:"next"`
	NextMask [NumActions]bool  `json:"next_mask"`
	Done     bool              `json:"done"`
}

// Recorder receives completed transitions, e.g. to fill a replay buffer.
type Recorder interface {
	// OnTransition is called once per completed transition.
	OnTransition(t Transition)

	// OnEpisodeEnd is called when a round ends, with each seat's final reward.
	OnEpisodeEnd(final engine.Snapshot, rewards [engine.MaxPlayers]float32)
}

// ErrEpisodeDone is returned by Step after the episode has ended.
var ErrEpisodeDone = errors.New("episode is done; call Reset")

// Env wraps a Match in a reset/step contract for agents. It is not safe for
// concurrent use; run one Env per goroutine.
type Env struct {
	Rules    engine.HouseRules
	Rewards  RewardConfig
	Deck     []engine.Card // nil deals the standard deck for Rules.NumJokers
	Recorder Recorder      // optional

	seed    uint64
	episode uint64
	match   engine.Match
	done    bool

	pending    [engine.MaxPlayers]Transition
	hasPending [engine.MaxPlayers]bool
}

// NewEnv returns an Env whose episodes draw their seeds from seed.
func NewEnv(seed uint64, rules engine.HouseRules, rewards RewardConfig) *Env {
	if seed == 0 {
		seed = 1
	}
	return &Env{Rules: rules, Rewards: rewards, seed: seed, done: true}
}

// nextSeed advances the env's splitmix64 seed stream.
func (e *Env) nextSeed() uint64 {
	e.seed += 0x9e3779b97f4a7c15
	z := e.seed
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Reset deals a new round and returns the first observation.
func (e *Env) Reset() (Observation, error) {
	return e.ResetSeed(e.nextSeed())
}

// ResetSeed deals a new round from an explicit seed. If the deal fails the
// previous episode is left done and the live match is unchanged.
func (e *Env) ResetSeed(seed uint64) (Observation, error) {
	e.done = true
	e.hasPending = [engine.MaxPlayers]bool{}

	var m engine.Match
	if e.Deck != nil {
		var err error
		m, err = engine.NewMatchWithDeck(seed, e.Rules, e.Deck)
		if err != nil {
			return Observation{}, err
		}
	} else {
		m = engine.NewMatch(seed, e.Rules)
	}
	if err := m.Deal(); err != nil {
		return Observation{}, fmt.Errorf("reset: %w", err)
	}
	e.match = m
	e.episode++
	e.done = false
	return e.observe(), nil
}

// Match returns the live match. Callers must not mutate it.
func (e *Env) Match() *engine.Match { return &e.match }

// Done reports whether the current episode has ended.
func (e *Env) Done() bool { return e.done }

// Observe returns the current observation without acting.
func (e *Env) Observe() Observation { return e.observe() }

func (e *Env) observe() Observation {
	obs := Observation{
		Snapshot: e.match.Save(),
		Player:   e.match.ActingPlayer(),
	}
	Encode(&e.match, &obs.Features)
	ActionMask(e.match.LegalActions(), &obs.Mask)
	ActionMask(e.match.PlayableMask(), &obs.Accepted)
	return obs
}

// Step applies action for the acting player and returns the next
// observation, the acting player's reward and whether the episode ended.
//
// An out-of-range action (or a pickup on an empty pile) leaves the match
// unchanged and returns Rewards.Invalid with the engine error; the episode
// ends only when Rewards.EndOnInvalid is set.
func (e *Env) Step(action uint16) (Observation, float32, bool, error) {
	if e.done {
		return e.observe(), 0, true, ErrEpisodeDone
	}
	player := e.match.ActingPlayer()
	before := e.observe()

	if err := e.match.ApplyAction(action); err != nil {
		if !errors.Is(err, engine.ErrInvalidAction) && !errors.Is(err, engine.ErrEmptyPileAbsorb) {
			return before, 0, e.done, err
		}
		reward := e.Rewards.Invalid
		if e.Rewards.EndOnInvalid {
			e.done = true
			e.complete(player, before, action, reward)
			e.flush()
			if e.Recorder != nil {
				var rewards [engine.MaxPlayers]float32
				rewards[player] = reward
				e.Recorder.OnEpisodeEnd(e.match.Save(), rewards)
			}
		} else {
			e.emit(Transition{
				Episode:  e.episode,
				Player:   player,
				State:    before.Features,
				Mask:     before.Mask,
				Action:   action,
				Reward:   reward,
				Next:     before.Features,
				NextMask: before.Mask,
			})
		}
		return before, reward, e.done, err
	}

	reward := e.stepReward(player)
	e.complete(player, before, action, reward)

	if e.match.IsTerminal() {
		e.done = true
		final := e.TerminalRewards()
		for p := uint8(0); p < e.match.NumActivePlayers(); p++ {
			if p != player && e.hasPending[p] {
				e.pending[p].Reward += final[p]
			}
		}
		e.flush()
		if e.Recorder != nil {
			e.Recorder.OnEpisodeEnd(e.match.Save(), final)
		}
	}
	return e.observe(), reward, e.done, nil
}

// stepReward scores the transition just applied for player.
func (e *Env) stepReward(player uint8) float32 {
	la := e.match.LastAction
	switch {
	case e.match.IsTerminal() && e.match.Winner == int8(player):
		return e.Rewards.Win
	case la.PickedUp > 0:
		return e.Rewards.Pickup
	default:
		return e.Rewards.Play
	}
}

// TerminalRewards returns each seat's end-of-round reward: Win for the
// winner, Loss for every other active seat. All zeros before the end.
func (e *Env) TerminalRewards() [engine.MaxPlayers]float32 {
	var r [engine.MaxPlayers]float32
	if !e.match.IsTerminal() {
		return r
	}
	for p := uint8(0); p < e.match.NumActivePlayers(); p++ {
		if int8(p) == e.match.Winner {
			r[p] = e.Rewards.Win
		} else {
			r[p] = e.Rewards.Loss
		}
	}
	return r
}

// complete records player's new transition. The seat's previous transition,
// still waiting for its next state, is closed with the observation it acted
// on now.
func (e *Env) complete(player uint8, before Observation, action uint16, reward float32) {
	if e.hasPending[player] {
		prev := &e.pending[player]
		prev.Next = before.Features
		prev.NextMask = before.Mask
		e.emit(*prev)
	}
	e.pending[player] = Transition{
		Episode: e.episode,
		Player:  player,
		State:   before.Features,
		Mask:    before.Mask,
		Action:  action,
		Reward:  reward,
	}
	e.hasPending[player] = true
}

// flush closes every pending transition as done, with the seat's view of the
// final state.
func (e *Env) flush() {
	for p := uint8(0); p < e.match.NumActivePlayers(); p++ {
		if !e.hasPending[p] {
			continue
		}
		t := &e.pending[p]
		EncodeFor(&e.match, p, &t.Next)
		t.NextMask = [NumActions]bool{}
		t.Done = true
		e.emit(*t)
		e.hasPending[p] = false
	}
}

func (e *Env) emit(t Transition) {
	if e.Recorder != nil {
		e.Recorder.OnTransition(t)
	}
}
