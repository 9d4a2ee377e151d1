// Command palace plays a round of Palace in the terminal against bots.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	log "github.com/sirupsen/logrus"

	engine "github.com/palacecards/palace/engine"
	"github.com/palacecards/palace/engine/deckfile"
	"github.com/palacecards/palace/internal/logging"
	"github.com/palacecards/palace/simulation"
)

var (
	players  int
	botName  string
	deckPath string
	seed     uint64
	jokers   int
)

func init() {
	flag.IntVar(&players, "players", 2, "Players at the table, you included (2-4)")
	flag.StringVar(&botName, "bot", "greedy", "Bot policy (random, greedy, rollout)")
	flag.StringVar(&deckPath, "deck", "", "JSON deck file to deal instead of the standard deck")
	flag.Uint64Var(&seed, "seed", 0, "Deal seed (0 = use current time)")
	flag.IntVar(&jokers, "jokers", 0, "Jokers added to the standard deck (0-2)")
}

const human = 0

func main() {
	flag.Parse()
	logging.Quiet(os.Stderr)

	policyType, err := simulation.ParsePolicy(botName)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(2)
	}
	if players < 2 || players > engine.MaxPlayers {
		pterm.Error.Printfln("players must be 2-%d", engine.MaxPlayers)
		os.Exit(2)
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	rules := engine.DefaultHouseRules()
	rules.NumPlayers = uint8(players)
	rules.NumJokers = uint8(jokers)

	var m engine.Match
	if deckPath != "" {
		deck, err := deckfile.LoadFile(deckPath)
		if err != nil {
			pterm.Error.Println(err)
			os.Exit(1)
		}
		m, err = engine.NewMatchWithDeck(seed, rules, deck)
		if err != nil {
			pterm.Error.Println(err)
			os.Exit(1)
		}
	} else {
		m = engine.NewMatch(seed, rules)
	}
	if err := m.Deal(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	t := &table{
		m:      &m,
		bot:    simulation.NewPolicy(policyType),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		in:     bufio.NewScanner(os.Stdin),
		out:    os.Stdout,
		seed:   seed,
		policy: policyType,
	}
	if err := t.play(); err != nil {
		log.Fatal(err)
	}
}

type table struct {
	m      *engine.Match
	bot    simulation.Policy
	rng    *rand.Rand
	in     *bufio.Scanner
	out    io.Writer
	seed   uint64
	policy simulation.PolicyType
}

// play runs the round until it ends or the player quits.
func (t *table) play() error {
	pterm.DefaultHeader.Printfln("Palace: you vs %d %s bot(s), seed %d", players-1, t.policy, t.seed)
	for !t.m.IsTerminal() {
		p := t.m.ActingPlayer()
		if p != human {
			action := t.bot.Choose(t.m, t.rng)
			if err := t.m.ApplyAction(action); err != nil {
				return fmt.Errorf("bot %d: %w", p, err)
			}
			t.describe()
			continue
		}

		t.show()
		action, quit := t.prompt()
		if quit {
			pterm.Info.Println("Bye.")
			return nil
		}
		if err := t.m.ApplyAction(action); err != nil {
			pterm.Warning.Println(err)
			continue
		}
		t.describe()
	}

	if t.m.Winner == human {
		pterm.Success.Println("You won!")
	} else {
		pterm.Info.Printfln("Player %d won after %d turns.", t.m.Winner, t.m.TurnNumber)
	}
	return nil
}

// show prints the table from the human seat.
func (t *table) show() {
	m := t.m
	hand := &m.Players[human]

	pterm.DefaultSection.Println("Your turn")
	top := "empty"
	if c, ok := m.Pile.Top(); ok {
		top = cardString(c)
	}
	capNote := ""
	if m.RankCapActive() {
		capNote = pterm.Yellow(fmt.Sprintf(" (capped at %s)", m.Rules.RankCap))
	}
	fmt.Fprintf(t.out, "Pile: %s, %d card(s)%s  Stock: %d  Burned: %d\n", top, m.Pile.Len, capNote, m.StockLen, m.Burned)
	for p := uint8(0); p < m.NumActivePlayers(); p++ {
		if p == human {
			continue
		}
		h := &m.Players[p]
		fmt.Fprintf(t.out, "Player %d: %d in hand, face up %s, %d face down\n",
			p, h.Len(engine.TierInHand), cardsString(h.Tier(engine.TierFaceUp)), h.Len(engine.TierFaceDown))
	}
	fmt.Fprintf(t.out, "Face up:   %s\n", cardsString(hand.Tier(engine.TierFaceUp)))
	fmt.Fprintf(t.out, "Face down: %d\n", hand.Len(engine.TierFaceDown))

	tier, cards := m.PlayableTier()
	if tier == engine.TierFaceDown {
		fmt.Fprintf(t.out, "Playing blind: choose 0-%d.\n", len(cards)-1)
		return
	}
	mask := m.PlayableMask()
	parts := make([]string, len(cards))
	for i, c := range cards {
		s := fmt.Sprintf("[%d] %s", i, cardString(c))
		if mask&(1<<uint(i)) == 0 {
			s = pterm.Gray(s)
		}
		parts[i] = s
	}
	fmt.Fprintf(t.out, "Playing from %s: %s\n", tier, strings.Join(parts, "  "))
}

// prompt reads until the player enters a usable action.
func (t *table) prompt() (uint16, bool) {
	_, cards := t.m.PlayableTier()
	for {
		fmt.Fprint(t.out, "Card index, p to pick up, q to quit: ")
		if !t.in.Scan() {
			return 0, true
		}
		switch s := strings.ToLower(strings.TrimSpace(t.in.Text())); s {
		case "q", "quit":
			return 0, true
		case "p", "pickup":
			if t.m.Pile.Len == 0 {
				pterm.Warning.Println("The pile is empty.")
				continue
			}
			return engine.ActionPickUp, false
		default:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(cards) {
				pterm.Warning.Printfln("Enter a number from 0 to %d.", len(cards)-1)
				continue
			}
			return uint16(i), false
		}
	}
}

// describe narrates the last action.
func (t *table) describe() {
	la := t.m.LastAction
	who := "You"
	if la.ActingPlayer != human {
		who = fmt.Sprintf("Player %d", la.ActingPlayer)
	}
	if la.Card == engine.EmptyCard {
		fmt.Fprintf(t.out, "%s picked up %d card(s).\n", who, la.PickedUp)
		return
	}
	how := "played"
	if la.Blind {
		how = "turned over"
	}
	line := fmt.Sprintf("%s %s %s", who, how, cardString(la.Card))
	switch {
	case !la.Legal:
		line += fmt.Sprintf(", rejected, picked up %d", la.PickedUp)
	case la.Burned > 0:
		line += fmt.Sprintf(", burned %d", la.Burned)
	case la.Effect != engine.EffectNone:
		line += fmt.Sprintf(" (%s)", la.Effect)
	}
	fmt.Fprintln(t.out, line+".")
}

func cardString(c engine.Card) string {
	s := c.String()
	switch c.Suit() {
	case engine.SuitHearts, engine.SuitDiamonds, engine.SuitRedJoker:
		return pterm.LightRed(s)
	default:
		return pterm.Black(s)
	}
}

func cardsString(cards []engine.Card) string {
	if len(cards) == 0 {
		return "-"
	}
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = cardString(c)
	}
	return strings.Join(parts, ", ")
}
