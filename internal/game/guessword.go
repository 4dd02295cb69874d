package game

import (
	"math/rand"
	"strings"
	"time"

	"github.com/ltvmoon/gamesync/internal/protocol"
	"github.com/ltvmoon/gamesync/internal/state"
	"github.com/ltvmoon/gamesync/pkg/types"
)

// Guessword is the validator game for the sync core: a turn-based word
// guessing game with shared lives, per-player scores, a per-turn timer and
// an optional bot seat. Phases: waiting -> playing -> ended; only an
// explicit reset returns to waiting.
//
// Action types:
//   start    — host starts a round; Data["word"] optional
//   guess    — Data["letter"] single a-z; must be the actor's turn
//   timeout  — scheduled per turn; Token must match state turnToken
//   bot_move — scheduled when the turn lands on a bot; Token checked
//   add_bot  — seat a bot while waiting
//   reset    — back to waiting from any phase
type Guessword struct {
	cfg types.RoomConfig
	rng *rand.Rand
}

const (
	PhaseWaiting = "waiting"
	PhasePlaying = "playing"
	PhaseEnded   = "ended"
)

const (
	ActStart   = "start"
	ActGuess   = "guess"
	ActTimeout = "timeout"
	ActBotMove = "bot_move"
	ActAddBot  = "add_bot"
	ActReset   = "reset"
)

const botID = "bot"

var defaultWords = []string{
	"gopher", "socket", "packet", "buffer", "cursor",
	"vertex", "kernel", "module", "cipher", "tensor",
}

// letters in rough frequency order, for the bot's next pick
const botOrder = "etaoinshrdlucmfwypvbgkjqxz"

func NewGuessword(cfg types.RoomConfig) *Guessword {
	if cfg.Lives <= 0 {
		cfg.Lives = 6
	}
	if cfg.RoundTimeout <= 0 {
		cfg.RoundTimeout = 60 * time.Second
	}
	if cfg.BotDelay <= 0 {
		cfg.BotDelay = 400 * time.Millisecond
	}
	return &Guessword{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *Guessword) Name() string { return "guessword" }

func (g *Guessword) InitialState() map[string]any {
	return map[string]any{
		"phase":     PhaseWaiting,
		"round":     0,
		"word":      "",
		"revealed":  []any{},
		"guessed":   map[string]any{},
		"lives":     g.cfg.Lives,
		"turn":      0,
		"turnToken": "",
		"players":   []any{},
		"scores":    map[string]any{},
	}
}

func (g *Guessword) Apply(env Env, a protocol.Action) Outcome {
	switch a.Type {
	case ActStart:
		return g.start(env, a)
	case ActGuess:
		return g.guess(env, a, string(a.Player))
	case ActBotMove:
		return g.botMove(env, a)
	case ActTimeout:
		g.timeout(env, a)
		return Outcome{}
	case ActAddBot:
		g.addBot(env)
		return Outcome{}
	case ActReset:
		return g.reset(env)
	}
	return Outcome{}
}

func (g *Guessword) start(env Env, a protocol.Action) Outcome {
	root := env.Root()
	if state.String(root.Get("phase")) != PhaseWaiting {
		return Outcome{}
	}
	if root.Child("players").Len() == 0 {
		return Outcome{}
	}

	word := ""
	if a.Data != nil {
		word = strings.ToLower(strings.TrimSpace(state.String(a.Data["word"])))
	}
	if word == "" {
		word = defaultWords[g.rng.Intn(len(defaultWords))]
	}

	revealed := make([]any, len(word))
	for i := range revealed {
		revealed[i] = "_"
	}

	root.Set("phase", PhasePlaying)
	root.Set("round", int(state.Number(root.Get("round")))+1)
	root.Set("word", word)
	root.Set("revealed", revealed)
	root.Set("guessed", map[string]any{})
	root.Set("lives", g.cfg.Lives)
	root.Set("scores", map[string]any{})
	root.Set("turn", 0)
	g.nextTurn(env, 0)
	return Outcome{}
}

func (g *Guessword) guess(env Env, a protocol.Action, actor string) Outcome {
	root := env.Root()
	if state.String(root.Get("phase")) != PhasePlaying {
		return Outcome{}
	}
	cur, curID := g.currentSeat(root)
	if cur < 0 || curID != actor {
		return Outcome{}
	}
	letter := ""
	if a.Data != nil {
		letter = strings.ToLower(strings.TrimSpace(state.String(a.Data["letter"])))
	}
	if len(letter) != 1 || letter < "a" || letter > "z" {
		return Outcome{}
	}
	guessed := root.Child("guessed")
	if state.Bool(guessed.Get(letter)) {
		return Outcome{}
	}
	guessed.Set(letter, true)

	word := state.String(root.Get("word"))
	hits := 0
	revealed := root.Child("revealed")
	for i := 0; i < len(word); i++ {
		if string(word[i]) == letter {
			revealed.SetIndex(i, letter)
			hits++
		}
	}

	if hits > 0 {
		scores := root.Child("scores")
		scores.Set(actor, int(state.Number(scores.Get(actor)))+hits)
	} else {
		lives := int(state.Number(root.Get("lives"))) - 1
		root.Set("lives", lives)
		if lives <= 0 {
			return g.finish(env, false)
		}
	}

	if g.solved(root, word) {
		return g.finish(env, true)
	}

	g.nextTurn(env, (cur+1)%root.Child("players").Len())
	return Outcome{}
}

func (g *Guessword) botMove(env Env, a protocol.Action) Outcome {
	root := env.Root()
	if state.String(root.Get("phase")) != PhasePlaying {
		return Outcome{}
	}
	if a.Token == "" || a.Token != state.String(root.Get("turnToken")) {
		return Outcome{}
	}
	guessed := root.Child("guessed")
	for _, r := range botOrder {
		letter := string(r)
		if !state.Bool(guessed.Get(letter)) {
			ba := protocol.Action{
				ID:     protocol.NewActionID(),
				Type:   ActGuess,
				Player: protocol.SocketID(botID),
				Data:   map[string]any{"letter": letter},
			}
			return g.guess(env, ba, botID)
		}
	}
	return Outcome{}
}

// timeout burns a life and advances the turn. The token check makes a
// stale timer a no-op: any accepted guess or reset rotated turnToken since.
func (g *Guessword) timeout(env Env, a protocol.Action) {
	root := env.Root()
	if state.String(root.Get("phase")) != PhasePlaying {
		return
	}
	if a.Token == "" || a.Token != state.String(root.Get("turnToken")) {
		return
	}
	lives := int(state.Number(root.Get("lives"))) - 1
	root.Set("lives", lives)
	if lives <= 0 {
		g.finish(env, false)
		return
	}
	// the roster may have emptied while the timer was pending
	n := root.Child("players").Len()
	if n == 0 {
		return
	}
	cur, _ := g.currentSeat(root)
	g.nextTurn(env, (cur+1)%n)
}

func (g *Guessword) addBot(env Env) {
	root := env.Root()
	if state.String(root.Get("phase")) != PhaseWaiting {
		return
	}
	players := root.Child("players")
	for i := 0; i < players.Len(); i++ {
		if seatID(players.GetIndex(i)) == botID {
			return
		}
	}
	players.Append(map[string]any{"id": botID, "username": "bot", "bot": true})
}

func (g *Guessword) reset(env Env) Outcome {
	root := env.Root()
	root.Set("phase", PhaseWaiting)
	root.Set("word", "")
	root.Set("revealed", []any{})
	root.Set("guessed", map[string]any{})
	root.Set("lives", g.cfg.Lives)
	root.Set("turn", 0)
	root.Set("turnToken", "")
	root.Set("scores", map[string]any{})
	root.Delete("winner")
	root.Delete("isDraw")
	return Outcome{Reset: true}
}

// OnRosterChanged reseats human players to match the roster, preserving
// bot seats and per-player scores for anyone still present.
func (g *Guessword) OnRosterChanged(env Env, roster []protocol.Player) {
	root := env.Root()
	players := root.Child("players")

	var seats []any
	for i := 0; i < players.Len(); i++ {
		if v, ok := players.GetIndex(i).(map[string]any); ok && state.Bool(v["bot"]) {
			seats = append(seats, v)
		}
	}
	for _, p := range roster {
		seats = append(seats, map[string]any{"id": string(p.ID), "username": p.Username, "bot": false})
	}

	n := players.Len()
	for i, s := range seats {
		players.SetIndex(i, s)
	}
	if len(seats) < n {
		players.Truncate(len(seats))
	}

	if len(seats) == 0 {
		root.Set("turn", 0)
		return
	}
	if int(state.Number(root.Get("turn"))) >= len(seats) {
		g.nextTurn(env, 0)
	}
}

// nextTurn seats the turn, rotates the staleness token, and schedules the
// turn timer plus the bot move when the seat is a bot.
func (g *Guessword) nextTurn(env Env, seat int) {
	root := env.Root()
	token := protocol.NewActionID()
	root.Set("turn", seat)
	root.Set("turnToken", token)

	env.Schedule(g.cfg.RoundTimeout, protocol.Action{
		ID: protocol.NewActionID(), Type: ActTimeout, Token: token,
	})
	if _, id := g.currentSeat(root); id == botID {
		env.Schedule(g.cfg.BotDelay, protocol.Action{
			ID: protocol.NewActionID(), Type: ActBotMove,
			Player: protocol.SocketID(botID), Token: token,
		})
	}
}

func (g *Guessword) finish(env Env, solved bool) Outcome {
	r := env.Root()
	r.Set("phase", PhaseEnded)
	r.Set("turnToken", "")

	if !solved {
		// out of lives
		r.Set("isDraw", true)
		return Outcome{End: &protocol.Result{IsDraw: true}}
	}

	scores, _ := r.Child("scores").Value().(map[string]any)
	winner, best, tied := "", -1, false
	for id, v := range scores {
		n := int(state.Number(v))
		switch {
		case n > best:
			winner, best, tied = id, n, false
		case n == best:
			tied = true
		}
	}
	if tied || winner == "" {
		r.Set("isDraw", true)
		return Outcome{End: &protocol.Result{IsDraw: true}}
	}
	r.Set("winner", winner)
	return Outcome{End: &protocol.Result{Winner: winner}}
}

func (g *Guessword) solved(root *state.Handle, word string) bool {
	revealed := root.Child("revealed")
	if revealed.Len() != len(word) {
		return false
	}
	for i := 0; i < len(word); i++ {
		if state.String(revealed.GetIndex(i)) == "_" {
			return false
		}
	}
	return true
}

func (g *Guessword) currentSeat(root *state.Handle) (int, string) {
	players := root.Child("players")
	n := players.Len()
	if n == 0 {
		return -1, ""
	}
	turn := int(state.Number(root.Get("turn")))
	if turn < 0 || turn >= n {
		return -1, ""
	}
	return turn, seatID(players.GetIndex(turn))
}

func seatID(v any) string {
	if m, ok := v.(map[string]any); ok {
		return state.String(m["id"])
	}
	return ""
}
