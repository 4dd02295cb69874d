// Package game defines the contract every concrete game implements on top
// of the sync core, plus the clock abstraction used for pacing timers.
package game

import (
	"time"

	"github.com/ltvmoon/gamesync/internal/protocol"
	"github.com/ltvmoon/gamesync/internal/state"
)

// Env is what the coordinator hands a game while it runs. All state
// mutation goes through Root; Schedule defers an action back through the
// normal pipeline so timer-driven mutations are captured like any other.
type Env interface {
	Root() *state.Handle
	Roster() []protocol.Player
	// Replace assigns an entirely new root value. It forces the next
	// broadcast to carry full state instead of a patch.
	Replace(root map[string]any)
	// Schedule submits a after d, on the host only. The action should carry
	// a staleness token; the handler re-validates it at fire time.
	Schedule(d time.Duration, a protocol.Action)
}

// Outcome reports what an action did, for the coordinator's end-event
// latch. A nil End means the game is still running.
type Outcome struct {
	End   *protocol.Result
	Reset bool
}

// Game is a concrete game's state machine. Apply runs on the host only and
// mutates state exclusively through the tracked root handle; handlers
// validate phase, turn and bounds at the top and silently no-op on stale
// input. Turn and phase transitions must be pure functions of (state,
// action).
type Game interface {
	Name() string
	InitialState() map[string]any
	Apply(env Env, a protocol.Action) Outcome
	OnRosterChanged(env Env, players []protocol.Player)
}
