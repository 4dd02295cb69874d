package protocol

type EventType string

const (
	// Relay connection and membership events.
	EvWelcome EventType = "welcome"
	EvJoin    EventType = "join"
	EvLeave   EventType = "leave"
	// Roster push from the relay after membership changes.
	EvRoster EventType = "roster"

	// Game-level events.
	EvAction      EventType = "action"
	EvState       EventType = "state"
	EvStatePatch  EventType = "state:patch"
	EvStateDirect EventType = "state:direct"
	EvRequestSync EventType = "request_sync"
	EvEnd         EventType = "end"
)

// Patch is the on-wire patch shape: flat dotted-path records in the order
// the host recorded them. Order carries meaning — one batch may write a
// leaf and later replace its ancestor, so receivers apply the records in
// sequence. Values must be plain JSON data.
type Patch []PatchEntry

// PatchEntry is one recorded leaf write. Value holds Deleted for removals.
type PatchEntry struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Deleted is the deletion sentinel carried inside a Patch, distinct from
// setting a key to null.
const Deleted = "__deleted__"

// NetMessage is the envelope for everything passing through the relay.
// The relay only ever looks at Room, From, Type and Target; the rest is
// opaque to it.
type NetMessage struct {
	Room    RoomID    `json:"room"`
	From    SocketID  `json:"from"`
	Type    EventType `json:"type"`
	Version uint64    `json:"version,omitempty"`

	Action  *Action        `json:"action,omitempty"`
	State   map[string]any `json:"state,omitempty"`
	Patch   Patch          `json:"patch,omitempty"`
	Target  SocketID       `json:"target,omitempty"`
	Players []Player       `json:"players,omitempty"`
	Result  *Result        `json:"result,omitempty"`
}

// Player is the denormalized roster entry pushed by the relay.
type Player struct {
	ID       SocketID `json:"id"`
	Username string   `json:"username"`
}

// Result is the advisory payload of an `end` event.
type Result struct {
	Winner string `json:"winner,omitempty"`
	IsDraw bool   `json:"isDraw,omitempty"`
}
