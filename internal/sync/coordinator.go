// Package sync holds the per-room coordinator that keeps one game's state
// consistent between the host and its guests over the relay channel.
package sync

import (
	"log"
	"strings"
	stdsync "sync"
	"time"

	"github.com/ltvmoon/gamesync/internal/game"
	"github.com/ltvmoon/gamesync/internal/patch"
	"github.com/ltvmoon/gamesync/internal/protocol"
	"github.com/ltvmoon/gamesync/internal/state"
	"github.com/ltvmoon/gamesync/internal/store"
	"github.com/ltvmoon/gamesync/pkg/types"
)

// Coordinator is the per-room event loop. The host applies actions to its
// tracked state and broadcasts either a coalesced patch or a full state per
// loop turn; guests mirror whatever the host sends and fall back to a
// resync request when a patch version gap is detected.
//
// No network I/O happens here; messages move over in/out channels of
// NetMessage and routing is the room package's job.
type Coordinator struct {
	room protocol.RoomID
	self protocol.SocketID
	cfg  types.RoomConfig
	host bool
	g    game.Game

	in     <-chan protocol.NetMessage
	netOut chan<- protocol.NetMessage

	tracker      *state.Tracker
	seq          protocol.Sequence
	batch        *patch.ChangeSet
	lastSnapshot map[string]any

	rosterMu stdsync.Mutex
	roster   []protocol.Player

	st    store.Store
	clock game.Clock

	subsMu stdsync.Mutex
	subs   []state.ChangeFunc

	timersMu stdsync.Mutex
	stops    []func()

	ended       bool
	syncPending bool

	stopOnce stdsync.Once
	stopCh   chan struct{}
}

func New(
	room protocol.RoomID,
	self protocol.SocketID,
	cfg types.RoomConfig,
	host bool,
	g game.Game,
	in <-chan protocol.NetMessage,
	out chan<- protocol.NetMessage,
	st store.Store,
	clock game.Clock,
) *Coordinator {
	if st == nil {
		st = store.Nop{}
	}
	if clock == nil {
		clock = game.RealClock{}
	}
	c := &Coordinator{
		room: room, self: self, cfg: cfg, host: host, g: g,
		in: in, netOut: out,
		batch:  patch.NewChangeSet(),
		st:     st,
		clock:  clock,
		stopCh: make(chan struct{}),
	}
	c.tracker = state.NewTracker(g.InitialState(), c.onChange)
	c.tracker.OnReplace(c.onReplace)
	return c
}

func (c *Coordinator) RoomID() protocol.RoomID { return c.room }
func (c *Coordinator) IsHost() bool            { return c.host }
func (c *Coordinator) Version() uint64         { return c.seq.Current() }

// State returns a deep copy of the current state for display.
func (c *Coordinator) State() map[string]any {
	return c.tracker.Snapshot()
}

// Resume pre-populates the state from an advisory snapshot before the
// first network round trip. Never a sync source of truth: anything the
// channel delivers later wins.
func (c *Coordinator) Resume(snapshot map[string]any, version uint64) {
	c.tracker.Install(state.CloneMap(snapshot))
	c.seq.Adopt(version)
}

// Subscribe registers a local render listener. It receives every applied
// leaf write, and (nil, root) on a wholesale replacement. Fired on both
// roles; only the host's writes ever turn into broadcasts.
func (c *Coordinator) Subscribe(fn state.ChangeFunc) {
	c.subsMu.Lock()
	c.subs = append(c.subs, fn)
	c.subsMu.Unlock()
}

func (c *Coordinator) notify(path []string, v any) {
	c.subsMu.Lock()
	subs := make([]state.ChangeFunc, len(c.subs))
	copy(subs, c.subs)
	c.subsMu.Unlock()
	for _, fn := range subs {
		fn(path, v)
	}
}

// onChange is the tracker callback: every leaf write feeds the local
// listeners, and on the host also the pending batch.
func (c *Coordinator) onChange(path []string, v any) {
	c.notify(path, v)
	if c.host {
		c.batch.Record(path, v)
	}
}

func (c *Coordinator) onReplace(root map[string]any) {
	c.notify(nil, root)
	if c.host {
		c.batch.MarkReplaced()
	}
}

// Submit sends an action into the room. The relay echoes it to every
// member including the sender, so the host handles its own actions through
// the same receive path as everyone else's.
func (c *Coordinator) Submit(a protocol.Action) {
	if a.ID == "" {
		a.ID = protocol.NewActionID()
	}
	if a.Player == "" {
		a.Player = c.self
	}
	c.send(protocol.NetMessage{
		Room: c.room, From: c.self, Type: protocol.EvAction, Action: &a,
	})
}

// Run drives the event loop until Close or inbox closure. A guest issues
// its initial resync request from inside the loop, after the inbox has
// been registered, so the response cannot race listener attachment.
func (c *Coordinator) Run() {
	if !c.host {
		c.requestSync()
	}
	for {
		select {
		case <-c.stopCh:
			return
		case msg, ok := <-c.in:
			if !ok {
				return
			}
			c.dispatch(msg)
			c.drainQueued()
			c.flush()
		}
	}
}

// drainQueued handles whatever is already sitting in the inbox before
// flushing, so back-to-back messages coalesce into one broadcast. It never
// waits: the coalescing window covers queued work only, bounded so one
// flood cannot starve the flush.
func (c *Coordinator) drainQueued() {
	for i := 0; i < 64; i++ {
		select {
		case msg, ok := <-c.in:
			if !ok {
				return
			}
			c.dispatch(msg)
		default:
			return
		}
	}
}

func (c *Coordinator) dispatch(msg protocol.NetMessage) {
	switch msg.Type {
	case protocol.EvAction:
		if c.host {
			c.applyAction(msg.Action)
		}
	case protocol.EvRoster:
		c.onRoster(msg.Players)
	case protocol.EvRequestSync:
		if c.host {
			c.serveSync(msg.From)
		}
	case protocol.EvState:
		c.install(msg.State, msg.Version)
	case protocol.EvStateDirect:
		if msg.Target == "" || msg.Target == c.self {
			c.install(msg.State, msg.Version)
		}
	case protocol.EvStatePatch:
		c.applyPatch(msg)
	case protocol.EvEnd:
		// advisory; scoreboard-style collaborators subscribe to it, the
		// sync core itself has nothing to do
	}
}

// applyAction runs a host-side game handler. Handlers validate and no-op
// on stale input themselves; a panicking handler is contained here so no
// exception ever escapes the loop.
func (c *Coordinator) applyAction(a *protocol.Action) {
	if a == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("room %s: action %s panicked: %v", c.room, a.Type, r)
		}
	}()
	out := c.g.Apply(c, *a)
	if out.Reset {
		c.ended = false
		c.st.Clear(c.room)
	}
	if out.End != nil && !c.ended {
		c.ended = true
		c.send(protocol.NetMessage{
			Room: c.room, From: c.self, Type: protocol.EvEnd, Result: out.End,
		})
		c.st.Clear(c.room)
	}
}

func (c *Coordinator) onRoster(players []protocol.Player) {
	c.rosterMu.Lock()
	c.roster = players
	c.rosterMu.Unlock()
	if c.host {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("room %s: roster handler panicked: %v", c.room, r)
			}
		}()
		c.g.OnRosterChanged(c, players)
		return
	}
	// the pending request may have gone out before the host was seated;
	// a roster change is the cue to ask again
	if c.syncPending {
		c.syncPending = false
		c.requestSync()
	}
}

// flush turns the pending batch into at most one broadcast: a patch when
// everything was incremental, a full state when the root was replaced. A
// lone host skips the send but still mirrors the snapshot so a resumed
// session has something to show.
func (c *Coordinator) flush() {
	if !c.host || c.batch.Empty() {
		return
	}
	v := c.seq.Next()
	if len(c.Roster()) > 1 {
		if c.batch.Replaced() {
			c.send(protocol.NetMessage{
				Room: c.room, From: c.self, Type: protocol.EvState,
				State: c.State(), Version: v,
			})
		} else {
			c.send(protocol.NetMessage{
				Room: c.room, From: c.self, Type: protocol.EvStatePatch,
				Patch: c.batch.Patch(), Version: v,
			})
		}
	}
	c.lastSnapshot = c.State()
	c.st.Save(c.room, c.lastSnapshot, v)
	c.batch.Reset()
}

// install replaces the guest's whole state. Full state is self-certifying:
// it is adopted unconditionally, stamped version included, even when that
// version is behind the local one.
func (c *Coordinator) install(m map[string]any, version uint64) {
	if c.host || m == nil {
		return
	}
	root := state.CloneMap(m)
	c.tracker.Install(root)
	c.seq.Adopt(version)
	c.syncPending = false
	c.notify(nil, root)
}

// applyPatch runs the guest-side gap check, then applies the patch onto
// the live tree under the tracker lock so concurrent snapshot readers
// never observe a mid-write map. Listeners are fed afterwards, outside the
// lock, without re-entering the tracker's write path.
func (c *Coordinator) applyPatch(msg protocol.NetMessage) {
	if c.host {
		return
	}
	if c.seq.Gap(msg.Version) {
		log.Printf("room %s: patch version %d, local %d: requesting resync",
			c.room, msg.Version, c.seq.Current())
		c.requestSync()
		return
	}
	c.tracker.Mutate(func(root map[string]any) {
		patch.Apply(root, msg.Patch, nil)
	})
	for _, e := range msg.Patch {
		c.notify(strings.Split(e.Path, "."), e.Value)
	}
	c.seq.Adopt(msg.Version)
}

// requestSync asks the host for a fresh full state. At most one request is
// in flight; the next full-state install clears the latch.
func (c *Coordinator) requestSync() {
	if c.syncPending {
		return
	}
	c.syncPending = true
	c.send(protocol.NetMessage{
		Room: c.room, From: c.self, Type: protocol.EvRequestSync,
	})
}

// serveSync answers a resync request point-to-point so a late joiner's
// catch-up does not retransmit to already-synced peers. The stamped
// version is the current one: unicast catch-up is not a broadcast, so it
// does not consume a sequence number.
func (c *Coordinator) serveSync(requester protocol.SocketID) {
	msg := protocol.NetMessage{
		Room: c.room, From: c.self,
		State: c.State(), Version: c.seq.Current(),
	}
	if requester != "" {
		msg.Type = protocol.EvStateDirect
		msg.Target = requester
	} else {
		// no known requester: broadcast fallback
		msg.Type = protocol.EvState
	}
	c.send(msg)
}

func (c *Coordinator) send(msg protocol.NetMessage) {
	select {
	case c.netOut <- msg:
	case <-c.stopCh:
	}
}

// Root implements game.Env.
func (c *Coordinator) Root() *state.Handle { return c.tracker.Root() }

// Roster implements game.Env.
func (c *Coordinator) Roster() []protocol.Player {
	c.rosterMu.Lock()
	defer c.rosterMu.Unlock()
	return c.roster
}

// Replace implements game.Env: a wholesale root assignment by game logic.
func (c *Coordinator) Replace(root map[string]any) { c.tracker.Replace(root) }

// Schedule implements game.Env: it defers an action back through the
// normal submit path so timer-driven mutations ride the same pipeline as
// everything else. Host only; pending timers die with the coordinator.
func (c *Coordinator) Schedule(d time.Duration, a protocol.Action) {
	if !c.host {
		return
	}
	stop := c.clock.AfterFunc(d, func() {
		select {
		case <-c.stopCh:
		default:
			c.Submit(a)
		}
	})
	c.timersMu.Lock()
	c.stops = append(c.stops, stop)
	c.timersMu.Unlock()
}

// Close stops the loop and cancels pending timers.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.timersMu.Lock()
		stops := c.stops
		c.stops = nil
		c.timersMu.Unlock()
		for _, stop := range stops {
			stop()
		}
	})
}
