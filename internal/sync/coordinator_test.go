package sync

import (
	"testing"
	"time"

	"github.com/ltvmoon/gamesync/internal/game"
	"github.com/ltvmoon/gamesync/internal/protocol"
	"github.com/ltvmoon/gamesync/internal/state"
	"github.com/ltvmoon/gamesync/pkg/types"
)

// stubGame is a minimal game whose actions exercise each mutation shape.
type stubGame struct{}

func (stubGame) Name() string { return "stub" }

func (stubGame) InitialState() map[string]any {
	return map[string]any{"score": 0, "players": []any{"alice"}}
}

func (stubGame) Apply(env game.Env, a protocol.Action) game.Outcome {
	switch a.Type {
	case "mutate":
		env.Root().Set("score", 1)
		env.Root().Child("players").Append("bob")
	case "bump":
		env.Root().Set("score", 5)
	case "swap":
		env.Replace(map[string]any{"fresh": true})
	case "win":
		return game.Outcome{End: &protocol.Result{Winner: "alice"}}
	case "again":
		return game.Outcome{Reset: true}
	}
	return game.Outcome{}
}

func (stubGame) OnRosterChanged(env game.Env, players []protocol.Player) {}

func newTestCoordinator(host bool) (*Coordinator, chan protocol.NetMessage, chan protocol.NetMessage) {
	in := make(chan protocol.NetMessage, 64)
	out := make(chan protocol.NetMessage, 64)
	c := New("room-1", "self", types.RoomConfig{}, host, stubGame{}, in, out, nil, nil)
	return c, in, out
}

func action(typ string) protocol.NetMessage {
	return protocol.NetMessage{
		Room: "room-1", Type: protocol.EvAction,
		Action: &protocol.Action{ID: protocol.NewActionID(), Type: typ, Player: "self"},
	}
}

func roster(ids ...protocol.SocketID) protocol.NetMessage {
	players := make([]protocol.Player, 0, len(ids))
	for _, id := range ids {
		players = append(players, protocol.Player{ID: id, Username: string(id)})
	}
	return protocol.NetMessage{Room: "room-1", Type: protocol.EvRoster, Players: players}
}

func drain(out chan protocol.NetMessage) []protocol.NetMessage {
	var msgs []protocol.NetMessage
	for {
		select {
		case m := <-out:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func TestHostFlushSendsOnePatch(t *testing.T) {
	c, _, out := newTestCoordinator(true)
	c.dispatch(roster("self", "peer"))
	c.flush()
	if msgs := drain(out); len(msgs) != 0 {
		t.Fatalf("roster alone produced %d messages", len(msgs))
	}

	c.dispatch(action("mutate"))
	c.flush()

	msgs := drain(out)
	if len(msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Type != protocol.EvStatePatch {
		t.Fatalf("want %s, got %s", protocol.EvStatePatch, m.Type)
	}
	if m.Version != 1 {
		t.Fatalf("want version 1, got %d", m.Version)
	}
	want := protocol.Patch{
		{Path: "score", Value: 1},
		{Path: "players.1", Value: "bob"},
	}
	if !state.Equal(m.Patch, want) {
		t.Fatalf("patch = %v, want %v", m.Patch, want)
	}
}

func TestHostBurstCoalesces(t *testing.T) {
	c, in, out := newTestCoordinator(true)
	c.dispatch(roster("self", "peer"))

	in <- action("bump")
	c.dispatch(action("mutate"))
	c.drainQueued()
	c.flush()

	msgs := drain(out)
	if len(msgs) != 1 {
		t.Fatalf("want 1 coalesced message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Version != 1 {
		t.Fatalf("want version 1, got %d", m.Version)
	}
	// bump's score write supersedes mutate's in the same batch, and the
	// coalesced record sits at its latest write position
	want := protocol.Patch{
		{Path: "players.1", Value: "bob"},
		{Path: "score", Value: 5},
	}
	if !state.Equal(m.Patch, want) {
		t.Fatalf("patch = %v, want %v", m.Patch, want)
	}
}

func TestHostFullReplaceSendsFullState(t *testing.T) {
	c, _, out := newTestCoordinator(true)
	c.dispatch(roster("self", "peer"))
	c.dispatch(action("swap"))
	c.flush()

	msgs := drain(out)
	if len(msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Type != protocol.EvState {
		t.Fatalf("want %s after replace, got %s", protocol.EvState, m.Type)
	}
	if !state.Equal(m.State, map[string]any{"fresh": true}) {
		t.Fatalf("state = %v", m.State)
	}
}

// recordingStore counts saves so the lone-host mirror path is observable.
type recordingStore struct {
	saves   int
	clears  int
	version uint64
}

func (s *recordingStore) Save(room protocol.RoomID, st map[string]any, v uint64) {
	s.saves++
	s.version = v
}

func (s *recordingStore) Load(room protocol.RoomID) (map[string]any, uint64, bool) {
	return nil, 0, false
}
func (s *recordingStore) Clear(room protocol.RoomID) { s.clears++ }
func (s *recordingStore) Close() error               { return nil }

func TestLoneHostMirrorsWithoutSending(t *testing.T) {
	in := make(chan protocol.NetMessage, 64)
	out := make(chan protocol.NetMessage, 64)
	st := &recordingStore{}
	c := New("room-1", "self", types.RoomConfig{}, true, stubGame{}, in, out, st, nil)

	c.dispatch(roster("self"))
	c.dispatch(action("mutate"))
	c.flush()

	if msgs := drain(out); len(msgs) != 0 {
		t.Fatalf("lone host broadcast %d messages", len(msgs))
	}
	if c.Version() != 1 {
		t.Fatalf("version not advanced: %d", c.Version())
	}
	if st.saves != 1 || st.version != 1 {
		t.Fatalf("snapshot not mirrored: saves=%d version=%d", st.saves, st.version)
	}
}

func TestHostEndsOnce(t *testing.T) {
	c, _, out := newTestCoordinator(true)
	c.dispatch(roster("self", "peer"))
	c.dispatch(action("win"))
	c.dispatch(action("win"))
	c.flush()

	ends := 0
	for _, m := range drain(out) {
		if m.Type == protocol.EvEnd {
			ends++
			if m.Result == nil || m.Result.Winner != "alice" {
				t.Fatalf("end result = %v", m.Result)
			}
		}
	}
	if ends != 1 {
		t.Fatalf("want 1 end event, got %d", ends)
	}

	// a reset re-arms the latch
	c.dispatch(action("again"))
	c.dispatch(action("win"))
	if got := len(drain(out)); got != 1 {
		t.Fatalf("want 1 end event after reset, got %d", got)
	}
}

func TestHostServesSyncWithoutBumpingVersion(t *testing.T) {
	c, _, out := newTestCoordinator(true)
	c.dispatch(roster("self", "peer"))
	c.dispatch(action("mutate"))
	c.flush()
	drain(out)

	c.dispatch(protocol.NetMessage{Room: "room-1", From: "peer", Type: protocol.EvRequestSync})
	msgs := drain(out)
	if len(msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Type != protocol.EvStateDirect || m.Target != "peer" {
		t.Fatalf("want direct state to peer, got %s target %q", m.Type, m.Target)
	}
	if m.Version != 1 || c.Version() != 1 {
		t.Fatalf("catch-up consumed a version: msg=%d local=%d", m.Version, c.Version())
	}
}

func guestInstall(c *Coordinator, st map[string]any, v uint64) {
	c.dispatch(protocol.NetMessage{
		Room: "room-1", Type: protocol.EvStateDirect, Target: "self",
		State: st, Version: v,
	})
}

func patchMsg(v uint64, p protocol.Patch) protocol.NetMessage {
	return protocol.NetMessage{Room: "room-1", Type: protocol.EvStatePatch, Version: v, Patch: p}
}

func TestGuestGapRequestsResyncOnce(t *testing.T) {
	c, _, out := newTestCoordinator(false)
	guestInstall(c, map[string]any{"score": 0}, 0)

	c.dispatch(patchMsg(1, protocol.Patch{{Path: "score", Value: 1}}))
	c.dispatch(patchMsg(2, protocol.Patch{{Path: "score", Value: 2}}))
	c.dispatch(patchMsg(4, protocol.Patch{{Path: "score", Value: 4}}))
	c.dispatch(patchMsg(5, protocol.Patch{{Path: "score", Value: 5}}))

	if !state.Equal(c.State(), map[string]any{"score": 2}) {
		t.Fatalf("gapped patch applied: %v", c.State())
	}
	if c.Version() != 2 {
		t.Fatalf("version = %d, want 2", c.Version())
	}
	reqs := 0
	for _, m := range drain(out) {
		if m.Type == protocol.EvRequestSync {
			reqs++
		}
	}
	if reqs != 1 {
		t.Fatalf("want exactly 1 resync request, got %d", reqs)
	}
}

func TestGuestFullStateAlwaysWins(t *testing.T) {
	c, _, _ := newTestCoordinator(false)
	guestInstall(c, map[string]any{"score": 7}, 7)

	c.dispatch(protocol.NetMessage{
		Room: "room-1", Type: protocol.EvState,
		State: map[string]any{"score": 3}, Version: 3,
	})

	if c.Version() != 3 {
		t.Fatalf("version = %d, want 3 (full state wins)", c.Version())
	}
	if !state.Equal(c.State(), map[string]any{"score": 3}) {
		t.Fatalf("state = %v", c.State())
	}

	// and the install clears the pending-resync latch
	c.dispatch(patchMsg(9, protocol.Patch{{Path: "score", Value: 9}}))
	c.dispatch(patchMsg(4, protocol.Patch{{Path: "score", Value: 4}}))
	if !state.Equal(c.State(), map[string]any{"score": 4}) {
		t.Fatalf("in-order patch after resync not applied: %v", c.State())
	}
}

func TestGuestIgnoresDirectStateForOthers(t *testing.T) {
	c, _, _ := newTestCoordinator(false)
	guestInstall(c, map[string]any{"score": 1}, 1)

	c.dispatch(protocol.NetMessage{
		Room: "room-1", Type: protocol.EvStateDirect, Target: "someone-else",
		State: map[string]any{"score": 99}, Version: 9,
	})
	if c.Version() != 1 {
		t.Fatalf("adopted state addressed to another peer")
	}
}

func TestGuestIgnoresActions(t *testing.T) {
	c, _, out := newTestCoordinator(false)
	guestInstall(c, map[string]any{"score": 0}, 0)
	c.dispatch(action("mutate"))
	c.flush()

	if !state.Equal(c.State(), map[string]any{"score": 0}) {
		t.Fatalf("guest applied an action locally: %v", c.State())
	}
	if msgs := drain(out); len(msgs) != 0 {
		t.Fatalf("guest broadcast %d messages", len(msgs))
	}
}

func TestGuestNotifiesSubscribers(t *testing.T) {
	c, _, _ := newTestCoordinator(false)
	var paths []string
	var replacements int
	c.Subscribe(func(path []string, v any) {
		if path == nil {
			replacements++
			return
		}
		paths = append(paths, path[0])
	})

	guestInstall(c, map[string]any{"score": 0}, 0)
	if replacements != 1 {
		t.Fatalf("install fired %d replacement notifications", replacements)
	}

	c.dispatch(patchMsg(1, protocol.Patch{
		{Path: "score", Value: 1},
		{Path: "round", Value: 2},
	}))
	if len(paths) != 2 {
		t.Fatalf("patch fired %d leaf notifications, want 2", len(paths))
	}
}

// A guest keeps applying a patch stream while other goroutines snapshot
// its state; both sides must see consistent trees throughout.
func TestStateReadsDuringPatchStream(t *testing.T) {
	in := make(chan protocol.NetMessage, 256)
	out := make(chan protocol.NetMessage, 16)
	c := New("room-1", "self", types.RoomConfig{}, false, stubGame{}, in, out, nil, nil)
	go c.Run()
	defer c.Close()

	in <- protocol.NetMessage{
		Room: "room-1", Type: protocol.EvStateDirect, Target: "self",
		State: map[string]any{"score": 0, "list": []any{}}, Version: 0,
	}

	stop := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stop:
				return
			default:
				if snap := c.State(); snap == nil {
					return
				}
			}
		}
	}()

	const final = 300
	for i := 1; i <= final; i++ {
		in <- patchMsg(uint64(i), protocol.Patch{
			{Path: "score", Value: i},
			{Path: "list.0", Value: i},
		})
	}

	deadline := time.Now().Add(3 * time.Second)
	for c.Version() != final && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(stop)
	<-polled

	if c.Version() != final {
		t.Fatalf("version = %d, want %d", c.Version(), final)
	}
	if !state.Equal(c.State()["score"], final) {
		t.Fatalf("score = %v, want %d", c.State()["score"], final)
	}
}

func TestResumePrepopulatesHost(t *testing.T) {
	c, _, _ := newTestCoordinator(true)
	c.Resume(map[string]any{"score": 42}, 6)
	if c.Version() != 6 {
		t.Fatalf("version = %d, want 6", c.Version())
	}
	if !state.Equal(c.State(), map[string]any{"score": 42}) {
		t.Fatalf("state = %v", c.State())
	}
}
