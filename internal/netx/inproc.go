package netx

import (
	"context"
	"sync"

	"github.com/ltvmoon/gamesync/internal/protocol"
)

// Inproc is a loopback relay for single-process demos and tests: same room
// membership, echo and direct-routing semantics as the websocket relay,
// without sockets.
type Inproc struct {
	mu    sync.Mutex
	conns map[protocol.SocketID]*InprocConn
	rooms map[protocol.RoomID][]protocol.SocketID
	names map[protocol.SocketID]string

	filter func(to protocol.SocketID, msg protocol.NetMessage) bool
}

func NewInproc() *Inproc {
	return &Inproc{
		conns: map[protocol.SocketID]*InprocConn{},
		rooms: map[protocol.RoomID][]protocol.SocketID{},
		names: map[protocol.SocketID]string{},
	}
}

// SetFilter installs a per-delivery predicate: returning false drops the
// message before it reaches the given participant. Tests use it to
// simulate packet loss. A nil fn delivers everything.
func (h *Inproc) SetFilter(fn func(to protocol.SocketID, msg protocol.NetMessage) bool) {
	h.mu.Lock()
	h.filter = fn
	h.mu.Unlock()
}

// Connect attaches one participant to the loopback relay.
func (h *Inproc) Connect(username string) *InprocConn {
	c := &InprocConn{
		hub:    h,
		id:     protocol.NewSocketID(),
		inbox:  make(chan protocol.NetMessage, 1024),
		outbox: make(chan protocol.NetMessage, 1024),
	}
	h.mu.Lock()
	h.conns[c.id] = c
	h.names[c.id] = username
	h.mu.Unlock()
	return c
}

func (h *Inproc) route(from protocol.SocketID, msg protocol.NetMessage) {
	msg.From = from
	switch msg.Type {
	case protocol.EvJoin:
		h.join(msg.Room, from)
	case protocol.EvLeave:
		h.leave(msg.Room, from)
	case protocol.EvStateDirect:
		h.deliver(msg.Target, msg)
	default:
		for _, id := range h.members(msg.Room) {
			h.deliver(id, msg)
		}
	}
}

func (h *Inproc) join(room protocol.RoomID, id protocol.SocketID) {
	h.mu.Lock()
	present := false
	for _, m := range h.rooms[room] {
		if m == id {
			present = true
			break
		}
	}
	if !present {
		h.rooms[room] = append(h.rooms[room], id)
	}
	h.mu.Unlock()
	h.pushRoster(room)
}

func (h *Inproc) leave(room protocol.RoomID, id protocol.SocketID) {
	h.mu.Lock()
	members := h.rooms[room][:0]
	for _, m := range h.rooms[room] {
		if m != id {
			members = append(members, m)
		}
	}
	h.rooms[room] = members
	h.mu.Unlock()
	h.pushRoster(room)
}

func (h *Inproc) pushRoster(room protocol.RoomID) {
	h.mu.Lock()
	players := make([]protocol.Player, 0, len(h.rooms[room]))
	for _, id := range h.rooms[room] {
		players = append(players, protocol.Player{ID: id, Username: h.names[id]})
	}
	h.mu.Unlock()
	msg := protocol.NetMessage{Room: room, Type: protocol.EvRoster, Players: players}
	for _, p := range players {
		h.deliver(p.ID, msg)
	}
}

func (h *Inproc) members(room protocol.RoomID) []protocol.SocketID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.SocketID{}, h.rooms[room]...)
}

func (h *Inproc) deliver(to protocol.SocketID, msg protocol.NetMessage) {
	h.mu.Lock()
	filter := h.filter
	c, ok := h.conns[to]
	h.mu.Unlock()
	if filter != nil && !filter(to, msg) {
		return
	}
	if ok {
		c.inbox <- msg
	}
}

func (h *Inproc) disconnect(c *InprocConn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	var affected []protocol.RoomID
	for room, members := range h.rooms {
		kept := members[:0]
		for _, m := range members {
			if m != c.id {
				kept = append(kept, m)
			}
		}
		if len(kept) != len(members) {
			h.rooms[room] = kept
			affected = append(affected, room)
		}
	}
	h.mu.Unlock()
	for _, room := range affected {
		h.pushRoster(room)
	}
}

// InprocConn is one participant's endpoint on the loopback relay.
type InprocConn struct {
	hub    *Inproc
	id     protocol.SocketID
	inbox  chan protocol.NetMessage
	outbox chan protocol.NetMessage
}

func (c *InprocConn) SocketID() protocol.SocketID        { return c.id }
func (c *InprocConn) Inbox() <-chan protocol.NetMessage  { return c.inbox }
func (c *InprocConn) Outbox() chan<- protocol.NetMessage { return c.outbox }

func (c *InprocConn) Start(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-c.outbox:
				c.hub.route(c.id, msg)
			}
		}
	}()
	return nil
}

func (c *InprocConn) Close() error {
	c.hub.disconnect(c)
	return nil
}
