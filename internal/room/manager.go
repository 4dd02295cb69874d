package room

import (
	"errors"
	"sync"

	gamesync "github.com/ltvmoon/gamesync/internal/sync"

	"github.com/ltvmoon/gamesync/internal/game"
	"github.com/ltvmoon/gamesync/internal/protocol"
	"github.com/ltvmoon/gamesync/internal/store"
	"github.com/ltvmoon/gamesync/pkg/types"
)

// Manager creates and tracks the local participant's coordinators, one per
// joined room.
type Manager struct {
	self   protocol.SocketID
	router *Router
	netOut chan<- protocol.NetMessage
	st     store.Store
	clock  game.Clock

	mu    sync.RWMutex
	rooms map[protocol.RoomID]*gamesync.Coordinator
}

func NewManager(self protocol.SocketID, router *Router, netOut chan<- protocol.NetMessage, st store.Store, clock game.Clock) *Manager {
	if st == nil {
		st = store.Nop{}
	}
	return &Manager{
		self: self, router: router, netOut: netOut, st: st, clock: clock,
		rooms: make(map[protocol.RoomID]*gamesync.Coordinator),
	}
}

// HostRoom starts the authoritative coordinator for a room. An advisory
// local snapshot, when present, pre-populates the state before the first
// flush.
func (m *Manager) HostRoom(id protocol.RoomID, cfg types.RoomConfig, g game.Game) (*gamesync.Coordinator, error) {
	return m.attach(id, cfg, g, true)
}

// JoinRoom starts a guest coordinator; its initial resync request brings
// the real state in.
func (m *Manager) JoinRoom(id protocol.RoomID, cfg types.RoomConfig, g game.Game) (*gamesync.Coordinator, error) {
	return m.attach(id, cfg, g, false)
}

func (m *Manager) attach(id protocol.RoomID, cfg types.RoomConfig, g game.Game, host bool) (*gamesync.Coordinator, error) {
	m.mu.Lock()
	if _, exists := m.rooms[id]; exists {
		m.mu.Unlock()
		return nil, errors.New("room already attached")
	}
	in := make(chan protocol.NetMessage, 256)
	st := m.st
	if !host {
		// replicas never mirror; only the authoritative copy is worth resuming
		st = store.Nop{}
	}
	c := gamesync.New(id, m.self, cfg, host, g, in, m.netOut, st, m.clock)
	if host {
		if snapshot, version, ok := m.st.Load(id); ok {
			c.Resume(snapshot, version)
		}
	}
	m.rooms[id] = c
	m.mu.Unlock()

	m.router.Register(id, in)
	go c.Run()

	// announce membership so the relay seats us and pushes the roster; the
	// send can block on a slow transport, so the lock is already released
	m.netOut <- protocol.NetMessage{Room: id, From: m.self, Type: protocol.EvJoin}
	return c, nil
}

// Leave detaches from a room: tells the relay, stops the coordinator, and
// drops the route.
func (m *Manager) Leave(id protocol.RoomID) {
	m.mu.Lock()
	c, ok := m.rooms[id]
	delete(m.rooms, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.netOut <- protocol.NetMessage{Room: id, From: m.self, Type: protocol.EvLeave}
	m.router.Unregister(id)
	c.Close()
}

func (m *Manager) Get(id protocol.RoomID) (*gamesync.Coordinator, bool) {
	m.mu.RLock()
	c, ok := m.rooms[id]
	m.mu.RUnlock()
	return c, ok
}

// Close detaches every room.
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := make([]protocol.RoomID, 0, len(m.rooms))
	for id := range m.rooms {
		rooms = append(rooms, id)
	}
	m.mu.Unlock()
	for _, id := range rooms {
		m.Leave(id)
	}
}
