// Package room owns membership-level plumbing: routing relay messages to
// per-room coordinators and creating host/guest coordinators.
package room

import (
	"sync"

	"github.com/ltvmoon/gamesync/internal/protocol"
)

// Router delivers NetMessages to the appropriate coordinator goroutine by
// RoomID.
type Router struct {
	mu     sync.RWMutex
	byRoom map[protocol.RoomID]chan<- protocol.NetMessage
}

func NewRouter() *Router {
	return &Router{byRoom: make(map[protocol.RoomID]chan<- protocol.NetMessage)}
}

func (r *Router) Register(id protocol.RoomID, inbox chan<- protocol.NetMessage) {
	r.mu.Lock()
	r.byRoom[id] = inbox
	r.mu.Unlock()
}

func (r *Router) Unregister(id protocol.RoomID) {
	r.mu.Lock()
	delete(r.byRoom, id)
	r.mu.Unlock()
}

func (r *Router) Route(msg protocol.NetMessage) bool {
	r.mu.RLock()
	ch, ok := r.byRoom[msg.Room]
	r.mu.RUnlock()
	if ok {
		ch <- msg
	}
	return ok
}
