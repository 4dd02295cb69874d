// Package store is the best-effort local persistence mirror. It is never a
// sync source of truth: hosts write the latest snapshot after each flush so
// a session can resume optimistically, and every failure is logged and
// swallowed.
package store

import "github.com/ltvmoon/gamesync/internal/protocol"

type Store interface {
	// Save mirrors the latest snapshot for a room. Best effort.
	Save(room protocol.RoomID, state map[string]any, version uint64)
	// Load returns the mirrored snapshot, if any.
	Load(room protocol.RoomID) (state map[string]any, version uint64, ok bool)
	// Clear drops the mirror, e.g. on game end or explicit reset.
	Clear(room protocol.RoomID)
	Close() error
}

// Nop discards everything. Guests and tests use it.
type Nop struct{}

func (Nop) Save(protocol.RoomID, map[string]any, uint64) {}
func (Nop) Load(protocol.RoomID) (map[string]any, uint64, bool) {
	return nil, 0, false
}
func (Nop) Clear(protocol.RoomID) {}
func (Nop) Close() error          { return nil }
