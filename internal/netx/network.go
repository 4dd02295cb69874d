// Package netx provides the message channel the sync core consumes: named,
// room-scoped publish/subscribe with server-relayed echo, plus the thin
// relay server itself.
package netx

import (
	"context"

	"github.com/ltvmoon/gamesync/internal/protocol"
)

type Network interface {
	// SocketID is this participant's relay-assigned identity.
	SocketID() protocol.SocketID
	Inbox() <-chan protocol.NetMessage
	Outbox() chan<- protocol.NetMessage
	Start(ctx context.Context) error
	Close() error
}
