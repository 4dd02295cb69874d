package room

import (
	"context"
	"log"

	"github.com/ltvmoon/gamesync/internal/game"
	"github.com/ltvmoon/gamesync/internal/netx"
	"github.com/ltvmoon/gamesync/internal/protocol"
	"github.com/ltvmoon/gamesync/internal/store"
)

// Node is one participant: a network connection, a router, and a manager
// for the rooms this participant is in.
type Node struct {
	ID     protocol.SocketID
	net    netx.Network
	router *Router
	mgr    *Manager
}

func NewNode(network netx.Network, st store.Store, clock game.Clock) *Node {
	id := network.SocketID()
	r := NewRouter()
	mgr := NewManager(id, r, network.Outbox(), st, clock)
	return &Node{ID: id, net: network, router: r, mgr: mgr}
}

func (n *Node) Start(ctx context.Context) error {
	if err := n.net.Start(ctx); err != nil {
		return err
	}
	go n.dispatcher(ctx)
	return nil
}

func (n *Node) dispatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-n.net.Inbox():
			if !ok {
				return
			}
			if !n.router.Route(msg) {
				log.Printf("node %s: no room %s for %s message, dropped", n.ID, msg.Room, msg.Type)
			}
		}
	}
}

func (n *Node) Network() netx.Network { return n.net }
func (n *Node) Manager() *Manager     { return n.mgr }
