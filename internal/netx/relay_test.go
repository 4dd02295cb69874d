package netx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ltvmoon/gamesync/internal/protocol"
)

func startRelay(t *testing.T) string {
	t.Helper()
	r := NewRelay()
	srv := httptest.NewServer(http.HandlerFunc(r.ServeWS))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialClient(t *testing.T, ctx context.Context, url, name string) *Client {
	t.Helper()
	c, err := Dial(ctx, url, name)
	if err != nil {
		t.Fatalf("dial %s: %v", name, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start %s: %v", name, err)
	}
	return c
}

func recv(t *testing.T, c *Client, what string) protocol.NetMessage {
	t.Helper()
	select {
	case msg, ok := <-c.Inbox():
		if !ok {
			t.Fatalf("inbox closed waiting for %s", what)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	return protocol.NetMessage{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Inbox():
		t.Fatalf("unexpected message %s", msg.Type)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRelayAssignsDistinctIDs(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := dialClient(t, ctx, url, "alice")
	b := dialClient(t, ctx, url, "bob")
	if a.SocketID() == "" || b.SocketID() == "" {
		t.Fatal("empty socket id")
	}
	if a.SocketID() == b.SocketID() {
		t.Fatalf("duplicate socket id %s", a.SocketID())
	}
}

func TestRelayRoomEcho(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := dialClient(t, ctx, url, "alice")
	b := dialClient(t, ctx, url, "bob")
	room := protocol.RoomID("r1")

	a.Outbox() <- protocol.NetMessage{Room: room, Type: protocol.EvJoin}
	first := recv(t, a, "solo roster")
	if first.Type != protocol.EvRoster || len(first.Players) != 1 {
		t.Fatalf("first roster = %s %v", first.Type, first.Players)
	}
	if first.Players[0].ID != a.SocketID() || first.Players[0].Username != "alice" {
		t.Fatalf("roster seat = %+v", first.Players[0])
	}

	b.Outbox() <- protocol.NetMessage{Room: room, Type: protocol.EvJoin}
	for _, c := range []*Client{a, b} {
		m := recv(t, c, "pair roster")
		if m.Type != protocol.EvRoster || len(m.Players) != 2 {
			t.Fatalf("pair roster = %s %v", m.Type, m.Players)
		}
		// join order is roster order
		if m.Players[0].ID != a.SocketID() || m.Players[1].ID != b.SocketID() {
			t.Fatalf("roster order = %v", m.Players)
		}
	}

	// actions echo to every member, the sender included, stamped with the
	// relay-assigned identity
	a.Outbox() <- protocol.NetMessage{
		Room: room, From: "spoofed", Type: protocol.EvAction,
		Action: &protocol.Action{Type: "ping"},
	}
	for _, c := range []*Client{a, b} {
		m := recv(t, c, "action echo")
		if m.Type != protocol.EvAction || m.Action == nil || m.Action.Type != "ping" {
			t.Fatalf("echo = %+v", m)
		}
		if m.From != a.SocketID() {
			t.Fatalf("relay kept claimed identity %q", m.From)
		}
	}
}

func TestRelayDirectRouting(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := dialClient(t, ctx, url, "alice")
	b := dialClient(t, ctx, url, "bob")
	room := protocol.RoomID("r2")

	a.Outbox() <- protocol.NetMessage{Room: room, Type: protocol.EvJoin}
	recv(t, a, "solo roster")
	b.Outbox() <- protocol.NetMessage{Room: room, Type: protocol.EvJoin}
	recv(t, a, "pair roster")
	recv(t, b, "pair roster")

	a.Outbox() <- protocol.NetMessage{
		Room: room, Type: protocol.EvStateDirect, Target: b.SocketID(),
		State: map[string]any{"score": float64(3)}, Version: 3,
	}
	m := recv(t, b, "direct state")
	if m.Type != protocol.EvStateDirect || m.Version != 3 {
		t.Fatalf("direct = %+v", m)
	}
	if m.State["score"] != float64(3) {
		t.Fatalf("state = %v", m.State)
	}
	expectNothing(t, a)
}

func TestRelayDisconnectUpdatesRoster(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := dialClient(t, ctx, url, "alice")
	b := dialClient(t, ctx, url, "bob")
	room := protocol.RoomID("r3")

	a.Outbox() <- protocol.NetMessage{Room: room, Type: protocol.EvJoin}
	recv(t, a, "solo roster")
	b.Outbox() <- protocol.NetMessage{Room: room, Type: protocol.EvJoin}
	recv(t, a, "pair roster")
	recv(t, b, "pair roster")

	_ = b.Close()
	m := recv(t, a, "roster after disconnect")
	if m.Type != protocol.EvRoster || len(m.Players) != 1 || m.Players[0].ID != a.SocketID() {
		t.Fatalf("roster after disconnect = %v", m.Players)
	}
}
