package netx

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ltvmoon/gamesync/internal/protocol"
)

// Relay is the thin server: it assigns socket identities, tracks room
// membership, echoes room-scoped events to every member including the
// sender, and routes state:direct messages to one specific connection. It
// never inspects game payloads.
type Relay struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[protocol.SocketID]*relayClient
	rooms   map[protocol.RoomID][]protocol.SocketID
	names   map[protocol.SocketID]string
}

type relayClient struct {
	id   protocol.SocketID
	conn *websocket.Conn
	send chan []byte
}

func NewRelay() *Relay {
	return &Relay{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[protocol.SocketID]*relayClient{},
		rooms:   map[protocol.RoomID][]protocol.SocketID{},
		names:   map[protocol.SocketID]string{},
	}
}

// ServeWS upgrades one participant connection and pumps it until close.
// Path: /ws?name=<username>
func (r *Relay) ServeWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("relay: upgrade: %v", err)
		return
	}
	name := req.URL.Query().Get("name")
	if name == "" {
		name = "anon"
	}

	client := &relayClient{
		id:   protocol.NewSocketID(),
		conn: conn,
		send: make(chan []byte, 64),
	}
	r.mu.Lock()
	r.clients[client.id] = client
	r.names[client.id] = name
	r.mu.Unlock()
	log.Printf("relay: client %s (%s) connected", client.id, name)

	// writer
	go func() {
		ping := time.NewTicker(15 * time.Second)
		defer func() {
			ping.Stop()
			_ = conn.Close()
		}()
		for {
			select {
			case data, ok := <-client.send:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// tell the participant who it is before anything else
	r.unicast(client.id, protocol.NetMessage{Type: protocol.EvWelcome, Target: client.id})

	// reader
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg protocol.NetMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("relay: bad message from %s: %v", client.id, err)
			continue
		}
		// identity is relay-assigned, never client-claimed
		msg.From = client.id
		r.route(msg)
	}

	r.disconnect(client)
}

func (r *Relay) route(msg protocol.NetMessage) {
	switch msg.Type {
	case protocol.EvJoin:
		r.join(msg.Room, msg.From)
	case protocol.EvLeave:
		r.leave(msg.Room, msg.From)
	case protocol.EvStateDirect:
		r.unicast(msg.Target, msg)
	default:
		r.broadcast(msg.Room, msg)
	}
}

func (r *Relay) join(room protocol.RoomID, id protocol.SocketID) {
	r.mu.Lock()
	present := false
	for _, m := range r.rooms[room] {
		if m == id {
			present = true
			break
		}
	}
	if !present {
		r.rooms[room] = append(r.rooms[room], id)
	}
	r.mu.Unlock()
	log.Printf("relay: %s joined room %s", id, room)
	r.pushRoster(room)
}

func (r *Relay) leave(room protocol.RoomID, id protocol.SocketID) {
	r.mu.Lock()
	kept := r.rooms[room][:0]
	for _, m := range r.rooms[room] {
		if m != id {
			kept = append(kept, m)
		}
	}
	r.rooms[room] = kept
	r.mu.Unlock()
	r.pushRoster(room)
}

func (r *Relay) pushRoster(room protocol.RoomID) {
	r.mu.Lock()
	players := make([]protocol.Player, 0, len(r.rooms[room]))
	for _, id := range r.rooms[room] {
		players = append(players, protocol.Player{ID: id, Username: r.names[id]})
	}
	r.mu.Unlock()
	r.broadcast(room, protocol.NetMessage{Room: room, Type: protocol.EvRoster, Players: players})
}

func (r *Relay) broadcast(room protocol.RoomID, msg protocol.NetMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("relay: marshal: %v", err)
		return
	}
	r.mu.Lock()
	targets := make([]*relayClient, 0, len(r.rooms[room]))
	for _, id := range r.rooms[room] {
		if c, ok := r.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()
	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			// slow consumer; it will resync when it catches up
		}
	}
}

func (r *Relay) unicast(to protocol.SocketID, msg protocol.NetMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("relay: marshal: %v", err)
		return
	}
	r.mu.Lock()
	c, ok := r.clients[to]
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (r *Relay) disconnect(client *relayClient) {
	r.mu.Lock()
	delete(r.clients, client.id)
	delete(r.names, client.id)
	var affected []protocol.RoomID
	for room, members := range r.rooms {
		kept := members[:0]
		for _, m := range members {
			if m != client.id {
				kept = append(kept, m)
			}
		}
		if len(kept) != len(members) {
			r.rooms[room] = kept
			affected = append(affected, room)
		}
	}
	r.mu.Unlock()
	close(client.send)
	for _, room := range affected {
		r.pushRoster(room)
	}
	log.Printf("relay: client %s disconnected", client.id)
}
