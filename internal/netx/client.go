package netx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/ltvmoon/gamesync/internal/protocol"
)

// Client is the participant side of the websocket relay.
type Client struct {
	id     protocol.SocketID
	conn   *websocket.Conn
	inbox  chan protocol.NetMessage
	outbox chan protocol.NetMessage
}

// Dial connects to the relay and waits for the welcome message carrying
// the relay-assigned socket id.
func Dial(ctx context.Context, relayURL, username string) (*Client, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	q := u.Query()
	q.Set("name", username)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	var welcome protocol.NetMessage
	if err := conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != protocol.EvWelcome || welcome.Target == "" {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first message %q", welcome.Type)
	}

	return &Client{
		id:     welcome.Target,
		conn:   conn,
		inbox:  make(chan protocol.NetMessage, 1024),
		outbox: make(chan protocol.NetMessage, 1024),
	}, nil
}

func (c *Client) SocketID() protocol.SocketID        { return c.id }
func (c *Client) Inbox() <-chan protocol.NetMessage  { return c.inbox }
func (c *Client) Outbox() chan<- protocol.NetMessage { return c.outbox }

func (c *Client) Start(ctx context.Context) error {
	// writer
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-c.outbox:
				data, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}()

	// reader
	go func() {
		defer close(c.inbox)
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			var msg protocol.NetMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			select {
			case c.inbox <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (c *Client) Close() error { return c.conn.Close() }
