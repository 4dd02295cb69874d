package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ltvmoon/gamesync/internal/game"
	"github.com/ltvmoon/gamesync/internal/netx"
	"github.com/ltvmoon/gamesync/internal/protocol"
	"github.com/ltvmoon/gamesync/internal/room"
	"github.com/ltvmoon/gamesync/internal/store"
	"github.com/ltvmoon/gamesync/pkg/types"
)

func main() {
	relay := flag.String("relay", "", "run the relay server on this addr (e.g. :8080) and exit")
	connect := flag.String("connect", "ws://localhost:8080/ws", "relay url to join as a participant")
	name := flag.String("name", "player", "display name")
	dbPath := flag.String("db", "gamesync.db", "advisory local snapshot mirror")
	inproc := flag.Bool("inproc", false, "use the in-process loopback relay (single-process demos)")
	flag.Parse()

	if *relay != "" {
		runRelay(*relay)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var nw netx.Network
	if *inproc {
		nw = netx.NewInproc().Connect(*name)
	} else {
		c, err := netx.Dial(ctx, *connect, *name)
		if err != nil {
			fmt.Println("connect error:", err)
			os.Exit(1)
		}
		nw = c
	}

	var st store.Store
	if s, err := store.OpenSQLite(*dbPath); err != nil {
		log.Printf("snapshot mirror unavailable: %v", err)
		st = store.Nop{}
	} else {
		st = s
		defer s.Close()
	}

	n := room.NewNode(nw, st, game.RealClock{})
	if err := n.Start(ctx); err != nil {
		fmt.Println("start error:", err)
		os.Exit(1)
	}

	fmt.Printf("connected as %s (%s)\n", *name, n.ID)
	fmt.Println("type 'help' for commands")
	repl(n, *name)
}

func runRelay(addr string) {
	r := netx.NewRelay()
	http.HandleFunc("/ws", r.ServeWS)
	log.Printf("relay listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func repl(n *room.Node, name string) {
	var current protocol.RoomID
	s := bufio.NewScanner(os.Stdin)
	prompt := func() { fmt.Print("> ") }
	prompt()
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			prompt()
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help":
			fmt.Println(`commands:
  host [room]     host a new guessword room (random id when omitted)
  join <room>     join an existing room as guest
  start [word]    start a round (host decides the word)
  guess <letter>  guess a letter on your turn
  bot             seat a bot (while waiting)
  reset           back to the waiting phase
  state           print the local state and version
  leave           leave the current room
  quit`)

		case "host":
			id := protocol.NewRoomID()
			if len(args) > 0 {
				id = protocol.RoomID(args[0])
			}
			cfg := roomConfig(name)
			if _, err := n.Manager().HostRoom(id, cfg, game.NewGuessword(cfg)); err != nil {
				fmt.Println("host error:", err)
				break
			}
			current = id
			fmt.Println("hosting room", id)

		case "join":
			if len(args) == 0 {
				fmt.Println("usage: join <room>")
				break
			}
			id := protocol.RoomID(args[0])
			cfg := roomConfig(name)
			if _, err := n.Manager().JoinRoom(id, cfg, game.NewGuessword(cfg)); err != nil {
				fmt.Println("join error:", err)
				break
			}
			current = id
			fmt.Println("joined room", id)

		case "start":
			data := map[string]any{}
			if len(args) > 0 {
				data["word"] = args[0]
			}
			submit(n, current, protocol.Action{Type: game.ActStart, Data: data})

		case "guess":
			if len(args) == 0 {
				fmt.Println("usage: guess <letter>")
				break
			}
			submit(n, current, protocol.Action{Type: game.ActGuess, Data: map[string]any{"letter": args[0]}})

		case "bot":
			submit(n, current, protocol.Action{Type: game.ActAddBot})

		case "reset":
			submit(n, current, protocol.Action{Type: game.ActReset})

		case "state":
			c, ok := n.Manager().Get(current)
			if !ok {
				fmt.Println("not in a room")
				break
			}
			blob, _ := json.MarshalIndent(c.State(), "", "  ")
			fmt.Printf("version %d\n%s\n", c.Version(), blob)

		case "leave":
			if current != "" {
				n.Manager().Leave(current)
				current = ""
			}

		case "quit", "exit":
			n.Manager().Close()
			return

		default:
			fmt.Println("unknown command (try 'help')")
		}
		prompt()
	}
}

func submit(n *room.Node, id protocol.RoomID, a protocol.Action) {
	c, ok := n.Manager().Get(id)
	if !ok {
		fmt.Println("not in a room")
		return
	}
	c.Submit(a)
}

func roomConfig(name string) types.RoomConfig {
	return types.RoomConfig{
		Name:         name,
		Game:         "guessword",
		MaxPlayers:   8,
		Lives:        6,
		RoundTimeout: 60 * time.Second,
		BotDelay:     400 * time.Millisecond,
	}
}
