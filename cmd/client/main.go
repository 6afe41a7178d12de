// Command client is a terminal client for the tabletop server. Lines typed
// at the prompt are sent as chat unless they start with a slash command.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/magefree/tabletop-server/internal/protocol"
)

const usage = `commands:
  /import <deck-url>                 import a deck
  /draw                              draw a card
  /hand [count]                      draw an opening hand
  /shuffle                           shuffle your library
  /move <card-id> <from> <to> [top]  move a card between zones
  /start, /pass, /end                game phase controls
  /quit                              leave
anything else is sent as chat`

var errQuit = errors.New("quit")

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func main() {
	serverURL := flag.String("url", "ws://localhost:3000/ws", "server websocket URL")
	roomID := flag.String("room", "", "room to join (blank creates a new one)")
	name := flag.String("name", "Player", "display name")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		color.Red("Failed to connect to %s: %v", *serverURL, err)
		os.Exit(1)
	}
	defer conn.Close()

	joined := make(chan string, 1)
	done := make(chan struct{})
	go readLoop(conn, joined, done)

	if err := writeEnvelope(conn, protocol.EventJoinRoom, protocol.JoinRoomRequest{RoomID: *roomID, PlayerName: *name}); err != nil {
		color.Red("Failed to join: %v", err)
		os.Exit(1)
	}

	var current string
	select {
	case current = <-joined:
	case <-done:
		return
	}
	color.Green("Joined room %s as %s", current, *name)
	fmt.Println(usage)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			closeConn(conn)
			return
		case line, ok := <-lines:
			if !ok {
				closeConn(conn)
				return
			}
			eventType, payload, err := parseCommand(line, current)
			if errors.Is(err, errQuit) {
				closeConn(conn)
				return
			}
			if err != nil {
				color.Red("%v", err)
				continue
			}
			if eventType == "" {
				continue
			}
			if err := writeEnvelope(conn, eventType, payload); err != nil {
				color.Red("Failed to send: %v", err)
				return
			}
		}
	}
}

func readLoop(conn *websocket.Conn, joined chan<- string, done chan<- struct{}) {
	defer close(done)
	for {
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				color.Red("Connection closed: %v", err)
			}
			return
		}
		if ev.Type == protocol.EventRoomJoined {
			var result struct {
				RoomID string `json:"roomId"`
			}
			if json.Unmarshal(ev.Data, &result) == nil {
				select {
				case joined <- result.RoomID:
				default:
				}
			}
		}
		render(ev)
	}
}

func writeEnvelope(conn *websocket.Conn, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(protocol.Envelope{Type: eventType, Data: raw})
}

func closeConn(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// parseCommand turns an input line into an outbound event. An empty event
// type means there is nothing to send.
func parseCommand(line, roomID string) (string, any, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, nil
	}
	if !strings.HasPrefix(line, "/") {
		return protocol.EventChatMessage, protocol.ChatRequest{RoomID: roomID, Message: line}, nil
	}

	fields := strings.Fields(line)
	args := fields[1:]
	room := protocol.RoomRequest{RoomID: roomID}

	switch fields[0] {
	case "/quit", "/exit":
		return "", nil, errQuit
	case "/draw":
		return protocol.EventDrawCard, room, nil
	case "/shuffle":
		return protocol.EventShuffleLibrary, room, nil
	case "/start":
		return protocol.EventStartGame, room, nil
	case "/pass":
		return protocol.EventPassTurn, room, nil
	case "/end":
		return protocol.EventEndGame, room, nil
	case "/import":
		if len(args) != 1 {
			return "", nil, errors.New("usage: /import <deck-url>")
		}
		return protocol.EventImportDeck, protocol.ImportDeckRequest{RoomID: roomID, DeckURL: args[0]}, nil
	case "/hand":
		req := protocol.DrawInitialHandRequest{RoomID: roomID}
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return "", nil, fmt.Errorf("invalid hand size %q", args[0])
			}
			req.Count = n
		}
		return protocol.EventDrawInitialHand, req, nil
	case "/move":
		if len(args) < 3 || len(args) > 4 {
			return "", nil, errors.New("usage: /move <card-id> <from> <to> [top]")
		}
		req := protocol.MoveCardRequest{RoomID: roomID, CardID: args[0], From: args[1], To: args[2]}
		if len(args) == 4 {
			if args[3] != "top" {
				return "", nil, fmt.Errorf("unknown position %q", args[3])
			}
			top := 0
			req.Position = &top
		}
		return protocol.EventMoveCard, req, nil
	default:
		return "", nil, fmt.Errorf("unknown command %s", fields[0])
	}
}

func render(ev wireEvent) {
	switch ev.Type {
	case protocol.EventJoinRoomError, protocol.EventDeckImportError, protocol.EventDrawCardError, protocol.EventActionError:
		color.Red("[%s] %s", ev.Type, ev.Data)
	case protocol.EventChatMessage:
		var msg struct {
			PlayerName string `json:"playerName"`
			Message    string `json:"message"`
		}
		if json.Unmarshal(ev.Data, &msg) == nil {
			color.Cyan("%s: %s", msg.PlayerName, msg.Message)
			return
		}
		color.Cyan("[%s] %s", ev.Type, ev.Data)
	case protocol.EventPlayerJoined, protocol.EventPlayerLeft, protocol.EventRoomJoined:
		color.Green("[%s] %s", ev.Type, ev.Data)
	case protocol.EventCardMoved, protocol.EventGameStateUpdated:
		color.Yellow("[%s] %s", ev.Type, ev.Data)
	case protocol.EventZonesUpdated:
		// Too noisy to print in full; card-drawn and deck-imported carry the interesting part.
	default:
		color.White("[%s] %s", ev.Type, ev.Data)
	}
}
