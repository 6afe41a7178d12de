// Package protocol defines the JSON event envelopes exchanged between
// tabletop clients and the server.
package protocol

import "encoding/json"

// Client to server event types.
const (
	EventJoinRoom        = "join-room"
	EventMoveCard        = "move-card"
	EventImportDeck      = "import-deck"
	EventDrawCard        = "draw-card"
	EventDrawInitialHand = "draw-initial-hand"
	EventShuffleLibrary  = "shuffle-library"
	EventChatMessage     = "chat-message"
	EventStartGame       = "start-game"
	EventPassTurn        = "pass-turn"
	EventEndGame         = "end-game"
)

// Server to client event types. EventChatMessage is used in both directions.
const (
	EventConnected        = "connected"
	EventRoomJoined       = "room-joined"
	EventJoinRoomError    = "join-room-error"
	EventPlayerJoined     = "player-joined"
	EventPlayerLeft       = "player-left"
	EventCardMoved        = "card-moved"
	EventDeckImported     = "deck-imported"
	EventDeckImportError  = "deck-import-error"
	EventCardDrawn        = "card-drawn"
	EventDrawCardError    = "draw-card-error"
	EventZonesUpdated     = "zones-updated"
	EventLibraryShuffled  = "library-shuffled"
	EventGameStateUpdated = "game-state-updated"
	EventActionError      = "action-error"
)

// Envelope is an inbound message whose payload is decoded lazily once the
// type is known.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Event is an outbound message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// NewEvent builds an outbound event.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Data: data}
}

// JoinRoomRequest asks to join (or create) a room.
type JoinRoomRequest struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
}

// MoveCardRequest reports a card movement already applied by the client.
type MoveCardRequest struct {
	RoomID   string `json:"roomId"`
	CardID   string `json:"cardId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Position *int   `json:"position,omitempty"`
}

// ImportDeckRequest asks the server to resolve a deck URL through the catalog.
type ImportDeckRequest struct {
	RoomID  string `json:"roomId"`
	DeckURL string `json:"deckUrl"`
}

// RoomRequest is the payload of requests that carry nothing but the room id.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// DrawInitialHandRequest asks for an opening hand of Count cards.
type DrawInitialHandRequest struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count,omitempty"`
}

// ChatRequest carries a chat line for the rest of the room.
type ChatRequest struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// ConnectedPayload tells a client its connection identifier.
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

// ErrorPayload is the body of the *-error events.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ActionErrorPayload reports a rejected request to its sender only.
type ActionErrorPayload struct {
	Action string `json:"action"`
	Error  string `json:"error"`
}
