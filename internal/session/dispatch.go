package session

import (
	"fmt"

	"github.com/magefree/tabletop-server/internal/protocol"
)

// Dispatch decodes an inbound envelope and routes it to its handler.
// Malformed or unknown events are answered with action-error.
func (m *Manager) Dispatch(connectionID string, env protocol.Envelope) error {
	switch env.Type {
	case protocol.EventJoinRoom:
		var req protocol.JoinRoomRequest
		if err := m.decode(connectionID, env, &req); err != nil {
			return err
		}
		return m.Join(connectionID, req)

	case protocol.EventMoveCard:
		var req protocol.MoveCardRequest
		if err := m.decode(connectionID, env, &req); err != nil {
			return err
		}
		return m.MoveCard(connectionID, req)

	case protocol.EventImportDeck:
		var req protocol.ImportDeckRequest
		if err := m.decode(connectionID, env, &req); err != nil {
			return err
		}
		return m.ImportDeck(connectionID, req)

	case protocol.EventDrawCard:
		var req protocol.RoomRequest
		if err := m.decode(connectionID, env, &req); err != nil {
			return err
		}
		return m.DrawCard(connectionID, req)

	case protocol.EventDrawInitialHand:
		var req protocol.DrawInitialHandRequest
		if err := m.decode(connectionID, env, &req); err != nil {
			return err
		}
		return m.DrawInitialHand(connectionID, req)

	case protocol.EventShuffleLibrary:
		var req protocol.RoomRequest
		if err := m.decode(connectionID, env, &req); err != nil {
			return err
		}
		return m.ShuffleLibrary(connectionID, req)

	case protocol.EventChatMessage:
		var req protocol.ChatRequest
		if err := m.decode(connectionID, env, &req); err != nil {
			return err
		}
		return m.Chat(connectionID, req)

	case protocol.EventStartGame, protocol.EventPassTurn, protocol.EventEndGame:
		var req protocol.RoomRequest
		if err := m.decode(connectionID, env, &req); err != nil {
			return err
		}
		switch env.Type {
		case protocol.EventStartGame:
			return m.StartGame(connectionID, req)
		case protocol.EventPassTurn:
			return m.PassTurn(connectionID, req)
		default:
			return m.EndGame(connectionID, req)
		}

	default:
		return m.reject(connectionID, protocol.EventActionError, env.Type, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type))
	}
}

func (m *Manager) decode(connectionID string, env protocol.Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return m.reject(connectionID, protocol.EventActionError, env.Type, fmt.Errorf("malformed %s payload: %w", env.Type, err))
	}
	return nil
}
