package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/magefree/tabletop-server/internal/catalog"
	"github.com/magefree/tabletop-server/internal/protocol"
	"github.com/magefree/tabletop-server/internal/room"
	"github.com/magefree/tabletop-server/internal/zone"
	"go.uber.org/zap"
)

// Options tunes request handling.
type Options struct {
	// InitialHandSize is used when a draw-initial-hand request gives no count.
	InitialHandSize int
	// StrictInvariants panics on a zone invariant violation instead of logging it.
	StrictInvariants bool
}

// Manager tracks live sessions and handles their requests.
type Manager struct {
	registry *room.Registry
	catalog  catalog.Adapter
	notifier room.Notifier
	logger   *zap.Logger
	opts     Options

	sessions map[string]*Session
	closing  bool
	mu       sync.RWMutex
	imports  sync.WaitGroup
}

// NewManager creates a session manager. notifier must be the same one the
// registry hands to its rooms.
func NewManager(registry *room.Registry, adapter catalog.Adapter, notifier room.Notifier, logger *zap.Logger, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.InitialHandSize <= 0 {
		opts.InitialHandSize = zone.DefaultInitialHandSize
	}
	return &Manager{
		registry: registry,
		catalog:  adapter,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Connect registers a new connection in the unjoined state. Connecting an id
// that is already live returns the existing session.
func (m *Manager) Connect(connectionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.sessions[connectionID]; exists {
		return s
	}
	s := newSession(connectionID)
	m.sessions[connectionID] = s

	m.logger.Debug("session connected", zap.String("connection_id", connectionID))
	return s
}

// Disconnect discards a connection: any in-flight import is cancelled, the
// player leaves its room and an emptied room is removed. Safe to call twice.
func (m *Manager) Disconnect(connectionID string) {
	m.mu.Lock()
	s, exists := m.sessions[connectionID]
	delete(m.sessions, connectionID)
	m.mu.Unlock()

	if !exists {
		return
	}
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	roomID := s.roomID
	s.roomID = ""
	if roomID == "" {
		m.logger.Debug("session disconnected", zap.String("connection_id", connectionID))
		return
	}

	member, left := m.registry.Leave(roomID, connectionID)
	m.logger.Info("session disconnected",
		zap.String("connection_id", connectionID),
		zap.String("room_id", roomID),
		zap.String("display_name", member.Name),
		zap.Bool("left_room", left),
	)
}

// Session returns the live session for connectionID.
func (m *Manager) Session(connectionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[connectionID]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Wait blocks until every deck import started so far has finished.
func (m *Manager) Wait() {
	m.imports.Wait()
}

// Close stops the manager from starting new deck imports and waits for the
// ones in flight. Requests other than imports are still served.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	m.imports.Wait()
	m.logger.Debug("session manager closed")
}

// startImport registers an import unless the manager is closing. The
// WaitGroup is only added to under m.mu so Close never races an Add.
func (m *Manager) startImport() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	m.imports.Add(1)
	return true
}

// Join places the connection in req.RoomID, creating the room on first join.
// A blank room id gets a generated one. The room itself sends room-joined.
func (m *Manager) Join(connectionID string, req protocol.JoinRoomRequest) error {
	s, ok := m.Session(connectionID)
	if !ok {
		return ErrUnknownConnection
	}

	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		roomID = room.GenerateRoomID()
	}
	name := normalizeDisplayName(req.PlayerName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrUnknownConnection
	}
	if s.roomID != "" && s.roomID != roomID {
		m.reject(connectionID, protocol.EventJoinRoomError, "", ErrAlreadyInRoom)
		m.logger.Warn("join rejected",
			zap.String("connection_id", connectionID),
			zap.String("room_id", s.roomID),
			zap.String("requested_room_id", roomID),
		)
		return ErrAlreadyInRoom
	}

	if _, _, added := m.registry.Join(roomID, connectionID, name); added || s.displayName == "" {
		s.displayName = name
	}
	s.roomID = roomID
	return nil
}

// MoveCard applies a movement to the sender's zones and relays it to the
// rest of the room. Failed moves are reported to the sender only.
func (m *Manager) MoveCard(connectionID string, req protocol.MoveCardRequest) error {
	r, err := m.joinedRoom(connectionID, req.RoomID)
	if err != nil {
		return m.reject(connectionID, protocol.EventActionError, protocol.EventMoveCard, err)
	}

	from, err := zone.ParseZone(req.From)
	if err != nil {
		return m.reject(connectionID, protocol.EventActionError, protocol.EventMoveCard, err)
	}
	to, err := zone.ParseZone(req.To)
	if err != nil {
		return m.reject(connectionID, protocol.EventActionError, protocol.EventMoveCard, err)
	}

	err = r.WithZones(connectionID, func(z *zone.Store) error {
		if _, err := z.MoveCard(req.CardID, from, to, zone.PositionFromHint(req.Position)); err != nil {
			return err
		}
		m.afterMutation(r.ID(), connectionID, z)
		return nil
	})
	if err != nil {
		return m.reject(connectionID, protocol.EventActionError, protocol.EventMoveCard, err)
	}

	r.BroadcastCardMoved(connectionID, req.CardID, from, to, req.Position)
	return nil
}

// ImportDeck resolves req.DeckURL in the background and replaces the
// sender's zones with the result. It returns once the resolution is started.
func (m *Manager) ImportDeck(connectionID string, req protocol.ImportDeckRequest) error {
	r, err := m.joinedRoom(connectionID, req.RoomID)
	if err != nil {
		return m.reject(connectionID, protocol.EventDeckImportError, "", err)
	}
	s, ok := m.Session(connectionID)
	if !ok {
		return ErrUnknownConnection
	}

	if !m.startImport() {
		return m.reject(connectionID, protocol.EventDeckImportError, "", ErrShuttingDown)
	}
	go func() {
		defer m.imports.Done()
		m.runImport(s, r, req.DeckURL)
	}()
	return nil
}

func (m *Manager) runImport(s *Session, r *room.Room, deckURL string) {
	logger := m.logger.With(
		zap.String("connection_id", s.ConnectionID),
		zap.String("room_id", r.ID()),
		zap.String("deck_url", deckURL),
	)

	deck, err := m.catalog.Resolve(s.Context(), deckURL)
	if s.Context().Err() != nil {
		logger.Debug("deck import discarded, connection closed")
		return
	}
	if err != nil {
		logger.Warn("deck import failed", zap.String("kind", string(catalog.KindOf(err))), zap.Error(err))
		m.notifier.Notify(s.ConnectionID, protocol.NewEvent(protocol.EventDeckImportError, protocol.ErrorPayload{
			Error: catalog.UserMessage(err),
		}))
		return
	}

	err = r.WithZones(s.ConnectionID, func(z *zone.Store) error {
		if err := z.ImportDeck(deck); err != nil {
			return err
		}
		m.notifier.Notify(s.ConnectionID, protocol.NewEvent(protocol.EventDeckImported, DeckImported{Deck: deck}))
		m.afterMutation(r.ID(), s.ConnectionID, z)
		return nil
	})
	switch {
	case errors.Is(err, room.ErrNotMember):
		logger.Debug("deck import discarded, player left room")
	case err != nil:
		logger.Warn("deck import rejected", zap.Error(err))
		m.notifier.Notify(s.ConnectionID, protocol.NewEvent(protocol.EventDeckImportError, protocol.ErrorPayload{
			Error: "Deck could not be loaded",
		}))
	default:
		logger.Info("deck imported", zap.String("deck_name", deck.Name), zap.Int("cards", deck.Size()))
	}
}

// DrawCard moves the top library card to the sender's hand.
func (m *Manager) DrawCard(connectionID string, req protocol.RoomRequest) error {
	r, err := m.joinedRoom(connectionID, req.RoomID)
	if err != nil {
		return m.reject(connectionID, protocol.EventDrawCardError, "", err)
	}

	var drawn zone.Card
	err = r.WithZones(connectionID, func(z *zone.Store) error {
		card, err := z.DrawOne()
		if err != nil {
			return err
		}
		drawn = card
		m.notifier.Notify(connectionID, protocol.NewEvent(protocol.EventCardDrawn, CardDrawn{
			Card:           card,
			RemainingCards: z.Remaining(),
		}))
		m.afterMutation(r.ID(), connectionID, z)
		return nil
	})
	if err != nil {
		return m.reject(connectionID, protocol.EventDrawCardError, "", err)
	}

	r.BroadcastCardMoved(connectionID, drawn.ID, zone.Library, zone.Hand, nil)
	return nil
}

// DrawInitialHand draws an opening hand. Fewer cards are drawn when the
// library runs out.
func (m *Manager) DrawInitialHand(connectionID string, req protocol.DrawInitialHandRequest) error {
	r, err := m.joinedRoom(connectionID, req.RoomID)
	if err != nil {
		return m.reject(connectionID, protocol.EventActionError, protocol.EventDrawInitialHand, err)
	}

	count := req.Count
	if count <= 0 {
		count = m.opts.InitialHandSize
	}

	var drawn []zone.Card
	err = r.WithZones(connectionID, func(z *zone.Store) error {
		drawn = z.DrawInitialHand(count)
		m.afterMutation(r.ID(), connectionID, z)
		return nil
	})
	if err != nil {
		return m.reject(connectionID, protocol.EventActionError, protocol.EventDrawInitialHand, err)
	}

	for _, card := range drawn {
		r.BroadcastCardMoved(connectionID, card.ID, zone.Library, zone.Hand, nil)
	}
	return nil
}

// ShuffleLibrary reorders the sender's library.
func (m *Manager) ShuffleLibrary(connectionID string, req protocol.RoomRequest) error {
	r, err := m.joinedRoom(connectionID, req.RoomID)
	if err != nil {
		return m.reject(connectionID, protocol.EventActionError, protocol.EventShuffleLibrary, err)
	}

	err = r.WithZones(connectionID, func(z *zone.Store) error {
		z.ShuffleLibrary()
		m.notifier.Notify(connectionID, protocol.NewEvent(protocol.EventLibraryShuffled, LibraryShuffled{
			RemainingCards: z.Remaining(),
		}))
		m.afterMutation(r.ID(), connectionID, z)
		return nil
	})
	if err != nil {
		return m.reject(connectionID, protocol.EventActionError, protocol.EventShuffleLibrary, err)
	}
	return nil
}

// Chat relays a chat line to the rest of the room. Blank lines are dropped.
func (m *Manager) Chat(connectionID string, req protocol.ChatRequest) error {
	r, err := m.joinedRoom(connectionID, req.RoomID)
	if err != nil {
		return m.reject(connectionID, protocol.EventActionError, protocol.EventChatMessage, err)
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil
	}
	r.RelayChat(connectionID, truncateRunes(text, maxChatMessageLen))
	return nil
}

// StartGame begins a game with the current roster as turn order.
func (m *Manager) StartGame(connectionID string, req protocol.RoomRequest) error {
	return m.turnAction(connectionID, req.RoomID, protocol.EventStartGame, (*room.Room).StartGame)
}

// PassTurn hands the turn to the next seated player.
func (m *Manager) PassTurn(connectionID string, req protocol.RoomRequest) error {
	return m.turnAction(connectionID, req.RoomID, protocol.EventPassTurn, (*room.Room).PassTurn)
}

// EndGame ends the running game.
func (m *Manager) EndGame(connectionID string, req protocol.RoomRequest) error {
	return m.turnAction(connectionID, req.RoomID, protocol.EventEndGame, (*room.Room).EndGame)
}

func (m *Manager) turnAction(connectionID, roomID, action string, fn func(*room.Room, string) (room.GameState, error)) error {
	r, err := m.joinedRoom(connectionID, roomID)
	if err != nil {
		return m.reject(connectionID, protocol.EventActionError, action, err)
	}
	if _, err := fn(r, connectionID); err != nil {
		return m.reject(connectionID, protocol.EventActionError, action, err)
	}
	return nil
}

// joinedRoom resolves the room a request may act on. The client-supplied
// room id must name the room this connection joined.
func (m *Manager) joinedRoom(connectionID, requestedRoomID string) (*room.Room, error) {
	s, ok := m.Session(connectionID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	roomID, joined := s.RoomID()
	if !joined || roomID != strings.TrimSpace(requestedRoomID) {
		return nil, ErrNotInRoom
	}
	r, ok := m.registry.Get(roomID)
	if !ok {
		return nil, ErrNotInRoom
	}
	return r, nil
}

// afterMutation sends the owner its zones and checks the store invariants.
// It runs under the room lock.
func (m *Manager) afterMutation(roomID, connectionID string, z *zone.Store) {
	if err := z.Verify(); err != nil {
		m.logger.Error("zone invariant violated",
			zap.String("room_id", roomID),
			zap.String("connection_id", connectionID),
			zap.Error(err),
		)
		if m.opts.StrictInvariants {
			panic(fmt.Sprintf("zone invariant violated for %s in room %s: %v", connectionID, roomID, err))
		}
	}
	m.notifier.Notify(connectionID, protocol.NewEvent(protocol.EventZonesUpdated, ZonesUpdated{Zones: z.Zones()}))
}

// reject reports err to the requester only and returns it. action is set on
// action-error events.
func (m *Manager) reject(connectionID, eventType, action string, err error) error {
	if errors.Is(err, ErrUnknownConnection) {
		return err
	}

	var payload any = protocol.ErrorPayload{Error: err.Error()}
	if eventType == protocol.EventActionError {
		payload = protocol.ActionErrorPayload{Action: action, Error: err.Error()}
	}
	m.notifier.Notify(connectionID, protocol.NewEvent(eventType, payload))

	m.logger.Debug("request rejected",
		zap.String("connection_id", connectionID),
		zap.String("event", eventType),
		zap.String("action", action),
		zap.Error(err),
	)
	return err
}
