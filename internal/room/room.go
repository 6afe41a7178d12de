// Package room implements the shared session aggregate: roster, turn state
// and the relay of card movements between members.
package room

import (
	"errors"
	"sync"

	"github.com/magefree/tabletop-server/internal/protocol"
	"github.com/magefree/tabletop-server/internal/zone"
	"go.uber.org/zap"
)

var (
	// ErrNotMember is returned when a connection is not in the room.
	ErrNotMember = errors.New("not a member of this room")
	// ErrGameInProgress is returned when starting a game that is already running.
	ErrGameInProgress = errors.New("game already in progress")
	// ErrGameNotStarted is returned for turn operations outside the playing phase.
	ErrGameNotStarted = errors.New("game has not started")
	// ErrNotYourTurn is returned when a player passes a turn they do not hold.
	ErrNotYourTurn = errors.New("not your turn")
)

// Phase is the coarse lifecycle of a game within a room.
type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhasePlaying Phase = "playing"
	PhaseEnded   Phase = "ended"
)

// GameState is the shared, public state every member observes.
// A nil CurrentTurnIndex means no turn is active.
type GameState struct {
	Phase            Phase    `json:"phase"`
	TurnOrder        []string `json:"turnOrder"`
	CurrentTurnIndex *int     `json:"currentTurnIndex,omitempty"`
}

func (g GameState) clone() GameState {
	cp := GameState{Phase: g.Phase, TurnOrder: append([]string{}, g.TurnOrder...)}
	if g.CurrentTurnIndex != nil {
		idx := *g.CurrentTurnIndex
		cp.CurrentTurnIndex = &idx
	}
	return cp
}

// Member is the public view of a player.
type Member struct {
	Name         string `json:"name"`
	ConnectionID string `json:"connectionId"`
}

// Player is a room-scoped participant owning a private zone store.
type Player struct {
	ConnectionID string
	DisplayName  string
	zones        *zone.Store
}

func (p *Player) member() Member {
	return Member{Name: p.DisplayName, ConnectionID: p.ConnectionID}
}

// Notifier delivers events to a single connection. Implementations must not
// block; the room calls it while holding its lock so that broadcasts reach
// members in order.
type Notifier interface {
	Notify(connectionID string, event protocol.Event)
}

// JoinResult is what a joining connection is told about the room.
type JoinResult struct {
	RoomID    string    `json:"roomId"`
	Players   []Member  `json:"players"`
	GameState GameState `json:"gameState"`
}

// CardMoved is relayed to every member except the one that moved the card.
type CardMoved struct {
	OriginConnectionID string `json:"originConnectionId"`
	CardID             string `json:"cardId"`
	From               string `json:"from"`
	To                 string `json:"to"`
	Position           *int   `json:"position"`
}

// ChatMessage is a relayed chat line.
type ChatMessage struct {
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
}

// GameStateUpdated announces a phase or turn change.
type GameStateUpdated struct {
	GameState GameState `json:"gameState"`
}

// Summary is the diagnostic view of a room.
type Summary struct {
	ID          string `json:"id"`
	PlayerCount int    `json:"playerCount"`
	GamePhase   Phase  `json:"gamePhase"`
}

// Room is a session shared by a set of connected players.
type Room struct {
	id       string
	notifier Notifier
	logger   *zap.Logger
	zoneOpts []zone.Option

	mu      sync.Mutex
	players []*Player
	byConn  map[string]*Player
	state   GameState
}

// New creates an empty room in the waiting phase.
func New(id string, notifier Notifier, logger *zap.Logger, zoneOpts ...zone.Option) *Room {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Room{
		id:       id,
		notifier: notifier,
		logger:   logger.With(zap.String("room_id", id)),
		zoneOpts: zoneOpts,
		players:  make([]*Player, 0),
		byConn:   make(map[string]*Player),
		state:    GameState{Phase: PhaseWaiting, TurnOrder: make([]string, 0)},
	}
}

// ID returns the room identifier.
func (r *Room) ID() string {
	return r.id
}

// Join adds a player with an empty zone store and sends the joiner the
// room-joined snapshot before any later broadcast can reach it. Joining twice
// with the same connection resends the snapshot without mutating; the bool
// reports whether a player was added.
func (r *Room) Join(connectionID, displayName string) (JoinResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[connectionID]; exists {
		result := r.joinResultLocked()
		r.notifyLocked(connectionID, protocol.NewEvent(protocol.EventRoomJoined, result))
		return result, false
	}

	p := &Player{
		ConnectionID: connectionID,
		DisplayName:  displayName,
		zones:        zone.NewStore(r.zoneOpts...),
	}
	r.players = append(r.players, p)
	r.byConn[connectionID] = p

	result := r.joinResultLocked()
	r.notifyLocked(connectionID, protocol.NewEvent(protocol.EventRoomJoined, result))
	r.broadcastLocked(connectionID, protocol.NewEvent(protocol.EventPlayerJoined, p.member()))

	r.logger.Info("player joined room",
		zap.String("connection_id", connectionID),
		zap.String("display_name", displayName),
		zap.Int("player_count", len(r.players)),
	)

	return result, true
}

// Leave removes a player and tells the remaining members. Unknown
// connections are ignored.
func (r *Room) Leave(connectionID string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.byConn[connectionID]
	if !exists {
		return Member{}, false
	}

	delete(r.byConn, connectionID)
	for i, candidate := range r.players {
		if candidate == p {
			r.players = append(r.players[:i], r.players[i+1:]...)
			break
		}
	}

	r.broadcastLocked(connectionID, protocol.NewEvent(protocol.EventPlayerLeft, p.member()))

	r.logger.Info("player left room",
		zap.String("connection_id", connectionID),
		zap.String("display_name", p.DisplayName),
		zap.Int("player_count", len(r.players)),
	)

	return p.member(), true
}

// BroadcastCardMoved relays a movement the origin has already applied.
func (r *Room) BroadcastCardMoved(originConnectionID, cardID string, from, to zone.Zone, position *int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[originConnectionID]; !exists {
		return
	}

	r.broadcastLocked(originConnectionID, protocol.NewEvent(protocol.EventCardMoved, CardMoved{
		OriginConnectionID: originConnectionID,
		CardID:             cardID,
		From:               from.String(),
		To:                 to.String(),
		Position:           position,
	}))
}

// RelayChat forwards a chat line under the origin's display name.
func (r *Room) RelayChat(originConnectionID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.byConn[originConnectionID]
	if !exists {
		return
	}

	r.broadcastLocked(originConnectionID, protocol.NewEvent(protocol.EventChatMessage, ChatMessage{
		PlayerName: p.DisplayName,
		Message:    text,
	}))
}

// WithZones runs fn against the zone store owned by connectionID while the
// room is locked, so the player cannot leave mid-mutation.
func (r *Room) WithZones(connectionID string, fn func(*zone.Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.byConn[connectionID]
	if !exists {
		return ErrNotMember
	}
	return fn(p.zones)
}

// StartGame moves the room into the playing phase. Turn order is the
// current roster in join order and the first joiner takes the first turn.
func (r *Room) StartGame(connectionID string) (GameState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[connectionID]; !exists {
		return GameState{}, ErrNotMember
	}
	if r.state.Phase == PhasePlaying {
		return GameState{}, ErrGameInProgress
	}

	order := make([]string, 0, len(r.players))
	for _, p := range r.players {
		order = append(order, p.ConnectionID)
	}
	first := 0
	r.state = GameState{Phase: PhasePlaying, TurnOrder: order, CurrentTurnIndex: &first}

	r.logger.Info("game started", zap.Strings("turn_order", order))
	return r.publishStateLocked(), nil
}

// PassTurn advances the turn to the next seated player still in the room.
// Only the player on turn may pass, unless that player has already left.
func (r *Room) PassTurn(connectionID string) (GameState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[connectionID]; !exists {
		return GameState{}, ErrNotMember
	}
	if r.state.Phase != PhasePlaying || r.state.CurrentTurnIndex == nil {
		return GameState{}, ErrGameNotStarted
	}

	roster := r.membersLocked()
	if current, ok := OnTurnPlayer(r.state, roster); ok && current.ConnectionID != connectionID {
		return GameState{}, ErrNotYourTurn
	}

	n := len(r.state.TurnOrder)
	idx := *r.state.CurrentTurnIndex
	for step := 1; step <= n; step++ {
		candidate := (idx + step) % n
		if _, seated := r.byConn[r.state.TurnOrder[candidate]]; seated {
			idx = candidate
			break
		}
	}
	r.state.CurrentTurnIndex = &idx

	r.logger.Debug("turn passed",
		zap.String("connection_id", connectionID),
		zap.Int("current_turn_index", idx),
	)
	return r.publishStateLocked(), nil
}

// EndGame moves a playing room into the ended phase.
func (r *Room) EndGame(connectionID string) (GameState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[connectionID]; !exists {
		return GameState{}, ErrNotMember
	}
	if r.state.Phase != PhasePlaying {
		return GameState{}, ErrGameNotStarted
	}

	r.state.Phase = PhaseEnded
	r.state.CurrentTurnIndex = nil

	r.logger.Info("game ended", zap.String("connection_id", connectionID))
	return r.publishStateLocked(), nil
}

// Members returns the roster in join order.
func (r *Room) Members() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersLocked()
}

// HasMember reports whether connectionID is in the roster.
func (r *Room) HasMember(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.byConn[connectionID]
	return exists
}

// MemberCount returns the number of players.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// GameState returns a copy of the shared game state.
func (r *Room) GameState() GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Summary returns the diagnostic view of the room.
func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{ID: r.id, PlayerCount: len(r.players), GamePhase: r.state.Phase}
}

// ZoneCounts returns the content-free zone sizes of every player.
func (r *Room) ZoneCounts() map[string]zone.Counts {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]zone.Counts, len(r.players))
	for _, p := range r.players {
		counts[p.ConnectionID] = p.zones.Counts()
	}
	return counts
}

// OnTurnPlayer returns the player whose turn it is.
func (r *Room) OnTurnPlayer() (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return OnTurnPlayer(r.state, r.membersLocked())
}

// PreviousTurnPlayer returns the player who held the previous turn.
func (r *Room) PreviousTurnPlayer() (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return PreviousTurnPlayer(r.state, r.membersLocked())
}

// PreviewSeats returns the players seated either side of the player on turn.
func (r *Room) PreviewSeats() Seats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return PreviewSeats(r.state, r.membersLocked())
}

func (r *Room) joinResultLocked() JoinResult {
	return JoinResult{RoomID: r.id, Players: r.membersLocked(), GameState: r.state.clone()}
}

func (r *Room) membersLocked() []Member {
	members := make([]Member, 0, len(r.players))
	for _, p := range r.players {
		members = append(members, p.member())
	}
	return members
}

func (r *Room) publishStateLocked() GameState {
	state := r.state.clone()
	r.broadcastLocked("", protocol.NewEvent(protocol.EventGameStateUpdated, GameStateUpdated{GameState: state}))
	return state
}

func (r *Room) notifyLocked(connectionID string, event protocol.Event) {
	if r.notifier != nil {
		r.notifier.Notify(connectionID, event)
	}
}

// broadcastLocked sends event to every member except the excluded connection.
func (r *Room) broadcastLocked(exclude string, event protocol.Event) {
	if r.notifier == nil {
		return
	}
	for _, p := range r.players {
		if p.ConnectionID == exclude {
			continue
		}
		r.notifier.Notify(p.ConnectionID, event)
	}
}
