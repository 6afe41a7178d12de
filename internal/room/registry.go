package room

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/magefree/tabletop-server/internal/zone"
	"go.uber.org/zap"
)

// Registry maps room identifiers to live rooms. A room exists from its first
// join until its last member leaves.
type Registry struct {
	notifier Notifier
	logger   *zap.Logger
	zoneOpts []zone.Option

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry. Rooms it creates deliver events
// through notifier.
func NewRegistry(notifier Notifier, logger *zap.Logger, zoneOpts ...zone.Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		notifier: notifier,
		logger:   logger,
		zoneOpts: zoneOpts,
		rooms:    make(map[string]*Room),
	}
}

// GenerateRoomID returns a fresh, globally unique room identifier.
func GenerateRoomID() string {
	return uuid.NewString()
}

// GetOrCreate returns the room for roomID, creating it if needed.
func (g *Registry) GetOrCreate(roomID string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getOrCreateLocked(roomID)
}

func (g *Registry) getOrCreateLocked(roomID string) *Room {
	if r, ok := g.rooms[roomID]; ok {
		return r
	}

	r := New(roomID, g.notifier, g.logger, g.zoneOpts...)
	g.rooms[roomID] = r

	g.logger.Info("room created",
		zap.String("room_id", roomID),
		zap.Int("room_count", len(g.rooms)),
	)
	return r
}

// Get returns the room for roomID if it exists.
func (g *Registry) Get(roomID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

// Join creates the room if necessary and joins it in one step, so the room
// cannot be removed between creation and the join.
func (g *Registry) Join(roomID, connectionID, displayName string) (*Room, JoinResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.getOrCreateLocked(roomID)
	result, added := r.Join(connectionID, displayName)
	return r, result, added
}

// Leave removes connectionID from the room and deletes the room once it is
// empty. Unknown rooms and connections are ignored.
func (g *Registry) Leave(roomID, connectionID string) (Member, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return Member{}, false
	}

	member, left := r.Leave(connectionID)
	g.removeIfEmptyLocked(roomID)
	return member, left
}

// RemoveIfEmpty deletes the room if it currently has no members.
func (g *Registry) RemoveIfEmpty(roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeIfEmptyLocked(roomID)
}

func (g *Registry) removeIfEmptyLocked(roomID string) bool {
	r, ok := g.rooms[roomID]
	if !ok || r.MemberCount() > 0 {
		return false
	}

	delete(g.rooms, roomID)

	g.logger.Info("room removed",
		zap.String("room_id", roomID),
		zap.Int("room_count", len(g.rooms)),
	)
	return true
}

// List returns a snapshot of every live room, ordered by id.
func (g *Registry) List() []Summary {
	g.mu.Lock()
	defer g.mu.Unlock()

	summaries := make([]Summary, 0, len(g.rooms))
	for _, r := range g.rooms {
		summaries = append(summaries, r.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID < summaries[j].ID
	})
	return summaries
}

// Count returns the number of live rooms.
func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
