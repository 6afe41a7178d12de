// Package session binds transport connections to rooms. It enforces one room
// per connection, routes inbound requests to the room and zone layers, and
// reports outcomes back through the room notifier.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	// ErrUnknownConnection is returned for requests from a connection that
	// never connected or has already been discarded.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrAlreadyInRoom is returned when a joined connection asks for a different room.
	ErrAlreadyInRoom = errors.New("already joined to another room")
	// ErrNotInRoom is returned when a request names a room the connection has not joined.
	ErrNotInRoom = errors.New("not joined to this room")
	// ErrUnknownEvent is returned by Dispatch for unrecognised event types.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrShuttingDown is returned for deck imports requested after Close.
	ErrShuttingDown = errors.New("server is shutting down")
)

const (
	defaultDisplayName = "Player"
	maxDisplayNameLen  = 64
	maxChatMessageLen  = 2000
)

// Session is the server-side state of one transport connection.
type Session struct {
	ConnectionID string

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	roomID      string
	displayName string
	closed      bool
}

func newSession(connectionID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{ConnectionID: connectionID, ctx: ctx, cancel: cancel}
}

// RoomID returns the joined room, if any.
func (s *Session) RoomID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.roomID != ""
}

// DisplayName returns the name used in the joined room.
func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// Context is cancelled when the connection is discarded.
func (s *Session) Context() context.Context {
	return s.ctx
}

func normalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultDisplayName
	}
	return truncateRunes(name, maxDisplayNameLen)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
