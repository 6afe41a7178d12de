package room

import (
	"errors"
	"testing"

	"github.com/magefree/tabletop-server/internal/protocol"
	"github.com/magefree/tabletop-server/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRoom(t *testing.T) (*Room, *recordingNotifier) {
	notifier := newRecordingNotifier()
	return New("ABCD", notifier, zaptest.NewLogger(t)), notifier
}

func TestRoomJoin(t *testing.T) {
	r, notifier := newTestRoom(t)

	first, added := r.Join("conn1", "Alice")
	require.True(t, added)
	assert.Equal(t, "ABCD", first.RoomID)
	assert.Equal(t, []Member{{Name: "Alice", ConnectionID: "conn1"}}, first.Players)
	assert.Equal(t, PhaseWaiting, first.GameState.Phase)
	assert.Nil(t, first.GameState.CurrentTurnIndex)

	second, added := r.Join("conn2", "Bob")
	require.True(t, added)
	assert.Equal(t, []Member{
		{Name: "Alice", ConnectionID: "conn1"},
		{Name: "Bob", ConnectionID: "conn2"},
	}, second.Players)

	joined := notifier.of("conn1", protocol.EventPlayerJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, Member{Name: "Bob", ConnectionID: "conn2"}, joined[0].Data)
	assert.Empty(t, notifier.of("conn2", protocol.EventPlayerJoined), "joiner is not told about itself")

	snapshot := notifier.of("conn2", protocol.EventRoomJoined)
	require.Len(t, snapshot, 1)
	assert.Equal(t, second, snapshot[0].Data)
}

func TestRoomJoinIsIdempotent(t *testing.T) {
	r, notifier := newTestRoom(t)
	r.Join("conn1", "Alice")

	first, added := r.Join("conn2", "Bob")
	require.True(t, added)
	again, added := r.Join("conn2", "Bobby")
	assert.False(t, added)

	assert.Equal(t, first, again)
	assert.Equal(t, 2, r.MemberCount())
	assert.Len(t, notifier.of("conn1", protocol.EventPlayerJoined), 1)
	assert.Len(t, notifier.of("conn2", protocol.EventRoomJoined), 2, "repeat join resends the snapshot")
}

func TestRoomLeave(t *testing.T) {
	r, notifier := newTestRoom(t)
	r.Join("conn1", "Alice")
	r.Join("conn2", "Bob")

	member, left := r.Leave("conn1")
	require.True(t, left)
	assert.Equal(t, Member{Name: "Alice", ConnectionID: "conn1"}, member)

	events := notifier.of("conn2", protocol.EventPlayerLeft)
	require.Len(t, events, 1)
	assert.Equal(t, member, events[0].Data)

	_, left = r.Leave("conn1")
	assert.False(t, left)
	_, left = r.Leave("never-joined")
	assert.False(t, left)
	assert.Len(t, notifier.of("conn2", protocol.EventPlayerLeft), 1)
	assert.Equal(t, []Member{{Name: "Bob", ConnectionID: "conn2"}}, r.Members())
}

func TestRoomBroadcastCardMovedSkipsOrigin(t *testing.T) {
	r, notifier := newTestRoom(t)
	r.Join("conn1", "Alice")
	r.Join("conn2", "Bob")
	r.Join("conn3", "Carol")

	top := 0
	r.BroadcastCardMoved("conn1", "card-1", zone.Hand, zone.Library, &top)

	assert.Empty(t, notifier.of("conn1", protocol.EventCardMoved))
	for _, conn := range []string{"conn2", "conn3"} {
		events := notifier.of(conn, protocol.EventCardMoved)
		require.Len(t, events, 1)
		assert.Equal(t, CardMoved{
			OriginConnectionID: "conn1",
			CardID:             "card-1",
			From:               "hand",
			To:                 "library",
			Position:           &top,
		}, events[0].Data)
	}
}

func TestRoomIgnoresUnknownOrigin(t *testing.T) {
	r, notifier := newTestRoom(t)
	r.Join("conn1", "Alice")
	before := notifier.count("conn1")

	r.BroadcastCardMoved("ghost", "card-1", zone.Hand, zone.Graveyard, nil)
	r.RelayChat("ghost", "boo")

	assert.Equal(t, before, notifier.count("conn1"))

	err := r.WithZones("ghost", func(*zone.Store) error { return nil })
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestRoomRelayChat(t *testing.T) {
	r, notifier := newTestRoom(t)
	r.Join("conn1", "Alice")
	r.Join("conn2", "Bob")

	r.RelayChat("conn2", "gg")

	events := notifier.of("conn1", protocol.EventChatMessage)
	require.Len(t, events, 1)
	assert.Equal(t, ChatMessage{PlayerName: "Bob", Message: "gg"}, events[0].Data)
	assert.Empty(t, notifier.of("conn2", protocol.EventChatMessage))
}

func TestRoomWithZonesIsPerPlayer(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Join("conn1", "Alice")
	r.Join("conn2", "Bob")

	deck := &zone.Deck{Name: "D", Cards: []zone.DeckCard{{Name: "Forest", Quantity: 3}}}
	require.NoError(t, r.WithZones("conn1", func(s *zone.Store) error { return s.ImportDeck(deck) }))

	counts := r.ZoneCounts()
	assert.Equal(t, 3, counts["conn1"].Library)
	assert.Equal(t, 0, counts["conn2"].Library)

	sentinel := errors.New("boom")
	assert.ErrorIs(t, r.WithZones("conn2", func(*zone.Store) error { return sentinel }), sentinel)
}

func TestRoomTurnLifecycle(t *testing.T) {
	r, notifier := newTestRoom(t)
	r.Join("conn1", "Alice")
	r.Join("conn2", "Bob")
	r.Join("conn3", "Carol")

	_, err := r.PassTurn("conn1")
	assert.ErrorIs(t, err, ErrGameNotStarted)

	state, err := r.StartGame("conn2")
	require.NoError(t, err)
	assert.Equal(t, PhasePlaying, state.Phase)
	assert.Equal(t, []string{"conn1", "conn2", "conn3"}, state.TurnOrder)
	require.NotNil(t, state.CurrentTurnIndex)
	assert.Equal(t, 0, *state.CurrentTurnIndex)
	for _, conn := range []string{"conn1", "conn2", "conn3"} {
		assert.Len(t, notifier.of(conn, protocol.EventGameStateUpdated), 1)
	}

	_, err = r.StartGame("conn1")
	assert.ErrorIs(t, err, ErrGameInProgress)

	_, err = r.PassTurn("conn2")
	assert.ErrorIs(t, err, ErrNotYourTurn)

	state, err = r.PassTurn("conn1")
	require.NoError(t, err)
	assert.Equal(t, 1, *state.CurrentTurnIndex)

	onTurn, ok := r.OnTurnPlayer()
	require.True(t, ok)
	assert.Equal(t, "Bob", onTurn.Name)

	seats := r.PreviewSeats()
	require.NotNil(t, seats.Left)
	require.NotNil(t, seats.Right)
	assert.Equal(t, "Alice", seats.Left.Name)
	assert.Equal(t, "Carol", seats.Right.Name)

	state, err = r.EndGame("conn3")
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, state.Phase)
	assert.Nil(t, state.CurrentTurnIndex)

	_, err = r.EndGame("conn3")
	assert.ErrorIs(t, err, ErrGameNotStarted)
}

func TestRoomPassTurnSkipsDepartedPlayers(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Join("conn1", "Alice")
	r.Join("conn2", "Bob")
	r.Join("conn3", "Carol")
	_, err := r.StartGame("conn1")
	require.NoError(t, err)

	r.Leave("conn2")

	state, err := r.PassTurn("conn1")
	require.NoError(t, err)
	assert.Equal(t, 2, *state.CurrentTurnIndex)

	r.Leave("conn3")

	_, ok := r.OnTurnPlayer()
	assert.False(t, ok, "on-turn player has left")

	state, err = r.PassTurn("conn1")
	require.NoError(t, err, "anyone may pass a turn held by a departed player")
	assert.Equal(t, 0, *state.CurrentTurnIndex)
}
