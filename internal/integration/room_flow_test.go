package integration

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/magefree/tabletop-server/internal/catalog"
	"github.com/magefree/tabletop-server/internal/protocol"
	"github.com/magefree/tabletop-server/internal/room"
	"github.com/magefree/tabletop-server/internal/session"
	"github.com/magefree/tabletop-server/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type inbox struct {
	mu     sync.Mutex
	events map[string][]protocol.Event
}

func (in *inbox) Notify(connectionID string, event protocol.Event) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.events[connectionID] = append(in.events[connectionID], event)
}

func (in *inbox) received(connectionID, eventType string) []protocol.Event {
	in.mu.Lock()
	defer in.mu.Unlock()
	var out []protocol.Event
	for _, ev := range in.events[connectionID] {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type roomFlowEnv struct {
	inbox    *inbox
	registry *room.Registry
	sessions *session.Manager
}

func newRoomFlowEnv(t testing.TB, adapter catalog.Adapter, logger *zap.Logger) *roomFlowEnv {
	in := &inbox{events: make(map[string][]protocol.Event)}
	registry := room.NewRegistry(in, logger)
	return &roomFlowEnv{
		inbox:    in,
		registry: registry,
		sessions: session.NewManager(registry, adapter, in, logger, session.Options{StrictInvariants: true}),
	}
}

func TestTwoPlayerRoomScenario(t *testing.T) {
	deck := &zone.Deck{Name: "Pair", Cards: []zone.DeckCard{
		{Name: "Sol Ring", Quantity: 1},
		{Name: "Mountain", Quantity: 1},
	}}
	env := newRoomFlowEnv(t, catalog.NewStaticAdapter(deck), zaptest.NewLogger(t))
	sessions := env.sessions

	sessions.Connect("conn1")
	sessions.Connect("conn2")
	require.NoError(t, sessions.Join("conn1", protocol.JoinRoomRequest{RoomID: "ABCD", PlayerName: "Alice"}))
	require.NoError(t, sessions.Join("conn2", protocol.JoinRoomRequest{RoomID: "ABCD", PlayerName: "Bob"}))

	bobJoined := env.inbox.received("conn2", protocol.EventRoomJoined)
	require.Len(t, bobJoined, 1)
	assert.Equal(t, []room.Member{
		{Name: "Alice", ConnectionID: "conn1"},
		{Name: "Bob", ConnectionID: "conn2"},
	}, bobJoined[0].Data.(room.JoinResult).Players)

	aliceHeard := env.inbox.received("conn1", protocol.EventPlayerJoined)
	require.Len(t, aliceHeard, 1)
	assert.Equal(t, room.Member{Name: "Bob", ConnectionID: "conn2"}, aliceHeard[0].Data)

	require.NoError(t, sessions.ImportDeck("conn1", protocol.ImportDeckRequest{RoomID: "ABCD", DeckURL: "https://moxfield.com/decks/pair"}))
	sessions.Wait()

	r, ok := env.registry.Get("ABCD")
	require.True(t, ok)
	assert.Equal(t, zone.Counts{Library: 2}, r.ZoneCounts()["conn1"])

	require.NoError(t, sessions.DrawCard("conn1", protocol.RoomRequest{RoomID: "ABCD"}))
	drawn := env.inbox.received("conn1", protocol.EventCardDrawn)
	require.Len(t, drawn, 1)
	card := drawn[0].Data.(session.CardDrawn).Card
	assert.False(t, card.FaceDown)
	assert.Contains(t, []string{"Sol Ring", "Mountain"}, card.Name)
	assert.Equal(t, zone.Counts{Hand: 1, Library: 1}, r.ZoneCounts()["conn1"])

	require.NoError(t, sessions.MoveCard("conn1", protocol.MoveCardRequest{
		RoomID: "ABCD", CardID: card.ID, From: "hand", To: "graveyard",
	}))
	assert.Equal(t, zone.Counts{Graveyard: 1, Library: 1}, r.ZoneCounts()["conn1"])

	bobSaw := env.inbox.received("conn2", protocol.EventCardMoved)
	require.NotEmpty(t, bobSaw)
	assert.Equal(t, room.CardMoved{
		OriginConnectionID: "conn1",
		CardID:             card.ID,
		From:               "hand",
		To:                 "graveyard",
	}, bobSaw[len(bobSaw)-1].Data)
	assert.Empty(t, env.inbox.received("conn2", protocol.EventZonesUpdated))
	assert.Empty(t, env.inbox.received("conn2", protocol.EventDeckImported))

	sessions.Disconnect("conn1")
	left := env.inbox.received("conn2", protocol.EventPlayerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, room.Member{Name: "Alice", ConnectionID: "conn1"}, left[0].Data)

	sessions.Disconnect("conn2")
	_, exists := env.registry.Get("ABCD")
	assert.False(t, exists)
}

func TestTurnRotationAcrossDepartures(t *testing.T) {
	env := newRoomFlowEnv(t, catalog.NewPlaceholderAdapter(), zaptest.NewLogger(t))
	sessions := env.sessions
	req := protocol.RoomRequest{RoomID: "TURNS"}

	for i, name := range []string{"Alice", "Bob", "Cara"} {
		conn := fmt.Sprintf("conn%d", i+1)
		sessions.Connect(conn)
		require.NoError(t, sessions.Join(conn, protocol.JoinRoomRequest{RoomID: "TURNS", PlayerName: name}))
	}
	require.NoError(t, sessions.StartGame("conn1", req))

	r, _ := env.registry.Get("TURNS")
	seats := r.PreviewSeats()
	require.NotNil(t, seats.Left)
	require.NotNil(t, seats.Right)
	assert.Equal(t, "Cara", seats.Left.Name)
	assert.Equal(t, "Bob", seats.Right.Name)

	sessions.Disconnect("conn2")
	require.NoError(t, sessions.PassTurn("conn1", req))
	onTurn, ok := r.OnTurnPlayer()
	require.True(t, ok)
	assert.Equal(t, "Cara", onTurn.Name, "departed players are skipped")

	prev, ok := r.PreviousTurnPlayer()
	assert.False(t, ok, "previous seat belongs to a departed player")
	assert.Equal(t, room.Member{}, prev)

	require.NoError(t, sessions.PassTurn("conn3", req))
	onTurn, _ = r.OnTurnPlayer()
	assert.Equal(t, "Alice", onTurn.Name)

	for _, conn := range []string{"conn1", "conn3"} {
		assert.Len(t, env.inbox.received(conn, protocol.EventGameStateUpdated), 3)
	}
}

func TestRandomSessionChurnLeavesNoRooms(t *testing.T) {
	env := newRoomFlowEnv(t, catalog.NewPlaceholderAdapter(), zap.NewNop())
	sessions := env.sessions
	rooms := []string{"R1", "R2", "R3"}

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(worker), 7))
			for i := 0; i < 50; i++ {
				conn := fmt.Sprintf("w%d-%d", worker, i)
				roomID := rooms[rng.IntN(len(rooms))]
				sessions.Connect(conn)
				_ = sessions.Join(conn, protocol.JoinRoomRequest{RoomID: roomID, PlayerName: conn})
				_ = sessions.ImportDeck(conn, protocol.ImportDeckRequest{RoomID: roomID, DeckURL: "https://moxfield.com/decks/churn"})
				_ = sessions.DrawCard(conn, protocol.RoomRequest{RoomID: roomID})
				_ = sessions.Chat(conn, protocol.ChatRequest{RoomID: roomID, Message: "hi"})
				sessions.Disconnect(conn)
			}
		}(worker)
	}
	wg.Wait()
	sessions.Wait()

	assert.Equal(t, 0, env.registry.Count())
	assert.Equal(t, 0, sessions.Count())
}
