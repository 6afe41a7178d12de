package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/magefree/tabletop-server/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistryGetOrCreateConcurrent(t *testing.T) {
	registry := NewRegistry(newRecordingNotifier(), zaptest.NewLogger(t))

	const workers = 32
	rooms := make([]*Room, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = registry.GetOrCreate("ABCD")
		}(i)
	}
	wg.Wait()

	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
	assert.Equal(t, 1, registry.Count())
}

func TestRegistryConcurrentFirstJoin(t *testing.T) {
	registry := NewRegistry(newRecordingNotifier(), zaptest.NewLogger(t))

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			registry.Join("ABCD", fmt.Sprintf("conn%d", i), fmt.Sprintf("P%d", i))
		}(i)
	}
	wg.Wait()

	r, ok := registry.Get("ABCD")
	require.True(t, ok)
	assert.Equal(t, workers, r.MemberCount())
}

func TestRegistryEmptyRoomCleanup(t *testing.T) {
	orders := [][]string{
		{"conn1", "conn2", "conn3"},
		{"conn3", "conn1", "conn2"},
		{"conn2", "conn3", "conn1"},
	}

	for _, order := range orders {
		registry := NewRegistry(newRecordingNotifier(), zaptest.NewLogger(t))
		for _, conn := range []string{"conn1", "conn2", "conn3"} {
			registry.Join("ABCD", conn, conn)
		}

		for i, conn := range order {
			_, left := registry.Leave("ABCD", conn)
			require.True(t, left)

			_, exists := registry.Get("ABCD")
			assert.Equal(t, i < len(order)-1, exists, "after %d leaves", i+1)
		}
		assert.Empty(t, registry.List())
	}
}

func TestRegistryLeaveUnknown(t *testing.T) {
	registry := NewRegistry(nil, nil)

	_, left := registry.Leave("nope", "conn1")
	assert.False(t, left)

	registry.Join("ABCD", "conn1", "Alice")
	_, left = registry.Leave("ABCD", "conn2")
	assert.False(t, left)
	assert.Equal(t, 1, registry.Count())
}

func TestRegistryRemoveIfEmpty(t *testing.T) {
	registry := NewRegistry(nil, nil)

	r := registry.GetOrCreate("EMPTY")
	registry.Join("BUSY", "conn1", "Alice")

	assert.True(t, registry.RemoveIfEmpty("EMPTY"))
	assert.False(t, registry.RemoveIfEmpty("BUSY"))
	assert.False(t, registry.RemoveIfEmpty("MISSING"))

	again := registry.GetOrCreate("EMPTY")
	assert.NotSame(t, r, again, "a removed room is never resurrected")
}

func TestRegistryList(t *testing.T) {
	notifier := newRecordingNotifier()
	registry := NewRegistry(notifier, zaptest.NewLogger(t))
	registry.Join("B", "conn1", "Alice")
	registry.Join("B", "conn2", "Bob")
	r, _, _ := registry.Join("A", "conn3", "Carol")
	_, err := r.StartGame("conn3")
	require.NoError(t, err)

	list := registry.List()
	assert.Equal(t, []Summary{
		{ID: "A", PlayerCount: 1, GamePhase: PhasePlaying},
		{ID: "B", PlayerCount: 2, GamePhase: PhaseWaiting},
	}, list)

	registry.Leave("B", "conn1")
	assert.Equal(t, 2, list[1].PlayerCount, "list is a snapshot")
	assert.Len(t, notifier.of("conn2", protocol.EventPlayerLeft), 1)
}

func TestGenerateRoomID(t *testing.T) {
	a, b := GenerateRoomID(), GenerateRoomID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
