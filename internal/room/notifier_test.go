package room

import (
	"sync"

	"github.com/magefree/tabletop-server/internal/protocol"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]protocol.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[string][]protocol.Event)}
}

func (n *recordingNotifier) Notify(connectionID string, event protocol.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[connectionID] = append(n.events[connectionID], event)
}

func (n *recordingNotifier) of(connectionID string, eventType string) []protocol.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	matched := make([]protocol.Event, 0)
	for _, ev := range n.events[connectionID] {
		if ev.Type == eventType {
			matched = append(matched, ev)
		}
	}
	return matched
}

func (n *recordingNotifier) count(connectionID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events[connectionID])
}
