package session

import (
	"time"

	"github.com/conneroisu/livecanvas/internal/types"
)

// EventType represents the type of session event.
type EventType int

const (
	EventStarted EventType = iota
	EventRestarted
	EventChanged
	EventClosed
	EventEvicted
)

func (e EventType) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventRestarted:
		return "restarted"
	case EventChanged:
		return "changed"
	case EventClosed:
		return "closed"
	case EventEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Event describes a change to the session table. Change and Patch are set
// for EventChanged only.
type Event struct {
	Type      EventType
	SessionID string
	Change    *types.ChangeRecord
	Patch     types.Patch
	Timestamp time.Time
}

// Watch returns a channel that receives session events.
func (m *Manager) Watch() <-chan Event {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	ch := make(chan Event, 100)
	m.watchers = append(m.watchers, ch)

	return ch
}

// UnWatch removes and closes a channel returned by Watch.
func (m *Manager) UnWatch(ch <-chan Event) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	for i, watcher := range m.watchers {
		if watcher == ch {
			close(watcher)
			m.watchers = append(m.watchers[:i], m.watchers[i+1:]...)
			return
		}
	}
}

// notify delivers event without blocking; slow watchers miss events.
func (m *Manager) notify(event Event) {
	m.watchMu.RLock()
	defer m.watchMu.RUnlock()

	for _, ch := range m.watchers {
		select {
		case ch <- event:
		default:
		}
	}
}
