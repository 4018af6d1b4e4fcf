// Package registry is the catalog of component kinds the editor can create
// from scratch: their declared props, class rules and synthesis template.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/livecanvas/internal/errors"
)

// ComponentRegistry manages the component library.
type ComponentRegistry struct {
	components map[string]*Entry
	mutex      sync.RWMutex
	watchers   []chan ComponentEvent
}

// ComponentEvent represents a change in the component registry
type ComponentEvent struct {
	Type      EventType
	Component *Entry
	Timestamp time.Time
}

// EventType represents the type of component event
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

func (t EventType) String() string {
	switch t {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// NewComponentRegistry creates an empty registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		components: make(map[string]*Entry),
		watchers:   make([]chan ComponentEvent, 0),
	}
}

// NewDefaultRegistry creates a registry holding the built-in library.
func NewDefaultRegistry() *ComponentRegistry {
	r := NewComponentRegistry()
	for _, entry := range BuiltinLibrary() {
		// Built-in entries are known to be valid.
		_ = r.Register(entry)
	}

	return r
}

// key folds a kind name so lookups are case-insensitive.
func key(name string) string {
	return cases.Fold().String(name)
}

// CanonicalName title-cases a kind name without lowering the rest of it,
// so "card" becomes "Card" and "navBar" becomes "NavBar".
func CanonicalName(name string) string {
	return cases.Title(language.English, cases.NoLower).String(name)
}

// Register adds or updates an entry.
func (r *ComponentRegistry) Register(entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	entry.Name = CanonicalName(entry.Name)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeAdded
	if _, exists := r.components[key(entry.Name)]; exists {
		eventType = EventTypeUpdated
	}

	r.components[key(entry.Name)] = entry
	r.notify(ComponentEvent{
		Type:      eventType,
		Component: entry,
		Timestamp: time.Now(),
	})

	return nil
}

// notify must be called with the write lock held.
func (r *ComponentRegistry) notify(event ComponentEvent) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

// Get retrieves an entry by name, ignoring case.
func (r *ComponentRegistry) Get(name string) (*Entry, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.components[key(name)]
	return entry, exists
}

// Resolve is Get with the editor's not-found error.
func (r *ComponentRegistry) Resolve(kind string) (*Entry, error) {
	entry, ok := r.Get(kind)
	if !ok {
		return nil, errors.ErrComponentKindNotFound(kind)
	}

	return entry, nil
}

// GetAll returns every entry sorted by category, then name.
func (r *ComponentRegistry) GetAll() []*Entry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*Entry, 0, len(r.components))
	for _, entry := range r.components {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Name < result[j].Name
	})

	return result
}

// Categories groups entry names by category.
func (r *ComponentRegistry) Categories() map[string][]string {
	out := make(map[string][]string)
	for _, entry := range r.GetAll() {
		out[entry.Category] = append(out[entry.Category], entry.Name)
	}

	return out
}

// Remove removes an entry from the registry
func (r *ComponentRegistry) Remove(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, exists := r.components[key(name)]
	if !exists {
		return
	}

	delete(r.components, key(name))
	r.notify(ComponentEvent{
		Type:      EventTypeRemoved,
		Component: entry,
		Timestamp: time.Now(),
	})
}

// Watch returns a channel that receives component events
func (r *ComponentRegistry) Watch() <-chan ComponentEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan ComponentEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *ComponentRegistry) UnWatch(ch <-chan ComponentEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered components
func (r *ComponentRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.components)
}

// String implements fmt.Stringer for log output.
func (r *ComponentRegistry) String() string {
	return fmt.Sprintf("registry(%d components)", r.Count())
}
