// Package session owns live editing sessions and runs the
// parse, mutate, generate and patch pipeline for them.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/types"
)

// State is an immutable snapshot of a session. Every change replaces the
// whole State, so readers never observe a partially applied change.
type State struct {
	ID        string
	Dialect   model.Dialect
	Code      string
	Model     *model.Model
	History   []types.ChangeRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Info summarizes a session.
type Info struct {
	SessionID     string        `json:"session_id" yaml:"session_id"`
	Dialect       model.Dialect `json:"dialect" yaml:"dialect"`
	CreatedAt     time.Time     `json:"created_at" yaml:"created_at"`
	LastUpdatedAt time.Time     `json:"last_updated_at" yaml:"last_updated_at"`
	ChangeCount   int           `json:"change_count" yaml:"change_count"`
	ElementCount  int           `json:"element_count" yaml:"element_count"`
}

func (st *State) info() Info {
	return Info{
		SessionID:     st.ID,
		Dialect:       st.Dialect,
		CreatedAt:     st.CreatedAt,
		LastUpdatedAt: st.UpdatedAt,
		ChangeCount:   len(st.History),
		ElementCount:  st.Model.Len(),
	}
}

// Session is one entry of the session table. Writers hold mu for the whole
// compute-then-swap sequence; readers load the current State lock-free.
type Session struct {
	id     string
	mu     sync.Mutex
	state  atomic.Pointer[State]
	closed bool
}

func newSession(st *State) *Session {
	s := &Session{id: st.ID}
	s.state.Store(st)

	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current snapshot. Callers must not modify it.
func (s *Session) State() *State {
	return s.state.Load()
}
