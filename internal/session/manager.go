package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/livecanvas/internal/errors"
	"github.com/conneroisu/livecanvas/internal/generator"
	"github.com/conneroisu/livecanvas/internal/logging"
	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/mutation"
	"github.com/conneroisu/livecanvas/internal/parser"
	"github.com/conneroisu/livecanvas/internal/patch"
	"github.com/conneroisu/livecanvas/internal/types"
)

// Options configure a Manager.
type Options struct {
	Dialect          model.Dialect
	MaxDepth         int
	StrictTargets    bool
	Generator        generator.Options
	MaxSessions      int
	RejectDuplicates bool
	IdleTimeout      time.Duration
	JanitorInterval  time.Duration
	// Clock overrides time.Now.
	Clock func() time.Time
}

// DefaultOptions returns jsx sessions with strict targets, no session cap
// and a 30 minute idle timeout.
func DefaultOptions() Options {
	return Options{
		Dialect:         model.DialectJSX,
		MaxDepth:        parser.DefaultMaxDepth,
		StrictTargets:   true,
		Generator:       generator.DefaultOptions(),
		IdleTimeout:     30 * time.Minute,
		JanitorInterval: time.Minute,
	}
}

// StartResult is returned by StartSession.
type StartResult struct {
	SessionID string                 `json:"session_id" yaml:"session_id"`
	Elements  []model.ElementSummary `json:"elements" yaml:"elements"`
}

// ChangeResult is returned by ApplyChange.
type ChangeResult struct {
	UpdatedCode string                 `json:"updated_code" yaml:"updated_code"`
	Elements    []model.ElementSummary `json:"elements" yaml:"elements"`
	Patch       types.Patch            `json:"patch" yaml:"patch"`
	Change      types.ChangeRecord     `json:"change" yaml:"change"`
}

// MarshalJSON encodes the patch with its type tag.
func (r ChangeResult) MarshalJSON() ([]byte, error) {
	p, err := types.MarshalPatch(r.Patch)
	if err != nil {
		return nil, err
	}

	return json.Marshal(struct {
		UpdatedCode string                 `json:"updated_code"`
		Elements    []model.ElementSummary `json:"elements"`
		Patch       json.RawMessage        `json:"patch"`
		Change      types.ChangeRecord     `json:"change"`
	}{r.UpdatedCode, r.Elements, p, r.Change})
}

// Manager owns the session table and runs every change through the
// engine, the generator and the patch deriver.
type Manager struct {
	store     Store
	engine    *mutation.Engine
	generator *generator.Generator
	opts      Options
	logger    logging.Logger

	// tableMu serializes check-then-insert and removal on the store.
	tableMu sync.Mutex

	watchMu  sync.RWMutex
	watchers []chan Event
}

// NewManager creates a manager over store, resolving AddComponent kinds
// through library.
func NewManager(store Store, library mutation.Library, logger logging.Logger, opts Options) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.Dialect == "" {
		opts.Dialect = model.DialectJSX
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Manager{
		store:     store,
		engine:    mutation.NewEngine(library, mutation.Options{StrictTargets: opts.StrictTargets}),
		generator: generator.New(opts.Generator),
		opts:      opts,
		logger:    logger.WithComponent("session"),
	}
}

// StartSession parses text and stores it under id. An empty id is replaced
// by a generated one and an empty dialect by the configured default.
// Starting an active id resets it unless duplicates are rejected.
func (m *Manager) StartSession(ctx context.Context, id, text string, dialect model.Dialect) (*StartResult, error) {
	if id == "" {
		id = uuid.NewString()
	}
	requested := dialect
	if requested == "" {
		requested = m.opts.Dialect
	}
	dialect, err := model.ParseDialect(string(requested))
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, err.Error()).
			WithContext("dialect", string(requested))
	}

	mdl, err := parser.New(parser.Options{Dialect: dialect, MaxDepth: m.opts.MaxDepth}).Parse(text)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "parse failed", err)
	}

	now := m.opts.Clock()
	st := &State{
		ID:        id,
		Dialect:   dialect,
		Code:      text,
		Model:     mdl,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.tableMu.Lock()
	existing, active := m.store.Get(id)
	switch {
	case active && m.opts.RejectDuplicates:
		m.tableMu.Unlock()
		return nil, errors.ErrSessionActive(id)
	case active:
		existing.mu.Lock()
		existing.state.Store(st)
		existing.mu.Unlock()
	case m.opts.MaxSessions > 0 && m.store.Len() >= m.opts.MaxSessions:
		m.tableMu.Unlock()
		return nil, errors.ErrSessionLimit(m.opts.MaxSessions)
	default:
		m.store.Put(newSession(st))
	}
	m.tableMu.Unlock()

	eventType := EventStarted
	if active {
		eventType = EventRestarted
	}
	m.notify(Event{Type: eventType, SessionID: id, Timestamp: now})
	m.logger.Info(ctx, "Session started",
		"session_id", id,
		"dialect", string(dialect),
		"elements", mdl.Len(),
		"restarted", active)

	return &StartResult{SessionID: id, Elements: mdl.Summaries()}, nil
}

// ApplyChange applies op to the session's model, regenerates its code and
// derives the patch. On error the session is left unchanged.
func (m *Manager) ApplyChange(ctx context.Context, id string, op types.Operation) (*ChangeResult, error) {
	perf := logging.StartOperation(m.logger, "apply_change")

	s, ok := m.store.Get(id)
	if !ok {
		err := errors.ErrSessionNotFound(id)
		perf.EndWithError(ctx, err, "session_id", id)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		err := errors.ErrSessionNotFound(id)
		perf.EndWithError(ctx, err, "session_id", id)
		return nil, err
	}

	cur := s.state.Load()
	next, result, err := m.engine.Apply(cur.Model, op)
	if err != nil {
		perf.EndWithError(ctx, err, "session_id", id)
		return nil, err
	}

	code := m.generator.Generate(next)
	p := patch.Derive(op, next, code)

	now := m.opts.Clock()
	record := types.ChangeRecord{
		ID:        uuid.NewString(),
		Sequence:  len(cur.History) + 1,
		Timestamp: now,
		Operation: op,
		Result:    result,
	}

	history := make([]types.ChangeRecord, len(cur.History), len(cur.History)+1)
	copy(history, cur.History)
	s.state.Store(&State{
		ID:        cur.ID,
		Dialect:   cur.Dialect,
		Code:      code,
		Model:     next,
		History:   append(history, record),
		CreatedAt: cur.CreatedAt,
		UpdatedAt: now,
	})

	m.notify(Event{Type: EventChanged, SessionID: id, Change: &record, Patch: p, Timestamp: now})
	perf.End(ctx,
		"session_id", id,
		"change_type", string(op.Type()),
		"applied", result.Applied,
		"patch_type", string(p.Type()))

	return &ChangeResult{
		UpdatedCode: code,
		Elements:    next.Summaries(),
		Patch:       p,
		Change:      record,
	}, nil
}

// GetSessionInfo reports counts and timestamps for an active session.
func (m *Manager) GetSessionInfo(id string) (Info, error) {
	st, err := m.state(id)
	if err != nil {
		return Info{}, err
	}

	return st.info(), nil
}

// CloseSession removes an active session.
func (m *Manager) CloseSession(ctx context.Context, id string) (bool, error) {
	if !m.remove(id) {
		return false, errors.ErrSessionNotFound(id)
	}

	m.notify(Event{Type: EventClosed, SessionID: id, Timestamp: m.opts.Clock()})
	m.logger.Info(ctx, "Session closed", "session_id", id)

	return true, nil
}

func (m *Manager) remove(id string) bool {
	m.tableMu.Lock()
	s, ok := m.store.Remove(id)
	m.tableMu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return true
}

// Code returns the current text of a session.
func (m *Manager) Code(id string) (string, error) {
	st, err := m.state(id)
	if err != nil {
		return "", err
	}

	return st.Code, nil
}

// History returns the change log of a session, oldest first.
func (m *Manager) History(id string) ([]types.ChangeRecord, error) {
	st, err := m.state(id)
	if err != nil {
		return nil, err
	}

	out := make([]types.ChangeRecord, len(st.History))
	copy(out, st.History)

	return out, nil
}

// Snapshot returns a copy of the session state whose model the caller
// may freely modify.
func (m *Manager) Snapshot(id string) (*State, error) {
	st, err := m.state(id)
	if err != nil {
		return nil, err
	}

	cp := *st
	cp.Model = st.Model.Clone()
	cp.History = append([]types.ChangeRecord(nil), st.History...)

	return &cp, nil
}

// List returns info for every active session ordered by id.
func (m *Manager) List() []Info {
	sessions := m.store.List()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.State().info())
	}

	return out
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	return m.store.Len()
}

func (m *Manager) state(id string) (*State, error) {
	s, ok := m.store.Get(id)
	if !ok {
		return nil, errors.ErrSessionNotFound(id)
	}

	return s.State(), nil
}
