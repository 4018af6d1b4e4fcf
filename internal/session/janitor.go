package session

import (
	"context"
	"time"
)

// RunJanitor evicts idle sessions every JanitorInterval until ctx is done.
// It returns immediately when IdleTimeout is not positive.
func (m *Manager) RunJanitor(ctx context.Context) error {
	if m.opts.IdleTimeout <= 0 {
		return nil
	}

	interval := m.opts.JanitorInterval
	if interval <= 0 {
		interval = m.opts.IdleTimeout / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Debug(ctx, "Janitor started",
		"idle_timeout", m.opts.IdleTimeout.String(),
		"interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.EvictIdle(ctx)
		}
	}
}

// EvictIdle closes every session whose last update is older than the idle
// timeout and returns the evicted ids.
func (m *Manager) EvictIdle(ctx context.Context) []string {
	if m.opts.IdleTimeout <= 0 {
		return nil
	}

	now := m.opts.Clock()
	cutoff := now.Add(-m.opts.IdleTimeout)

	var evicted []string
	for _, s := range m.store.List() {
		if !s.State().UpdatedAt.Before(cutoff) {
			continue
		}
		if !m.removeIdle(s, cutoff) {
			continue
		}
		evicted = append(evicted, s.ID())
		m.notify(Event{Type: EventEvicted, SessionID: s.ID(), Timestamp: now})
	}

	if len(evicted) > 0 {
		m.logger.Info(ctx, "Evicted idle sessions", "count", len(evicted), "sessions", evicted)
	}

	return evicted
}

// removeIdle removes s if it is still the stored session for its id and
// still idle. Both conditions are checked under tableMu and s.mu, so a
// session restarted or changed after it was listed is kept.
func (m *Manager) removeIdle(s *Session, cutoff time.Time) bool {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()

	current, ok := m.store.Get(s.ID())
	if !ok || current != s {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.State().UpdatedAt.Before(cutoff) {
		return false
	}
	m.store.Remove(s.ID())
	s.closed = true

	return true
}
