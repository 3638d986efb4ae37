package session

import (
	"context"
	"sync"
	"time"

	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/pkg/log"
)

const (
	DefaultTTL           = 30 * time.Minute
	defaultSweepInterval = 60 * time.Second
)

// Store holds live sessions keyed by id. It owns the id→session map for
// the lifetime of the process; eviction happens through the periodic sweep
// only. Implements the srv.Service interface so the sweep runs as a
// background service.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl      time.Duration
	interval time.Duration
}

func NewStore(ttl, sweepInterval time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		interval: sweepInterval,
	}
}

// GetOrCreate returns the session for id, creating it seeded with a system
// message from cfg.SystemPrompt when absent. If the session exists and a
// differing system prompt is supplied, the leading system message is
// replaced in place, or inserted at the front when the history starts with
// a non-system message.
func (st *Store) GetOrCreate(id string, cfg Config) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		s = newSession(id, cfg)
		st.sessions[id] = s
		return s
	}

	s.LastActiveAt = time.Now()
	if cfg.SystemPrompt != "" && cfg.SystemPrompt != s.Config.SystemPrompt {
		s.Config.SystemPrompt = cfg.SystemPrompt
		sys := core.Message{Role: core.RoleSystem, Content: cfg.SystemPrompt}
		if len(s.Messages) > 0 && s.Messages[0].Role == core.RoleSystem {
			s.Messages[0] = sys
		} else {
			s.Messages = append([]core.Message{sys}, s.Messages...)
		}
	}
	return s
}

// Register inserts a reconstructed session, replacing any live state under
// the same id. Used by the persistor's Load.
func (st *Store) Register(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s.lock == nil {
		s.lock = newLockMachine()
	}
	s.LastActiveAt = time.Now()
	st.sessions[s.ID] = s
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// UpdateHistory replaces the session's message sequence and refreshes its
// activity timestamp. Unknown ids are ignored; the session may have been
// swept while the turn was in flight.
func (st *Store) UpdateHistory(id string, history []core.Message) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return
	}
	s.Messages = history
	s.LastActiveAt = time.Now()
}

// TryLock attempts the Idle → Processing transition. It never blocks: a
// session already Processing rejects the transition and TryLock reports
// false. An absent session is created under the store mutex and acquired
// in the same step, so a brand-new session comes into existence already
// held and a concurrent second acquire is rejected. A later GetOrCreate
// fills in the configuration.
func (st *Store) TryLock(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		s = newSession(id, Config{})
		st.sessions[id] = s
	}
	return s.lock.Fire(triggerAcquire) == nil
}

// Unlock fires Processing → Idle. Safe on every exit path: unlocking an
// idle or absent session is a no-op.
func (st *Store) Unlock(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok || !s.processing() {
		return
	}
	_ = s.lock.Fire(triggerRelease)
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Start runs the eviction sweep until ctx is cancelled.
func (st *Store) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("component", "session_store").Logger()
	logger.Info().Dur("ttl", st.ttl).Msg("starting session sweep")

	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("stopping session sweep")
			return nil
		case <-ticker.C:
			if n := st.sweep(); n > 0 {
				logger.Debug().Int("evicted", n).Msg("swept idle sessions")
			}
		}
	}
}

func (st *Store) Shutdown(ctx context.Context) error {
	return nil
}

// sweep evicts sessions idle beyond the TTL. Sessions mid-turn are left
// alone regardless of their timestamp.
func (st *Store) sweep() int {
	cutoff := time.Now().Add(-st.ttl)

	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for id, s := range st.sessions {
		if s.processing() {
			continue
		}
		if s.LastActiveAt.Before(cutoff) {
			delete(st.sessions, id)
			evicted++
		}
	}
	return evicted
}
