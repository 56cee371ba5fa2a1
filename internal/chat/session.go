package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/urbangrammar/demoland-assistant/pkg/anthropic"
)

// Session is one conversation. Turns within a session are serialised.
type Session struct {
	ID      string
	Created time.Time

	agent *Agent
	now   func() time.Time
	// lastActive is unix nanoseconds, readable without waiting on a turn.
	lastActive atomic.Int64

	mu      sync.Mutex
	history []anthropic.Message
	usage   anthropic.TokenUsage
}

// Send runs one user turn. On failure the history is left as it was before
// the turn.
func (s *Session) Send(ctx context.Context, text string) (Reply, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()

	added, answer, usage, err := s.agent.turn(ctx, s.ID, s.history, text)
	s.usage = s.usage.Add(usage)
	if err != nil {
		return Reply{}, err
	}
	s.history = append(s.history, added...)
	usage.LogCost(s.agent.cfg.Model, s.ID)
	return Reply{Text: answer, Timestamp: s.now()}, nil
}

func (s *Session) touch() { s.lastActive.Store(s.now().UnixNano()) }

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// History returns a copy of the conversation so far.
func (s *Session) History() []anthropic.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]anthropic.Message(nil), s.history...)
}

// Usage returns the tokens consumed by the session.
func (s *Session) Usage() anthropic.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Store holds live sessions by ID. With an idle timeout, sessions unused for
// longer than the timeout are removed by Sweep.
type Store struct {
	agent *Agent
	now   func() time.Time
	idle  time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIdleTimeout expires sessions that see no request for d. Zero keeps
// sessions until they are deleted.
func WithIdleTimeout(d time.Duration) StoreOption {
	return func(st *Store) { st.idle = d }
}

// NewStore creates an empty session store.
func NewStore(agent *Agent, opts ...StoreOption) *Store {
	st := &Store{agent: agent, now: time.Now, sessions: make(map[string]*Session)}
	for _, o := range opts {
		o(st)
	}
	return st
}

// Create opens a session and returns it with its greeting.
func (st *Store) Create() (*Session, Reply) {
	now := st.now()
	s := &Session{
		ID:      uuid.NewString(),
		Created: now,
		agent:   st.agent,
		now:     st.now,
	}
	s.touch()
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s, Reply{Text: st.agent.Greeting(), Timestamp: now}
}

// Get returns the session with the given ID.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// Delete closes a session. It reports whether the session existed.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions idle for longer than the store's timeout and returns
// how many were removed.
func (st *Store) Sweep() int {
	if st.idle <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.idle)

	st.mu.Lock()
	defer st.mu.Unlock()
	var n int
	for id, s := range st.sessions {
		if s.LastActive().Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps idle sessions every interval until ctx is done.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if st.idle <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				zap.L().Info("expired idle sessions",
					zap.String("component", "chat"), zap.Int("expired", n), zap.Int("live", st.Len()))
			}
		}
	}
}
