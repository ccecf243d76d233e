package runtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionKey identifies the single live session a sender may have per flow.
type SessionKey struct {
	SenderID string
	Flow     string
}

// Session is the mutable per-(sender, flow) runtime state. The store owns
// every session exclusively; accessors hand out copies, so a caller never
// holds a pointer into the store.
type Session struct {
	ID             string
	Flow           string
	SenderID       string
	Channel        string
	CurrentStepID  string
	Variables      map[string]any
	StartedAt      time.Time
	LastActivityAt time.Time
}

// Key returns the store key for the session.
func (s *Session) Key() SessionKey {
	return SessionKey{SenderID: s.SenderID, Flow: s.Flow}
}

func (s *Session) clone() *Session {
	c := *s
	c.Variables = cloneVariables(s.Variables)
	return &c
}

// Meta exposes session metadata to the interpolation context.
func (s *Session) Meta() map[string]any {
	return map[string]any{
		"id":            s.ID,
		"flow":          s.Flow,
		"senderId":      s.SenderID,
		"channel":       s.Channel,
		"currentStepId": s.CurrentStepID,
		"startedAt":     s.StartedAt.UTC().Format(time.RFC3339),
	}
}

// SessionParams describes a session to create.
type SessionParams struct {
	Flow      string
	SenderID  string
	Channel   string
	StepID    string
	Variables map[string]any
}

// SessionPatch is a partial update. Zero-value fields are left untouched;
// Variables are merged key-by-key, never replaced wholesale. The merge rule
// is load-bearing: independent fetch actions each contribute one variable
// without clobbering the others.
type SessionPatch struct {
	CurrentStepID string
	Channel       string
	Variables     map[string]any
}

// SessionStore is a concurrent cache of live sessions with idle-timeout
// expiry. A session past its idle timeout is treated as absent even before
// the sweep physically removes it. The sweep loop runs for the lifetime of
// the store, regardless of occupancy, and stops on Close.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[SessionKey]*Session

	ttl  time.Duration
	l    *slog.Logger
	stop chan struct{}
	wg   sync.WaitGroup
}

const (
	DefaultSessionTTL = 30 * time.Minute
	DefaultSweepEvery = 5 * time.Minute
)

func NewSessionStore(ttl, sweepEvery time.Duration, l *slog.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepEvery
	}
	if l == nil {
		l = slog.Default()
	}
	s := &SessionStore{
		sessions: make(map[SessionKey]*Session),
		ttl:      ttl,
		l:        l,
		stop:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop(sweepEvery)
	return s
}

// Create registers a new session, replacing any live one for the same
// (sender, flow) pair.
func (s *SessionStore) Create(p SessionParams) *Session {
	now := time.Now()
	sess := &Session{
		ID:             uuid.New().String(),
		Flow:           p.Flow,
		SenderID:       p.SenderID,
		Channel:        p.Channel,
		CurrentStepID:  p.StepID,
		Variables:      cloneVariables(p.Variables),
		StartedAt:      now,
		LastActivityAt: now,
	}
	s.mu.Lock()
	s.sessions[sess.Key()] = sess
	s.mu.Unlock()
	return sess.clone()
}

// Get returns a copy of the live session for key, refreshing its activity
// timestamp. An expired session is absent even if not yet swept.
func (s *SessionStore) Get(key SessionKey) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok || s.expired(sess) {
		return nil, false
	}
	sess.LastActivityAt = time.Now()
	return sess.clone(), true
}

// Update applies a partial update to the live session for key and returns
// the updated copy.
func (s *SessionStore) Update(key SessionKey, patch SessionPatch) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok || s.expired(sess) {
		return nil, false
	}
	if patch.CurrentStepID != "" {
		sess.CurrentStepID = patch.CurrentStepID
	}
	if patch.Channel != "" {
		sess.Channel = patch.Channel
	}
	if len(patch.Variables) > 0 {
		if sess.Variables == nil {
			sess.Variables = make(map[string]any, len(patch.Variables))
		}
		for k, v := range patch.Variables {
			sess.Variables[k] = v
		}
	}
	sess.LastActivityAt = time.Now()
	return sess.clone(), true
}

// Delete removes the session for key, if any.
func (s *SessionStore) Delete(key SessionKey) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
}

// Len reports the number of physically present sessions, expired included.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the sweep loop and drops all sessions.
func (s *SessionStore) Close() {
	close(s.stop)
	s.wg.Wait()
	s.mu.Lock()
	s.sessions = make(map[SessionKey]*Session)
	s.mu.Unlock()
}

func (s *SessionStore) expired(sess *Session) bool {
	return time.Since(sess.LastActivityAt) > s.ttl
}

func (s *SessionStore) sweepLoop(every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				s.l.Info("swept expired sessions", "count", n)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *SessionStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}
