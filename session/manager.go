// Package session owns the signed-in sessions. Each session holds its own
// ledger instance; nothing is shared between sessions and nothing survives
// the process.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pingpong-elo-server/ledger"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

const sweepInterval = 5 * time.Minute

// Session is one signed-in user's state: their ledger and their current
// default K-factor (the dashboard slider value).
type Session struct {
	ID       string
	Username string

	mu       sync.Mutex
	ledger   *ledger.Ledger
	defaultK int
	lastSeen time.Time
}

// Do runs fn with exclusive access to the session's ledger. The ledger does
// no locking itself, so every access goes through here.
func (s *Session) Do(fn func(l *ledger.Ledger)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.ledger)
}

// DefaultK returns the session's current default K-factor.
func (s *Session) DefaultK() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultK
}

// SetDefaultK updates the session's default K-factor.
func (s *Session) SetDefaultK(k int) {
	s.mu.Lock()
	s.defaultK = k
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Manager tracks live sessions by id and evicts idle ones.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	defaultK int
}

// NewManager creates a Manager. New sessions start with defaultK; sessions
// idle longer than ttl are evicted by Sweep.
func NewManager(defaultK int, ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		defaultK: defaultK,
	}
}

// Create opens a fresh session with an empty ledger for the given user.
func (m *Manager) Create(username string) *Session {
	s := &Session{
		ID:       uuid.New().String(),
		Username: username,
		ledger:   ledger.New(),
		defaultK: m.defaultK,
		lastSeen: time.Now(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session for the given id and marks it as active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(time.Now())
	return s, nil
}

// Drop removes a session; its ledger is gone with it. Dropping an unknown
// id is a no-op.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweepOnce evicts sessions idle longer than the TTL, returning how many
// were removed.
func (m *Manager) sweepOnce(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted int
	for id, s := range m.sessions {
		if s.idleSince(now) > m.ttl {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Sweep periodically evicts idle sessions until ctx is cancelled. Should be
// run as a goroutine.
func (m *Manager) Sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.sweepOnce(now); n > 0 {
				slog.Info("evicted idle sessions", "tag", "session", "count", n, "live", m.Len())
			}
		}
	}
}
