// Package session keeps signed-on users in process memory. Sessions are lost
// on restart and expire together with the token they carry.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/model"
)

// ErrNoSession is returned for a user who is signed off or whose session
// has expired.
var ErrNoSession = errors.New("no active session")

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Manager is a concurrency-safe session table with one lock per user id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	locks    map[string]*userLock
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]model.Session),
		locks:    make(map[string]*userLock),
		now:      time.Now,
	}
}

// Lock serializes work for userID. The returned func releases the lock.
func (m *Manager) Lock(userID string) (unlock func()) {
	m.mu.Lock()
	l, ok := m.locks[userID]
	if !ok {
		l = &userLock{}
		m.locks[userID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, userID)
		}
		m.mu.Unlock()
	}
}

// Get returns the live session for userID.
func (m *Manager) Get(userID string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return model.Session{}, ErrNoSession
	}
	if s.Expired(m.now()) {
		delete(m.sessions, userID)
		return model.Session{}, ErrNoSession
	}
	return s, nil
}

// Put stores s, replacing any previous session of the same user.
func (m *Manager) Put(s model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s
}

// Remove discards the session for userID.
func (m *Manager) Remove(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return ErrNoSession
	}
	delete(m.sessions, userID)
	if s.Expired(m.now()) {
		return ErrNoSession
	}
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops expired sessions and returns how many it removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					log.Info("swept expired sessions", zap.Int("removed", n))
				}
			}
		}
	}()
}
