package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// DefaultSessionTTL is applied when Create is called with zero duration
const DefaultSessionTTL = 24 * time.Hour

// SessionManager issues and validates opaque session tokens. Tokens are the
// bearer credential for the HTTP API and double as the SFTP password field.
// An in-memory map serves the hot path; the store keeps sessions alive
// across restarts.
type SessionManager struct {
	store    storage.Store
	sessions map[string]*types.Session
	mu       sync.RWMutex
}

// NewSessionManager creates a session manager backed by store. Persisted
// sessions are loaded lazily on first miss.
func NewSessionManager(store storage.Store) *SessionManager {
	return &SessionManager{
		store:    store,
		sessions: make(map[string]*types.Session),
	}
}

// Create issues a token for userID valid for ttl (DefaultSessionTTL when
// zero) and persists it.
func (sm *SessionManager) Create(userID string, ttl time.Duration) (*types.Session, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	now := time.Now()
	sess := &types.Session{
		Token:     hex.EncodeToString(bytes),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := sm.store.PutSession(sess); err != nil {
		return nil, err
	}

	sm.mu.Lock()
	sm.sessions[sess.Token] = sess
	sm.mu.Unlock()

	return sess, nil
}

// Validate resolves a token to its user id. Expired or unknown tokens fail
// with AuthFailed.
func (sm *SessionManager) Validate(token string) (string, error) {
	sm.mu.RLock()
	sess, ok := sm.sessions[token]
	sm.mu.RUnlock()

	if !ok {
		persisted, err := sm.store.GetSession(token)
		if err != nil {
			return "", errdefs.New(errdefs.KindAuthFailed, "invalid session token")
		}
		sm.mu.Lock()
		sm.sessions[token] = persisted
		sm.mu.Unlock()
		sess = persisted
	}

	if time.Now().After(sess.ExpiresAt) {
		sm.Revoke(token)
		return "", errdefs.New(errdefs.KindAuthFailed, "session token expired")
	}

	return sess.UserID, nil
}

// Revoke invalidates a token immediately
func (sm *SessionManager) Revoke(token string) {
	sm.mu.Lock()
	delete(sm.sessions, token)
	sm.mu.Unlock()

	// Best-effort: the in-memory delete already wins for this process.
	_ = sm.store.DeleteSession(token)
}

// CleanupExpired removes expired sessions from memory and storage,
// returning how many were dropped from the store.
func (sm *SessionManager) CleanupExpired() int {
	now := time.Now()

	sm.mu.Lock()
	for token, sess := range sm.sessions {
		if now.After(sess.ExpiresAt) {
			delete(sm.sessions, token)
		}
	}
	sm.mu.Unlock()

	n, err := sm.store.DeleteExpiredSessions(now)
	if err != nil {
		return 0
	}
	return n
}

// StartSweep runs CleanupExpired on a ticker until stop is closed
func (sm *SessionManager) StartSweep(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sm.CleanupExpired()
			case <-stop:
				return
			}
		}
	}()
}
