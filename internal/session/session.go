// Package session manages the client's authenticated session: the bearer
// token persisted to local storage, the decoded claims, and forced logout.
// Any 401 from the transport is fatal to the session and discards all
// in-memory state.
package session

import (
	"errors"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openwrench/servicelink/internal/auth"
	"github.com/openwrench/servicelink/internal/cache"
	"github.com/openwrench/servicelink/internal/models"
)

var ErrSessionExpired = errors.New("session expired")

// Manager holds the current session. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	path     string
	token    string
	claims   *models.Claims
	cache    *cache.Cache
	onLogout []func()
}

// NewManager creates a session manager persisting the token at path. A
// token left over from a previous run is restored if it has not expired.
func NewManager(path string, c *cache.Cache) *Manager {
	m := &Manager{path: path, cache: c}
	if data, err := os.ReadFile(path); err == nil {
		if err := m.adopt(string(data)); err != nil {
			log.WithError(err).Info("Discarding stored session token")
			os.Remove(path)
		}
	}
	return m
}

func (m *Manager) adopt(token string) error {
	claims, err := auth.DecodeClaims(token)
	if err != nil {
		return err
	}
	if time.Now().Unix() >= claims.Exp {
		return ErrSessionExpired
	}
	m.mu.Lock()
	m.token = token
	m.claims = claims
	m.mu.Unlock()
	return nil
}

// Begin installs a fresh token after login. The whole cache is cleared so
// the new session never observes the previous session's data.
func (m *Manager) Begin(token string) error {
	if err := m.adopt(token); err != nil {
		return err
	}
	if m.cache != nil {
		m.cache.Clear()
	}
	if err := os.WriteFile(m.path, []byte(token), 0o600); err != nil {
		log.WithError(err).Warn("Failed to persist session token")
	}
	return nil
}

// Token returns the current bearer token, or empty when logged out. Wire
// this as the transport's token source.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Claims returns the decoded claims for the active session, or nil.
func (m *Manager) Claims() *models.Claims {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.claims
}

// Active reports whether a non-expired session is present.
func (m *Manager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.claims != nil && time.Now().Unix() < m.claims.Exp
}

// OnLogout registers a hook fired when the session ends, explicitly or via
// a 401. Stores register their teardown here.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	m.onLogout = append(m.onLogout, fn)
	m.mu.Unlock()
}

// Logout ends the session: the token is wiped from memory and disk, the
// cache is cleared, and logout hooks fire.
func (m *Manager) Logout() {
	m.mu.Lock()
	wasActive := m.token != ""
	m.token = ""
	m.claims = nil
	hooks := append([]func(){}, m.onLogout...)
	m.mu.Unlock()

	if !wasActive {
		return
	}
	os.Remove(m.path)
	if m.cache != nil {
		m.cache.Clear()
	}
	for _, fn := range hooks {
		fn()
	}
}

// ForceLogout is the 401 handler: identical to Logout but logged as a
// session expiry.
func (m *Manager) ForceLogout() {
	if m.Active() {
		log.Warn("Server rejected credentials, forcing logout")
	}
	m.Logout()
}
