// Package session keeps logged-in users in memory, keyed by a random token
// carried in a cookie.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	username string
	expires  time.Time
}

// Manager issues and checks session cookies. Safe for concurrent use.
// Sessions do not survive a restart.
type Manager struct {
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]entry
}

// NewManager creates a Manager whose sessions last ttl.
func NewManager(cookieName string, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		now:        time.Now,
		sessions:   make(map[string]entry),
	}
}

// Start creates a session for username and sets its cookie on w. Expired
// sessions are evicted on the way.
func (m *Manager) Start(w http.ResponseWriter, username string) {
	token := uuid.New().String()
	now := m.now()
	expires := now.Add(m.ttl)

	m.mu.Lock()
	for t, e := range m.sessions {
		if !now.Before(e.expires) {
			delete(m.sessions, t)
		}
	}
	m.sessions[token] = entry{username: username, expires: expires}
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// End drops the session carried by r, if any, and clears the cookie.
func (m *Manager) End(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(m.cookieName); err == nil {
		m.mu.Lock()
		delete(m.sessions, c.Value)
		m.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
	})
}

// CurrentUser returns the username of the session carried by r.
func (m *Manager) CurrentUser(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[c.Value]
	if !ok {
		return "", false
	}
	if !m.now().Before(e.expires) {
		delete(m.sessions, c.Value)
		return "", false
	}
	return e.username, true
}

// Len returns the number of live and not yet evicted sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
