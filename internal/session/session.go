// Package session holds the terminal's authenticated operator. State is
// explicit (establish/clear) rather than ambient so role gating is testable.
package session

import (
	"sync"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
)

type Manager struct {
	mu    sync.RWMutex
	token string
	actor domain.Actor
	live  bool
}

func NewManager() *Manager {
	return &Manager{}
}

// Establish installs the credential and operator identity for this process.
func (m *Manager) Establish(token string, actor domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token
	m.actor = actor
	m.live = true
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = ""
	m.actor = domain.Actor{}
	m.live = false
}

// Current returns the operator identity, or false when no session exists.
func (m *Manager) Current() (domain.Actor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.actor, m.live
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}
