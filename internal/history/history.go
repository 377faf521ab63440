package history

import (
	"sync"
	"time"
)

// Manager keeps one Conversation per session key. Nothing is persisted.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Conversation

	hookMu  sync.Mutex
	onEvict []func(key string, conv *Conversation)
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Conversation)}
}

// OnEvict registers fn to run after a conversation leaves the manager through
// Delete or EvictIdle. Hooks run outside the manager lock.
func (m *Manager) OnEvict(fn func(key string, conv *Conversation)) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.onEvict = append(m.onEvict, fn)
}

func (m *Manager) evicted(key string, conv *Conversation) {
	m.hookMu.Lock()
	hooks := append(([]func(string, *Conversation))(nil), m.onEvict...)
	m.hookMu.Unlock()
	for _, fn := range hooks {
		fn(key, conv)
	}
}

// Get returns the conversation for key, creating it on first use. An existing
// conversation is marked active under the manager lock, so the janitor cannot
// evict it between Get and the caller's first append.
func (m *Manager) Get(key string) (conv *Conversation, created bool) {
	m.mu.RLock()
	conv, ok := m.sessions[key]
	if ok {
		conv.touch()
	}
	m.mu.RUnlock()
	if ok {
		return conv, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.sessions[key]; ok {
		conv.touch()
		return conv, false
	}
	conv = NewConversation()
	m.sessions[key] = conv
	return conv, true
}

func (m *Manager) Lookup(key string) (*Conversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.sessions[key]
	return conv, ok
}

// Reset clears the conversation for key if it exists.
func (m *Manager) Reset(key string) error {
	conv, ok := m.Lookup(key)
	if !ok {
		return nil
	}
	return conv.Reset()
}

func (m *Manager) Delete(key string) {
	m.mu.Lock()
	conv, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if ok {
		m.evicted(key, conv)
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle drops conversations untouched for longer than maxIdle and returns
// how many were removed. A conversation awaiting a reply is always kept.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	return m.evictIdleAt(time.Now(), maxIdle)
}

func (m *Manager) evictIdleAt(now time.Time, maxIdle time.Duration) int {
	gone := make(map[string]*Conversation)
	m.mu.Lock()
	for key, conv := range m.sessions {
		if conv.State() != StateIdle {
			continue
		}
		if now.Sub(conv.LastActive()) > maxIdle {
			delete(m.sessions, key)
			gone[key] = conv
		}
	}
	m.mu.Unlock()

	for key, conv := range gone {
		m.evicted(key, conv)
	}
	return len(gone)
}
