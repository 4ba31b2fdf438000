package concurrency

import "sync"

// ConversationLockManager serializes processing per conversation id.
type ConversationLockManager struct {
	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

func NewConversationLockManager() *ConversationLockManager {
	return &ConversationLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *ConversationLockManager) Lock(conversationID string) {
	m.mu.Lock()
	lock, ok := m.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[conversationID] = lock
	}
	m.mu.Unlock()
	lock.Lock()
}

func (m *ConversationLockManager) Unlock(conversationID string) {
	m.mu.Lock()
	lock, ok := m.locks[conversationID]
	if ok {
		lock.Unlock()
	}
	m.mu.Unlock()
}
