package history

import (
	"log/slog"
	"sync"
)

// Manager hands out one Store per conversation id, wiring a journal when
// journaling is enabled.
type Manager struct {
	journalDir     string
	journalEnabled bool
	rotateMaxBytes int64

	mu       sync.Mutex
	stores   map[string]*Store
	journals map[string]*Journal
}

func NewManager(journalDir string, journalEnabled bool, rotateMaxBytes int64) *Manager {
	return &Manager{
		journalDir:     journalDir,
		journalEnabled: journalEnabled,
		rotateMaxBytes: rotateMaxBytes,
		stores:         make(map[string]*Store),
		journals:       make(map[string]*Journal),
	}
}

// Get returns the store for a conversation, creating it on first use.
func (m *Manager) Get(conversationID string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[conversationID]; ok {
		return s
	}

	s := NewStore(conversationID)
	if m.journalEnabled {
		j, err := NewJournal(m.journalDir, conversationID, m.rotateMaxBytes)
		if err != nil {
			slog.Warn("Journal disabled for conversation", "conversation", conversationID, "error", err)
		} else {
			s.WithJournal(j)
			m.journals[conversationID] = j
		}
	}
	m.stores[conversationID] = s
	return s
}

// Close stops every journal writer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.journals {
		j.Close()
	}
	m.journals = make(map[string]*Journal)
}
