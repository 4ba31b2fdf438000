package history

import (
	"log/slog"
	"sync"

	"github.com/harunnryd/sekisho/internal/concurrency"
)

// Store is the authoritative, mutable history tree for one conversation.
// Every mutation goes through a single exclusive-access entry point: merges
// are not commutative (round ordering and the last-round rule for sub-turn
// routing depend on serialized application), so this is a critical section,
// never lock-free shared state.
type Store struct {
	conversationID string

	mu          sync.Mutex
	turns       []Turn
	tracking    map[string]string // child turn id -> parent turn id
	subscribers map[int]func([]Turn)
	nextSubID   int
	journal     journalSink
}

type journalSink interface {
	Record(entry JournalEntry)
}

func NewStore(conversationID string) *Store {
	return &Store{
		conversationID: conversationID,
		tracking:       make(map[string]string),
		subscribers:    make(map[int]func([]Turn)),
	}
}

// WithJournal attaches a journal sink that receives every applied mutation.
func (s *Store) WithJournal(j journalSink) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = j
	return s
}

func (s *Store) ConversationID() string {
	return s.conversationID
}

// Read returns a deep-copied snapshot of the top-level turns.
func (s *Store) Read() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Mutate applies transform under exclusive access. No two mutations
// interleave; subscribers observe the resulting snapshot.
func (s *Store) Mutate(transform func(turns []Turn) []Turn) {
	s.mu.Lock()
	s.turns = transform(s.turns)
	s.notifyLocked()
	s.mu.Unlock()
}

// Subscribe registers a change listener and returns its cancel function.
// Listeners are invoked asynchronously with a snapshot.
func (s *Store) Subscribe(fn func([]Turn)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// TrackSubTurn records that childID's updates route to parentID's turn.
func (s *Store) TrackSubTurn(childID, parentID string) {
	s.mu.Lock()
	s.tracking[childID] = parentID
	s.mu.Unlock()
}

// ResolveParent maps a turn id through the sub-turn tracking table, falling
// back to the id itself when no entry exists.
func (s *Store) ResolveParent(turnID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveParentLocked(turnID)
}

func (s *Store) resolveParentLocked(turnID string) string {
	if parent, ok := s.tracking[turnID]; ok {
		return parent
	}
	return turnID
}

// Append folds one streamed turn patch into the tree. A patch with
// ParentTurnID set merges into the parent turn's last round as sub-agent
// rounds; a patch for an unknown parent is dropped, since a turn cannot
// create its own parent. A top-level patch merges field-by-field into the
// turn with the same id, or appends as a new turn.
func (s *Store) Append(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.ParentTurnID != nil {
		parentID := s.resolveParentLocked(*turn.ParentTurnID)
		parent := s.findAssistantTurnLocked(parentID)
		if parent == nil {
			slog.Warn("Dropping sub-turn update for unknown parent",
				"conversation", s.conversationID,
				"turn", turn.ID,
				"parent", parentID,
			)
			return
		}

		// Sub-turns are sequential, never concurrent, so the parent's
		// last round is the unambiguous attachment point.
		if len(parent.Rounds) == 0 {
			parent.Rounds = append(parent.Rounds, Round{})
		}
		last := &parent.Rounds[len(parent.Rounds)-1]
		mergeRounds(&last.SubAgentRounds, turn.Rounds)

		s.tracking[turn.ID] = parentID
		s.recordLocked(JournalEntry{Op: JournalOpAppend, Turn: &turn})
		s.notifyLocked()
		return
	}

	for i := range s.turns {
		if s.turns[i].ID == turn.ID {
			mergeTurn(&s.turns[i], turn)
			s.recordLocked(JournalEntry{Op: JournalOpAppend, Turn: &turn})
			s.notifyLocked()
			return
		}
	}

	s.turns = append(s.turns, cloneTurn(turn))
	s.recordLocked(JournalEntry{Op: JournalOpAppend, Turn: &turn})
	s.notifyLocked()
}

// Remove deletes the top-level turn with the given id.
func (s *Store) Remove(id string) {
	s.RemoveAll([]string{id})
}

// RemoveAll deletes the top-level turns with the given ids.
func (s *Store) RemoveAll(ids []string) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.turns[:0]
	for _, turn := range s.turns {
		if _, gone := drop[turn.ID]; !gone {
			kept = append(kept, turn)
		}
	}
	s.turns = kept
	s.recordLocked(JournalEntry{Op: JournalOpRemove, TurnIDs: ids})
	s.notifyLocked()
}

// Clear deletes every top-level turn.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.recordLocked(JournalEntry{Op: JournalOpClear})
	s.notifyLocked()
}

func (s *Store) findAssistantTurnLocked(id string) *Turn {
	for i := range s.turns {
		if s.turns[i].ID == id && s.turns[i].Role == RoleAssistant {
			return &s.turns[i]
		}
	}
	return nil
}

func (s *Store) snapshotLocked() []Turn {
	out := make([]Turn, 0, len(s.turns))
	for _, turn := range s.turns {
		out = append(out, cloneTurn(turn))
	}
	return out
}

func (s *Store) notifyLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snapshot := s.snapshotLocked()
	for _, fn := range s.subscribers {
		fn := fn
		concurrency.SafeGo(func() { fn(snapshot) }, nil)
	}
}

func (s *Store) recordLocked(entry JournalEntry) {
	if s.journal == nil {
		return
	}
	entry.ConversationID = s.conversationID
	s.journal.Record(entry)
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
