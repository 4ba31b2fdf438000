package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

type JournalOp string

const (
	JournalOpAppend JournalOp = "append"
	JournalOpRemove JournalOp = "remove"
	JournalOpClear  JournalOp = "clear"
)

// JournalEntry is one applied history mutation, serialized as a JSONL line.
type JournalEntry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"ts"`
	ConversationID string    `json:"conversationId"`
	Op             JournalOp `json:"op"`
	Turn           *Turn     `json:"turn,omitempty"`
	TurnIDs        []string  `json:"turnIds,omitempty"`
}

// Journal is a single-owner writer for a conversation's mutation log.
// Entries flow through an inbox channel to one goroutine; the log rotates
// once it exceeds rotateMaxBytes.
type Journal struct {
	path           string
	rotateMaxBytes int64
	inbox          chan JournalEntry
	quit           chan struct{}
	wg             sync.WaitGroup
	running        stdatomic.Bool
}

const defaultJournalInbox = 64

func NewJournal(dir, conversationID string, rotateMaxBytes int64) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}

	j := &Journal{
		path:           filepath.Join(dir, conversationID+".jsonl"),
		rotateMaxBytes: rotateMaxBytes,
		inbox:          make(chan JournalEntry, defaultJournalInbox),
		quit:           make(chan struct{}),
	}
	j.wg.Add(1)
	j.running.Store(true)
	go j.loop()
	return j, nil
}

// Record enqueues an entry. A full inbox drops the entry rather than block
// the history store's critical section.
func (j *Journal) Record(entry JournalEntry) {
	if !j.running.Load() {
		return
	}
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	select {
	case j.inbox <- entry:
	default:
		slog.Warn("Journal inbox full, dropping entry", "path", j.path, "op", entry.Op)
	}
}

// Close drains the inbox and stops the writer.
func (j *Journal) Close() {
	if !j.running.CompareAndSwap(true, false) {
		return
	}
	close(j.quit)
	j.wg.Wait()
}

func (j *Journal) loop() {
	defer j.wg.Done()
	for {
		select {
		case entry := <-j.inbox:
			j.write(entry)
		case <-j.quit:
			for {
				select {
				case entry := <-j.inbox:
					j.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(entry JournalEntry) {
	line, err := json.Marshal(entry)
	if err != nil {
		slog.Error("Failed to marshal journal entry", "error", err)
		return
	}

	j.rotateIfNeeded(int64(len(line) + 1))

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("Failed to open journal", "path", j.path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Error("Failed to write journal entry", "path", j.path, "error", err)
	}
}

func (j *Journal) rotateIfNeeded(incoming int64) {
	if j.rotateMaxBytes <= 0 {
		return
	}
	info, err := os.Stat(j.path)
	if err != nil {
		return
	}
	if info.Size()+incoming <= j.rotateMaxBytes {
		return
	}

	rotated := j.path + ".1"
	if err := os.Rename(j.path, rotated); err != nil {
		slog.Error("Failed to rotate journal", "path", j.path, "error", err)
		return
	}
	slog.Info("Journal rotated", "path", j.path, "rotated", rotated)
}

// ReadJournal loads the persisted entries for a conversation, oldest first.
// limit 0 reads all.
func ReadJournal(dir, conversationID string, limit int) ([]JournalEntry, error) {
	path := filepath.Join(dir, conversationID+".jsonl")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
