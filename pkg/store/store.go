// Package store persists the widget's chat history and the visitor's
// saved genealogy records as JSON files on disk.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/chat"
)

const (
	historyFile = "jewish_data_chat_history.json"
	recordsFile = "jewish_data_saved_records.json"

	currentVersion = 1

	// maxContextMessages bounds how much history is replayed into the
	// model's prompt context. The full history stays on disk.
	maxContextMessages = 40
)

// ChatMessage is one persisted conversation turn.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      chat.Role `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// SavedRecord is a genealogy record the visitor chose to keep.
type SavedRecord struct {
	ID      string         `json:"id"`
	Record  archive.Record `json:"record"`
	Note    string         `json:"note,omitempty"`
	SavedAt time.Time      `json:"saved_at"`
}

// Store holds both collections under one data directory. All writes go
// through a temp file and rename so a crash never leaves a torn file.
type Store struct {
	dir string

	mu      sync.RWMutex
	history []ChatMessage
	records map[string]SavedRecord
}

type historyData struct {
	Version  int           `json:"version"`
	Messages []ChatMessage `json:"messages"`
}

type recordsData struct {
	Version int           `json:"version"`
	Records []SavedRecord `json:"records"`
}

// New opens (or creates) a store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	s := &Store{
		dir:     dir,
		records: make(map[string]SavedRecord),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if data, err := os.ReadFile(filepath.Join(s.dir, historyFile)); err == nil {
		var stored historyData
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("store: parse history: %w", err)
		}
		s.history = stored.Messages
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("store: read history: %w", err)
	}

	if data, err := os.ReadFile(filepath.Join(s.dir, recordsFile)); err == nil {
		var stored recordsData
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("store: parse records: %w", err)
		}
		for _, r := range stored.Records {
			s.records[r.ID] = r
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("store: read records: %w", err)
	}

	return nil
}

// writeFile atomically replaces the named file in the data directory.
func (s *Store) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}

	path := filepath.Join(s.dir, name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}

func (s *Store) saveHistory() error {
	return s.writeFile(historyFile, historyData{Version: currentVersion, Messages: s.history})
}

func (s *Store) saveRecords() error {
	records := make([]SavedRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].SavedAt.Before(records[j].SavedAt)
	})
	return s.writeFile(recordsFile, recordsData{Version: currentVersion, Records: records})
}

// AppendMessage adds a conversation turn to the history.
func (s *Store) AppendMessage(role chat.Role, text string) (ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := ChatMessage{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
	s.history = append(s.history, msg)
	return msg, s.saveHistory()
}

// History returns all conversation turns in order.
func (s *Store) History() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// ChatHistory converts the most recent stored turns into the chat
// client's format, bounded so a long-running conversation does not grow
// the prompt without limit.
func (s *Store) ChatHistory() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tail := s.history
	if len(tail) > maxContextMessages {
		tail = tail[len(tail)-maxContextMessages:]
	}
	out := make([]chat.Message, 0, len(tail))
	for _, msg := range tail {
		out = append(out, chat.Message{Role: msg.Role, Text: msg.Text})
	}
	return out
}

// ClearHistory removes all conversation turns.
func (s *Store) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	return s.saveHistory()
}

// SaveRecord keeps a genealogy record with an optional note.
func (s *Store) SaveRecord(record archive.Record, note string) (SavedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := SavedRecord{
		ID:      uuid.New().String(),
		Record:  record,
		Note:    note,
		SavedAt: time.Now(),
	}
	s.records[saved.ID] = saved
	return saved, s.saveRecords()
}

// Records returns all saved records, oldest first.
func (s *Store) Records() []SavedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SavedRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SavedAt.Before(out[j].SavedAt)
	})
	return out
}

// DeleteRecord removes a saved record by ID.
func (s *Store) DeleteRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("store: record not found: %s", id)
	}
	delete(s.records, id)
	return s.saveRecords()
}

// Dir returns the store's data directory.
func (s *Store) Dir() string {
	return s.dir
}
