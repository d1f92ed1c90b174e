// Package history owns the size-bounded, searchable persistence of chat
// sessions.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pagechat/internal/chat"
	"pagechat/internal/kv"
)

const (
	// StorageKey 持久化键名 / StorageKey is the kv record holding the collection.
	StorageKey = "history"

	// MaxItems bounds the collection; the oldest entry is evicted beyond it.
	MaxItems = 100
)

// ErrNotFound is returned when a session id does not resolve.
var ErrNotFound = errors.New("history: session not found")

// ImportError reports the first invalid element of an import; the whole import
// is aborted with no partial write.
type ImportError struct {
	Index int
	Field string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("history import: element %d has empty %s", e.Index, e.Field)
}

// SessionPatch is a partial session update. Nil fields are untouched.
// ClearPage detaches page content; it wins over PageInfo.
type SessionPatch struct {
	Title     *string
	Messages  []chat.Message
	PageInfo  *chat.PageContent
	ClearPage bool
	Persona   *chat.Persona
}

// Store 历史存储：有界集合 + 搜索 + 配额自救
// Store keeps the session collection in memory, newest-mutated-first, and
// writes it as one kv record on every mutation.
type Store struct {
	mu       sync.Mutex
	kv       kv.Store
	log      zerolog.Logger
	sessions []chat.Session
	now      func() time.Time
}

// NewStore loads the persisted collection. Absence or a parse failure starts
// empty; the error is logged, not surfaced.
func NewStore(store kv.Store, log zerolog.Logger) *Store {
	s := &Store{
		kv:  store,
		log: log.With().Str("component", "history").Logger(),
		now: time.Now,
	}
	s.sessions = s.load()
	return s
}

func (s *Store) load() []chat.Session {
	data, err := s.kv.Get(StorageKey)
	if err != nil {
		if err != kv.ErrNotFound {
			s.log.Warn().Err(err).Msg("read history failed, starting empty")
		}
		return nil
	}
	var sessions []chat.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		s.log.Warn().Err(err).Msg("parse history failed, starting empty")
		return nil
	}
	return sessions
}

// persist writes the full collection. On a quota failure it drops the oldest
// half and retries exactly once; a failed retry leaves the trimmed in-memory
// state ahead of the persisted one until the next successful write.
func (s *Store) persist() {
	data, err := json.Marshal(s.sessions)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal history failed")
		return
	}
	err = s.kv.Set(StorageKey, data)
	if err == nil {
		return
	}
	if !errors.Is(err, kv.ErrQuotaExceeded) {
		s.log.Warn().Err(err).Msg("persist history failed")
		return
	}

	drop := len(s.sessions) / 2
	s.sessions = append([]chat.Session(nil), s.sessions[:len(s.sessions)-drop]...)
	s.log.Warn().
		Int("dropped", drop).
		Int("remaining", len(s.sessions)).
		Msg("storage quota exceeded, dropped oldest half and retrying")

	data, err = json.Marshal(s.sessions)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal trimmed history failed")
		return
	}
	if err := s.kv.Set(StorageKey, data); err != nil {
		// No further automatic retry; in-memory stays trimmed.
		s.log.Error().Err(err).Msg("persist history failed after quota trim")
	}
}

// Add inserts a new session at the head, assigns a fresh id and, when the
// input carries no title, derives one from its content. Returns the id.
func (s *Store) Add(input chat.Session) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := input.Clone()
	session.ID = NewSessionID()
	session.Timestamp = s.now().UnixMilli()
	if strings.TrimSpace(session.Title) == "" {
		session.Title = GenerateTitle(session, s.now())
	}

	s.sessions = append([]chat.Session{session}, s.sessions...)
	if len(s.sessions) > MaxItems {
		s.sessions = s.sessions[:MaxItems]
	}
	s.persist()
	return session.ID
}

// Update merges a patch over the stored session, refreshes its recency, and
// regenerates the title when the patch touches messages without supplying a
// title of its own. Returns false (no side effect) for an unknown id.
func (s *Store) Update(id string, patch SessionPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}

	session := s.sessions[idx].Clone()
	if patch.Title != nil {
		session.Title = *patch.Title
	}
	if patch.Messages != nil {
		session.Messages = append([]chat.Message(nil), patch.Messages...)
	}
	if patch.ClearPage {
		session.PageInfo = nil
	} else if patch.PageInfo != nil {
		pc := *patch.PageInfo
		session.PageInfo = &pc
	}
	if patch.Persona != nil {
		session.Persona = *patch.Persona
	}
	session.Timestamp = s.now().UnixMilli()

	if patch.Messages != nil && patch.Title == nil {
		session.Title = GenerateTitle(session, s.now())
	}

	// Mutation moves the session to the head: the collection is ordered by
	// effective recency, not creation.
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	s.sessions = append([]chat.Session{session}, s.sessions...)
	s.persist()
	return true
}

// Delete removes a session by id; false if absent.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	s.persist()
	return true
}

// Clear drops the entire collection.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = nil
	if err := s.kv.Delete(StorageKey); err != nil {
		s.log.Warn().Err(err).Msg("clear history failed")
	}
}

// Get returns a session copy by id.
func (s *Store) Get(id string) (chat.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return chat.Session{}, false
	}
	return s.sessions[idx].Clone(), true
}

// All returns the collection in persisted order (newest mutation first).
func (s *Store) All() []chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneAll()
}

// Search filters sessions by case-insensitive substring match across title,
// page title and every message body. A blank query returns everything.
func (s *Store) Search(query string) []chat.Session {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return s.All()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []chat.Session
	for _, session := range s.sessions {
		if sessionMatches(session, query) {
			out = append(out, session.Clone())
		}
	}
	return out
}

func sessionMatches(session chat.Session, loweredQuery string) bool {
	if strings.Contains(strings.ToLower(session.Title), loweredQuery) {
		return true
	}
	if session.PageInfo != nil &&
		strings.Contains(strings.ToLower(session.PageInfo.Title), loweredQuery) {
		return true
	}
	for _, msg := range session.Messages {
		if strings.Contains(strings.ToLower(msg.Content), loweredQuery) {
			return true
		}
	}
	return false
}

// Export returns the exact JSON of the full collection.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export history: %w", err)
	}
	return data, nil
}

// Import replaces the collection from exported JSON. Every element must carry
// a non-empty id, title and timestamp; any violation aborts the whole import
// leaving the store untouched.
func (s *Store) Import(data []byte) error {
	var imported []chat.Session
	if err := json.Unmarshal(data, &imported); err != nil {
		return fmt.Errorf("parse imported history: %w", err)
	}
	for i, session := range imported {
		switch {
		case strings.TrimSpace(session.ID) == "":
			return &ImportError{Index: i, Field: "id"}
		case strings.TrimSpace(session.Title) == "":
			return &ImportError{Index: i, Field: "title"}
		case session.Timestamp <= 0:
			return &ImportError{Index: i, Field: "timestamp"}
		}
		for j, msg := range session.Messages {
			imported[i].Messages[j].Role = chat.NormalizeRole(string(msg.Role))
		}
	}
	if len(imported) > MaxItems {
		imported = imported[:MaxItems]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = imported
	s.persist()
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, session := range s.sessions {
		if session.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) cloneAll() []chat.Session {
	out := make([]chat.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	return out
}
