package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"pagechat/internal/chat"
	"pagechat/internal/kv"
)

// StorageKey 持久化键名 / StorageKey is the kv record holding the settings.
const StorageKey = "settings"

// storedSettings is the overlay shape read from disk or import. Pointer fields
// distinguish "absent" from zero so the default merge stays explicit and total.
type storedSettings struct {
	APIKey         *string                  `json:"apiKey"`
	Temperature    *float64                 `json:"temperature"`
	Personas       map[string]storedPersona `json:"personas"`
	CurrentPersona *string                  `json:"currentPersona"`
}

type storedPersona struct {
	Name         *string `json:"name"`
	SystemPrompt *string `json:"systemPrompt"`
}

// Patch is a partial Settings update. Nil fields are untouched; Personas
// entries are merged into the registry by id.
type Patch struct {
	APIKey         *string
	Temperature    *float64
	Personas       map[string]chat.Persona
	CurrentPersona *string
}

// Store 配置存储：默认值合并、人格注册表、导入导出
// Store owns default/override merge for credentials, generation parameters and
// the persona registry. Construct with NewStore; no ambient globals.
type Store struct {
	mu      sync.Mutex
	kv      kv.Store
	log     zerolog.Logger
	current Settings
}

// NewStore loads persisted settings through the kv collaborator. Absence or a
// parse failure falls back to defaults and is never surfaced to the caller.
func NewStore(store kv.Store, log zerolog.Logger) *Store {
	s := &Store{
		kv:  store,
		log: log.With().Str("component", "settings").Logger(),
	}
	s.current = s.load()
	return s
}

func (s *Store) load() Settings {
	data, err := s.kv.Get(StorageKey)
	if err != nil {
		if err != kv.ErrNotFound {
			s.log.Warn().Err(err).Msg("read settings failed, using defaults")
		}
		return Defaults()
	}

	var stored storedSettings
	if err := json.Unmarshal(data, &stored); err != nil {
		s.log.Warn().Err(err).Msg("parse settings failed, using defaults")
		return Defaults()
	}
	return mergeStored(Defaults(), stored)
}

// mergeStored overlays stored values onto defaults (stored wins), then
// backfills any built-in persona id the stored data dropped and re-points
// currentPersona if it no longer resolves.
func mergeStored(base Settings, stored storedSettings) Settings {
	out := base.clone()

	if stored.APIKey != nil {
		out.APIKey = *stored.APIKey
	}
	if stored.Temperature != nil {
		out.Temperature = *stored.Temperature
	}
	if stored.Personas != nil {
		out.Personas = make(map[string]chat.Persona, len(stored.Personas))
		for id, sp := range stored.Personas {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			p := chat.Persona{ID: id}
			if sp.Name != nil {
				p.Name = *sp.Name
			}
			if sp.SystemPrompt != nil {
				p.SystemPrompt = *sp.SystemPrompt
			}
			out.Personas[id] = p
		}
	}
	if stored.CurrentPersona != nil {
		out.CurrentPersona = strings.TrimSpace(*stored.CurrentPersona)
	}

	// Built-ins must survive any load or merge.
	defaults := Defaults()
	for _, id := range BuiltinPersonaIDs {
		if _, ok := out.Personas[id]; !ok {
			out.Personas[id] = defaults.Personas[id]
		}
	}
	if _, ok := out.Personas[out.CurrentPersona]; !ok {
		out.CurrentPersona = defaults.CurrentPersona
	}
	return out
}

// persist writes the full record. The in-memory result already reflects the
// change; a failed write is logged and not surfaced.
func (s *Store) persist() {
	data, err := json.Marshal(s.current)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal settings failed")
		return
	}
	if err := s.kv.Set(StorageKey, data); err != nil {
		s.log.Warn().Err(err).Msg("persist settings failed")
	}
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Update applies a partial patch, persists, and returns the new settings.
func (s *Store) Update(patch Patch) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.APIKey != nil {
		s.current.APIKey = strings.TrimSpace(*patch.APIKey)
	}
	if patch.Temperature != nil {
		s.current.Temperature = *patch.Temperature
	}
	for id, p := range patch.Personas {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		p.ID = id
		s.current.Personas[id] = p
	}
	if patch.CurrentPersona != nil {
		if _, ok := s.current.Personas[*patch.CurrentPersona]; ok {
			s.current.CurrentPersona = *patch.CurrentPersona
		}
	}

	s.persist()
	return s.current.clone()
}

// UpdatePersona merges name/prompt into an existing or new persona entry.
// Empty arguments leave the corresponding field untouched.
func (s *Store) UpdatePersona(id, name, systemPrompt string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.current.Personas[id]
	if !ok {
		p = chat.Persona{ID: id}
	}
	if strings.TrimSpace(name) != "" {
		p.Name = strings.TrimSpace(name)
	}
	if strings.TrimSpace(systemPrompt) != "" {
		p.SystemPrompt = strings.TrimSpace(systemPrompt)
	}
	s.current.Personas[id] = p
	s.persist()
	return true
}

// SetCurrentPersona re-points the active persona; false if id is unknown.
func (s *Store) SetCurrentPersona(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.current.Personas[id]; !ok {
		return false
	}
	s.current.CurrentPersona = id
	s.persist()
	return true
}

// CurrentPersona returns the active persona.
func (s *Store) CurrentPersona() chat.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Personas[s.current.CurrentPersona]
}

// Persona looks up a registry entry by id.
func (s *Store) Persona(id string) (chat.Persona, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.current.Personas[id]
	return p, ok
}

// ResetPersona restores a built-in persona to its shipped definition; no-op
// (false) for non-built-in ids.
func (s *Store) ResetPersona(id string) bool {
	if !IsBuiltin(id) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Personas[id] = Defaults().Personas[id]
	s.persist()
	return true
}

// ResetAll restores every setting to defaults and persists.
func (s *Store) ResetAll() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Defaults()
	s.persist()
	return s.current.clone()
}

// Export returns the exact JSON of the settings record.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export settings: %w", err)
	}
	return data, nil
}

// Import replaces the settings from exported JSON. The input goes through the
// same default-merge and built-in backfill as load rather than being trusted
// verbatim.
func (s *Store) Import(data []byte) error {
	var stored storedSettings
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("parse imported settings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = mergeStored(Defaults(), stored)
	s.persist()
	return nil
}
