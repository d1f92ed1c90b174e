// Package settings owns the persisted Settings record: API credential,
// generation temperature, and the persona registry.
package settings

import "pagechat/internal/chat"

// Settings 与持久化 settings 记录同构 / Settings mirrors the persisted
// "settings" record.
type Settings struct {
	APIKey         string                  `json:"apiKey"`
	Temperature    float64                 `json:"temperature"`
	Personas       map[string]chat.Persona `json:"personas"`
	CurrentPersona string                  `json:"currentPersona"`
}

// BuiltinPersonaIDs lists the persona ids that must exist in every registry,
// in display order.
var BuiltinPersonaIDs = []string{"default", "researcher", "creative", "programmer", "custom"}

// Defaults returns the built-in Settings. Callers get a fresh copy; the persona
// map is never shared.
func Defaults() Settings {
	return Settings{
		APIKey:      "",
		Temperature: 0.7,
		Personas: map[string]chat.Persona{
			"default": {
				ID:           "default",
				Name:         "Default Assistant",
				SystemPrompt: "You are a helpful AI assistant that provides information about webpages.",
			},
			"researcher": {
				ID:           "researcher",
				Name:         "Academic Researcher",
				SystemPrompt: "You are an academic researcher AI that analyzes webpages with scholarly precision, citing sources and maintaining academic rigor.",
			},
			"creative": {
				ID:           "creative",
				Name:         "Creative Writer",
				SystemPrompt: "You are a creative AI that discusses webpages in an engaging, narrative style with colorful language and metaphors.",
			},
			"programmer": {
				ID:           "programmer",
				Name:         "Programmer",
				SystemPrompt: "You are a programmer AI that provides technical analysis of webpages, focusing on code, architecture, and implementation details.",
			},
			"custom": {
				ID:           "custom",
				Name:         "Custom",
				SystemPrompt: "You are a custom assistant with personalized instructions.",
			},
		},
		CurrentPersona: "default",
	}
}

// IsBuiltin reports whether id names a built-in persona.
func IsBuiltin(id string) bool {
	for _, builtin := range BuiltinPersonaIDs {
		if builtin == id {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers cannot mutate store state through the
// returned value.
func (s Settings) clone() Settings {
	out := s
	out.Personas = make(map[string]chat.Persona, len(s.Personas))
	for id, p := range s.Personas {
		out.Personas[id] = p
	}
	return out
}
