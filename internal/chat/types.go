package chat

import "strings"

// Role 消息角色 / Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation entry. Messages are append-only within a
// session; ordering is append order.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PageContent 外部抽取器产出的页面内容，核心只读不改
// PageContent is the page payload produced by the external extractor. The core
// treats it as opaque and never mutates it.
type PageContent struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Content  string `json:"content"`
	SiteName string `json:"siteName,omitempty"`
}

// Persona is a named system-prompt configuration. Identity is ID; Name and
// SystemPrompt are editable.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
}

// Session 单次对话：消息序列、可选页面内容与绑定人格快照
// Session is one conversation thread: its messages, optional attached page
// content, and the persona bound at the time of last update. Persona is a value
// snapshot, not a registry reference; later registry edits do not rewrite past
// sessions.
type Session struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Timestamp int64        `json:"timestamp"` // unix milliseconds of last mutation
	Messages  []Message    `json:"messages"`
	PageInfo  *PageContent `json:"pageInfo,omitempty"`
	Persona   Persona      `json:"persona"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	if s.PageInfo != nil {
		pc := *s.PageInfo
		out.PageInfo = &pc
	}
	return out
}

// FirstUserMessage returns the first user-role message content, or "" if none.
func (s Session) FirstUserMessage() (string, bool) {
	for _, msg := range s.Messages {
		if msg.Role == RoleUser {
			return msg.Content, true
		}
	}
	return "", false
}

// NormalizeRole lowercases and trims a role string read from an import.
func NormalizeRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}
