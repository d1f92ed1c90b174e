// Package session orchestrates one active conversation: turn-taking, persona
// binding, page attachment, streaming, and commits through the history and
// settings stores.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"pagechat/internal/chat"
	"pagechat/internal/gemini"
	"pagechat/internal/history"
	"pagechat/internal/settings"
)

// State 会话引擎状态机 / State is the engine's per-session state.
type State int

const (
	// StateIdle: empty session, id still unassigned.
	StateIdle State = iota
	// StateComposing: persona bound, no request pending.
	StateComposing
	// StateAwaitingResponse: a model request is in flight.
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComposing:
		return "composing"
	case StateAwaitingResponse:
		return "awaiting_response"
	}
	return "unknown"
}

var (
	// ErrBusy rejects mutations while a model request is in flight. The busy
	// state is engine-owned, not a front-end convention.
	ErrBusy = errors.New("session: request already in flight")

	// ErrEmptyMessage rejects blank user input; nothing is appended or sent.
	ErrEmptyMessage = errors.New("session: empty message")

	// ErrNoAPIKey short-circuits a turn before any network call.
	ErrNoAPIKey = errors.New("session: no API key configured")

	// ErrUnknownPersona rejects binding to an id absent from the registry.
	ErrUnknownPersona = errors.New("session: unknown persona")

	// ErrSessionNotFound is returned by Load for an id absent from history.
	ErrSessionNotFound = errors.New("session: not found in history")
)

// Generator is the streaming model collaborator.
type Generator interface {
	GenerateStream(ctx context.Context, req gemini.GenerateRequest, onPartial gemini.PartialFunc) (string, error)
}

// GeneratorFactory builds a Generator for one turn. Settings are re-read each
// turn, so the credential is bound at call time, not construction time.
type GeneratorFactory func(cfg gemini.Config) Generator

// Options wires the engine's collaborators.
type Options struct {
	Settings *settings.Store
	History  *history.Store
	Logger   zerolog.Logger

	// Endpoint/Model/TimeoutMS configure the generator; empties take the
	// gemini defaults.
	Endpoint  string
	Model     string
	TimeoutMS int

	// NewGenerator overrides the default client factory (tests).
	NewGenerator GeneratorFactory

	// Markdownify converts page HTML to markdown before inclusion in a
	// request. Conversion is a collaborator concern; identity by default.
	Markdownify func(string) string
}

// Engine 会话引擎 / Engine owns the single active conversation.
type Engine struct {
	mu    sync.Mutex
	state State

	current  chat.Session
	settings *settings.Store
	history  *history.Store
	log      zerolog.Logger

	endpoint     string
	model        string
	timeoutMS    int
	newGenerator GeneratorFactory
	markdownify  func(string) string
	tokens       *tokenizer
}

// New builds an engine in StateIdle with no session bound.
func New(opts Options) *Engine {
	factory := opts.NewGenerator
	if factory == nil {
		log := opts.Logger
		factory = func(cfg gemini.Config) Generator {
			return gemini.NewClient(cfg, log)
		}
	}
	markdownify := opts.Markdownify
	if markdownify == nil {
		markdownify = func(s string) string { return s }
	}
	return &Engine{
		state:        StateIdle,
		settings:     opts.Settings,
		history:      opts.History,
		log:          opts.Logger.With().Str("component", "session").Logger(),
		endpoint:     opts.Endpoint,
		model:        opts.Model,
		timeoutMS:    opts.TimeoutMS,
		newGenerator: factory,
		markdownify:  markdownify,
		tokens:       newTokenizer(),
	}
}

// State returns the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns a copy of the in-memory session.
func (e *Engine) Current() chat.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// StartNew discards the in-memory session (persisted state stays in history)
// and binds a fresh empty session to the registry's current persona. The new
// session gets a history id lazily, on its first persisted mutation.
func (e *Engine) StartNew() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateAwaitingResponse {
		return ErrBusy
	}
	e.current = chat.Session{Persona: e.settings.CurrentPersona()}
	e.state = StateComposing
	e.log.Debug().Str("persona", e.current.Persona.ID).Msg("new session")
	return nil
}

// Load replaces the in-memory session with a stored record. The persona
// snapshot is re-resolved against the registry by id; if the id is gone, a
// custom persona carrying the saved name and prompt is synthesized.
func (e *Engine) Load(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateAwaitingResponse {
		return ErrBusy
	}

	stored, ok := e.history.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	stored.Persona = e.resolvePersona(stored.Persona)
	e.current = stored
	e.state = StateComposing
	e.log.Debug().Str("session", id).Msg("session loaded")
	return nil
}

func (e *Engine) resolvePersona(snapshot chat.Persona) chat.Persona {
	if p, ok := e.settings.Persona(snapshot.ID); ok {
		return p
	}
	return chat.Persona{
		ID:           "custom",
		Name:         snapshot.Name,
		SystemPrompt: snapshot.SystemPrompt,
	}
}

// SetPageInfo attaches page content to the session; nil clears it. Triggers a
// persisted upsert.
func (e *Engine) SetPageInfo(page *chat.PageContent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateAwaitingResponse {
		return ErrBusy
	}
	if page != nil {
		pc := *page
		e.current.PageInfo = &pc
	} else {
		e.current.PageInfo = nil
	}
	e.ensureComposing()
	e.persist()
	return nil
}

// SetPersona re-binds the session to a registry persona by id.
func (e *Engine) SetPersona(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateAwaitingResponse {
		return ErrBusy
	}
	p, ok := e.settings.Persona(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPersona, id)
	}
	e.current.Persona = p
	e.ensureComposing()
	e.persist()
	return nil
}

// SendUserMessage appends a user message, persists it, issues the model
// request and, on stream success, appends and persists the assembled
// assistant message, which is returned.
//
// Failures after the user message is committed are returned as both an error
// and a synthesized system-role diagnostic for display; the diagnostic is
// never persisted and the session stays usable.
func (e *Engine) SendUserMessage(ctx context.Context, text string, onPartial gemini.PartialFunc) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	e.mu.Lock()
	if e.state == StateAwaitingResponse {
		e.mu.Unlock()
		return chat.Message{}, ErrBusy
	}
	if e.state == StateIdle {
		e.current = chat.Session{Persona: e.settings.CurrentPersona()}
	}

	e.current.Messages = append(e.current.Messages, chat.Message{Role: chat.RoleUser, Content: text})
	e.persist()

	cfg := e.settings.Get()
	if strings.TrimSpace(cfg.APIKey) == "" {
		e.state = StateComposing
		e.mu.Unlock()
		return diagnostic("Error: No API key configured. Please add your Gemini API key in settings."), ErrNoAPIKey
	}

	req := gemini.GenerateRequest{
		Messages:     append([]chat.Message(nil), e.current.Messages...),
		SystemPrompt: e.current.Persona.SystemPrompt,
		Temperature:  cfg.Temperature,
	}
	if e.current.PageInfo != nil {
		page := *e.current.PageInfo
		req.Page = &page
		req.PageMarkdown = e.markdownify(page.Content)
	}

	gen := e.newGenerator(gemini.Config{
		Endpoint:  e.endpoint,
		Model:     e.model,
		APIKey:    cfg.APIKey,
		TimeoutMS: e.timeoutMS,
	})

	e.state = StateAwaitingResponse
	e.log.Debug().
		Int("messages", len(req.Messages)).
		Int("est_tokens", e.tokens.estimate(req.Messages, req.SystemPrompt, req.PageMarkdown)).
		Msg("model request")
	e.mu.Unlock()

	// Suspension point: the stream read loop runs without the engine lock so
	// State() stays observable. Busy rejection above keeps this single-flight.
	reply, err := gen.GenerateStream(ctx, req, onPartial)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateComposing

	if err != nil {
		e.log.Warn().Err(err).Msg("model request failed")
		return diagnostic("Error: " + err.Error()), err
	}

	assistant := chat.Message{Role: chat.RoleAssistant, Content: reply}
	e.current.Messages = append(e.current.Messages, assistant)
	e.persist()
	return assistant, nil
}

func (e *Engine) ensureComposing() {
	if e.state == StateIdle {
		if e.current.Persona.ID == "" {
			e.current.Persona = e.settings.CurrentPersona()
		}
		e.state = StateComposing
	}
}

// persist upserts the in-memory session into history. Callers hold e.mu.
func (e *Engine) persist() {
	if e.current.ID == "" {
		e.current.ID = e.history.Add(e.current)
		return
	}
	patch := history.SessionPatch{
		Messages: append([]chat.Message(nil), e.current.Messages...),
		Persona:  &e.current.Persona,
	}
	if e.current.PageInfo != nil {
		pc := *e.current.PageInfo
		patch.PageInfo = &pc
	} else {
		patch.ClearPage = true
	}
	if !e.history.Update(e.current.ID, patch) {
		// Session evicted or deleted underneath us; re-add under a fresh id.
		e.current.ID = ""
		e.current.ID = e.history.Add(e.current)
	}
}

func diagnostic(text string) chat.Message {
	return chat.Message{Role: chat.RoleSystem, Content: text}
}
