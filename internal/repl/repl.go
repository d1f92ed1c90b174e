// Package repl 提供交互式命令行会话循环。
// Package repl provides the interactive command-line session loop.
package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"pagechat/internal/chat"
	"pagechat/internal/history"
	"pagechat/internal/session"
	"pagechat/internal/settings"
)

// Options configures a Loop. Engine, Settings and History are required.
type Options struct {
	Engine   *session.Engine
	Settings *settings.Store
	History  *history.Store
	Input    LineInput
	Out      io.Writer
	Theme    Theme
	Width    int
	Logger   zerolog.Logger
}

// Loop reads user input, dispatches slash commands and streams model replies.
type Loop struct {
	engine   *session.Engine
	settings *settings.Store
	history  *history.Store
	input    LineInput
	out      io.Writer
	theme    Theme
	width    int
	log      zerolog.Logger
}

func New(opts Options) *Loop {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	input := opts.Input
	if input == nil {
		input = newBasicLineInput(os.Stdin, out)
	}
	width := opts.Width
	if width <= 0 {
		width = 100
	}
	return &Loop{
		engine:   opts.Engine,
		settings: opts.Settings,
		history:  opts.History,
		input:    input,
		out:      out,
		theme:    opts.Theme,
		width:    width,
		log:      opts.Logger,
	}
}

// Run drives the loop until /quit, EOF or a fatal read error.
func (l *Loop) Run(ctx context.Context) error {
	defer l.input.Close()
	l.printWelcome()
	for {
		line, err := l.input.ReadLine(l.prompt())
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(l.out)
				return nil
			}
			if errors.Is(err, ErrInterrupted) {
				continue
			}
			return fmt.Errorf("read input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := l.dispatch(line)
			if err != nil {
				l.printError(err.Error())
			}
			if quit {
				return nil
			}
			continue
		}
		l.sendMessage(ctx, line)
	}
}

func (l *Loop) prompt() string {
	persona := l.engine.Current().Persona
	name := persona.Name
	if name == "" {
		name = l.settings.CurrentPersona().Name
	}
	return fmt.Sprintf("[%s] > ", name)
}

func (l *Loop) printWelcome() {
	fmt.Fprintln(l.out, l.theme.TitleStyle.Render("pagechat — chat about web pages"))
	fmt.Fprintln(l.out, l.theme.MutedStyle.Render("Type a message, or /help for commands."))
}

func (l *Loop) dispatch(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		l.printHelp()
	case "/new":
		if err := l.engine.StartNew(); err != nil {
			return false, err
		}
		l.printNotice("Started a new conversation.")
	case "/resume":
		if len(args) != 1 {
			return false, errors.New("usage: /resume <session-id>")
		}
		return false, l.resume(args[0])
	case "/persona":
		if len(args) != 1 {
			return false, errors.New("usage: /persona <persona-id>")
		}
		if err := l.engine.SetPersona(args[0]); err != nil {
			return false, err
		}
		l.printNotice("Persona switched to " + args[0] + ".")
	case "/personas":
		l.printPersonas()
	case "/page":
		if len(args) != 1 {
			return false, errors.New("usage: /page <json-file>")
		}
		return false, l.loadPage(args[0])
	case "/nopage":
		if err := l.engine.SetPageInfo(nil); err != nil {
			return false, err
		}
		l.printNotice("Page context cleared.")
	case "/history":
		l.printHistory(strings.Join(args, " "))
	default:
		return false, fmt.Errorf("unknown command %q, try /help", cmd)
	}
	return false, nil
}

func (l *Loop) printHelp() {
	help := []string{
		"/new                start a fresh conversation",
		"/resume <id>        resume a saved conversation",
		"/persona <id>       switch persona (see /personas)",
		"/personas           list available personas",
		"/page <json-file>   attach page content from a JSON file",
		"/nopage             detach page content",
		"/history [query]    list or search saved conversations",
		"/help               show this help",
		"/quit               exit",
	}
	for _, h := range help {
		fmt.Fprintln(l.out, l.theme.MutedStyle.Render("  "+h))
	}
}

func (l *Loop) resume(id string) error {
	if err := l.engine.Load(id); err != nil {
		return err
	}
	current := l.engine.Current()
	l.printNotice("Resumed: " + current.Title)
	for _, msg := range current.Messages {
		l.printMessage(msg)
	}
	return nil
}

func (l *Loop) printMessage(msg chat.Message) {
	switch msg.Role {
	case chat.RoleAssistant:
		fmt.Fprintln(l.out, l.theme.AssistantStyle.Render("assistant:"))
		fmt.Fprintln(l.out, RenderMarkdown(msg.Content, l.width))
	case chat.RoleSystem:
		fmt.Fprintln(l.out, l.theme.NoticeStyle.Render(msg.Content))
	default:
		fmt.Fprintln(l.out, l.theme.UserStyle.Render("you: ")+msg.Content)
	}
}

func (l *Loop) printPersonas() {
	cfg := l.settings.Get()
	currentID := cfg.CurrentPersona
	for _, id := range settings.BuiltinPersonaIDs {
		if p, ok := cfg.Personas[id]; ok {
			l.printPersonaLine(p, p.ID == currentID)
		}
	}
	for id, p := range cfg.Personas {
		if !settings.IsBuiltin(id) {
			l.printPersonaLine(p, p.ID == currentID)
		}
	}
}

func (l *Loop) printPersonaLine(p chat.Persona, current bool) {
	marker := "  "
	if current {
		marker = "* "
	}
	fmt.Fprintf(l.out, "%s%s  %s\n", marker, l.theme.TitleStyle.Render(p.ID), p.Name)
}

func (l *Loop) loadPage(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read page file: %w", err)
	}
	var page chat.PageContent
	if err := json.Unmarshal(raw, &page); err != nil {
		return fmt.Errorf("parse page file: %w", err)
	}
	if err := l.engine.SetPageInfo(&page); err != nil {
		return err
	}
	l.printNotice("Page attached: " + page.Title)
	return nil
}

func (l *Loop) printHistory(query string) {
	sessions := l.history.Search(query)
	if len(sessions) == 0 {
		l.printNotice("No saved conversations.")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(l.out, "%s  %s\n", l.theme.MutedStyle.Render(s.ID), s.Title)
	}
}

// sendMessage streams the reply as raw text, printing only the suffix that
// each partial adds over the previous one.
func (l *Loop) sendMessage(ctx context.Context, text string) {
	fmt.Fprintln(l.out, l.theme.AssistantStyle.Render("assistant:"))
	printed := 0
	reply, err := l.engine.SendUserMessage(ctx, text, func(partial string) {
		if len(partial) > printed {
			fmt.Fprint(l.out, partial[printed:])
			printed = len(partial)
		}
	})
	fmt.Fprintln(l.out)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrBusy):
			l.printError("A response is still in flight.")
		case errors.Is(err, session.ErrEmptyMessage):
			// nothing to do
		default:
			l.printError(reply.Content)
		}
		return
	}
	if printed == 0 && reply.Content != "" {
		fmt.Fprintln(l.out, RenderMarkdown(reply.Content, l.width))
	}
}

func (l *Loop) printNotice(text string) {
	fmt.Fprintln(l.out, l.theme.NoticeStyle.Render(text))
}

func (l *Loop) printError(text string) {
	fmt.Fprintln(l.out, l.theme.ErrorStyle.Render(text))
}
