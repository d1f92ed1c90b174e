package repl

import (
	"context"
	"strings"
	"testing"

	"pagechat/internal/gemini"
	"pagechat/internal/history"
	"pagechat/internal/kv"
	"pagechat/internal/logging"
	"pagechat/internal/session"
	"pagechat/internal/settings"
)

type scriptedGenerator struct {
	reply string
	err   error
}

func (g *scriptedGenerator) GenerateStream(ctx context.Context, req gemini.GenerateRequest, onPartial gemini.PartialFunc) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if onPartial != nil {
		for i := 1; i <= len(g.reply); i++ {
			onPartial(g.reply[:i])
		}
	}
	return g.reply, nil
}

func newTestLoop(t *testing.T, script string, gen *scriptedGenerator) (*Loop, *strings.Builder, *history.Store) {
	t.Helper()
	mem := kv.NewMemStore()
	log := logging.Nop()
	cfg := settings.NewStore(mem, log)
	key := "k-test"
	cfg.Update(settings.Patch{APIKey: &key})
	hist := history.NewStore(mem, log)

	engine := session.New(session.Options{
		Settings: cfg,
		History:  hist,
		Logger:   log,
		NewGenerator: func(gemini.Config) session.Generator {
			return gen
		},
	})
	if err := engine.StartNew(); err != nil {
		t.Fatalf("StartNew: %v", err)
	}

	var out strings.Builder
	loop := New(Options{
		Engine:   engine,
		Settings: cfg,
		History:  hist,
		Input:    newBasicLineInput(strings.NewReader(script), nil),
		Out:      &out,
		Theme:    DefaultTheme(),
		Logger:   log,
	})
	return loop, &out, hist
}

func TestLoopSendAndQuit(t *testing.T) {
	loop, out, hist := newTestLoop(t, "hello there\n/quit\n", &scriptedGenerator{reply: "General Kenobi"})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "General Kenobi") {
		t.Fatalf("reply not streamed:\n%s", out.String())
	}

	all := hist.All()
	if len(all) != 1 || len(all[0].Messages) != 2 {
		t.Fatalf("history = %+v", all)
	}
	if all[0].Title != "hello there" {
		t.Fatalf("title = %q", all[0].Title)
	}
}

func TestLoopPersonaCommands(t *testing.T) {
	loop, out, _ := newTestLoop(t, "/personas\n/persona creative\n/quit\n", &scriptedGenerator{})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "Creative Writer") {
		t.Fatalf("persona list missing:\n%s", text)
	}
	if !strings.Contains(text, "Persona switched to creative.") {
		t.Fatalf("switch notice missing:\n%s", text)
	}
	if loop.engine.Current().Persona.ID != "creative" {
		t.Fatalf("persona = %+v", loop.engine.Current().Persona)
	}
}

func TestLoopUnknownCommand(t *testing.T) {
	loop, out, _ := newTestLoop(t, "/frobnicate\n/quit\n", &scriptedGenerator{})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("missing error:\n%s", out.String())
	}
}

func TestLoopHistoryAndResume(t *testing.T) {
	gen := &scriptedGenerator{reply: "noted"}
	loop, out, hist := newTestLoop(t, "remember this\n/new\n/history remember\n/quit\n", gen)
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "remember this") {
		t.Fatalf("search output missing:\n%s", out.String())
	}

	// resume the saved session in a fresh loop over the same stores
	id := hist.All()[0].ID
	loop2, out2, _ := newTestLoop(t, "/resume "+id+"\n/quit\n", gen)
	if err := loop2.engine.Load(id); err == nil {
		// fresh fixture has fresh stores; resume there exercises the error path
		t.Fatal("expected unknown session in fresh store")
	}
	_ = loop2.Run(context.Background())
	if !strings.Contains(out2.String(), "not found") {
		t.Fatalf("missing not-found error:\n%s", out2.String())
	}
}

func TestLoopEOFExits(t *testing.T) {
	loop, _, _ := newTestLoop(t, "", &scriptedGenerator{})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run on EOF: %v", err)
	}
}

func TestLoopPageAttachDetach(t *testing.T) {
	loop, out, _ := newTestLoop(t, "/nopage\n/quit\n", &scriptedGenerator{})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Page context cleared.") {
		t.Fatalf("missing notice:\n%s", out.String())
	}
}

func TestRenderMarkdownFallbacks(t *testing.T) {
	if got := RenderMarkdown("   ", 80); got != "" {
		t.Fatalf("blank input = %q", got)
	}
	got := RenderMarkdown("# Title\n\nbody", 0)
	if !strings.Contains(got, "Title") || !strings.Contains(got, "body") {
		t.Fatalf("render lost content: %q", got)
	}
}
