package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pagechat/internal/chat"
	"pagechat/internal/logging"
)

func TestBuildBodyRoleMapping(t *testing.T) {
	body := buildBody(GenerateRequest{
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "hi"},
			{Role: chat.RoleAssistant, Content: "hello"},
			{Role: chat.RoleSystem, Content: "note"},
		},
		Temperature: 0.7,
	})

	if len(body.Contents) != 3 {
		t.Fatalf("contents = %d", len(body.Contents))
	}
	roles := []string{body.Contents[0].Role, body.Contents[1].Role, body.Contents[2].Role}
	// assistant maps to model, everything else to user
	if roles[0] != "user" || roles[1] != "model" || roles[2] != "user" {
		t.Fatalf("roles = %v", roles)
	}
}

func TestBuildBodyPageBlock(t *testing.T) {
	body := buildBody(GenerateRequest{
		Messages:     []chat.Message{{Role: chat.RoleUser, Content: "summarize"}},
		Page:         &chat.PageContent{Title: "Title", URL: "https://example.com"},
		PageMarkdown: "# Heading",
	})

	if len(body.Contents) != 2 {
		t.Fatalf("contents = %d", len(body.Contents))
	}
	block := body.Contents[0]
	if block.Role != "user" || block.Parts[0].InlineData == nil {
		t.Fatalf("first content is not the page block: %+v", block)
	}
	if block.Parts[0].InlineData.MimeType != "text/md" {
		t.Fatalf("mimeType = %q", block.Parts[0].InlineData.MimeType)
	}
	raw, err := base64.StdEncoding.DecodeString(block.Parts[0].InlineData.Data)
	if err != nil {
		t.Fatalf("decode inline data: %v", err)
	}
	if string(raw) != "Title\n\nhttps://example.com\n\n# Heading" {
		t.Fatalf("blob = %q", raw)
	}
}

func TestBuildBodySystemInstructionAndConfig(t *testing.T) {
	body := buildBody(GenerateRequest{
		Messages:     []chat.Message{{Role: chat.RoleUser, Content: "q"}},
		SystemPrompt: "be terse",
		Temperature:  1.1,
	})
	if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "be terse" {
		t.Fatalf("systemInstruction = %+v", body.SystemInstruction)
	}
	cfg := body.GenerationConfig
	if cfg.Temperature != 1.1 || cfg.TopK != 40 || cfg.TopP != 0.8 || cfg.MaxOutputTokens != 1024 {
		t.Fatalf("generationConfig = %+v", cfg)
	}

	// blank prompt omits the block entirely
	body = buildBody(GenerateRequest{Messages: []chat.Message{{Role: chat.RoleUser, Content: "q"}}, SystemPrompt: "  "})
	if body.SystemInstruction != nil {
		t.Fatal("blank system prompt must be omitted")
	}
}

func TestGenerateStream(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody generateBody

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":"Hi "}]}}]}`+"\n\n")
		io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":"there"}]}}]}`+"\n\n")
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Model: "gemini-2.0-flash", APIKey: "k"}, logging.Nop())

	var last string
	text, err := client.GenerateStream(context.Background(), GenerateRequest{
		Messages:    []chat.Message{{Role: chat.RoleUser, Content: "greet"}},
		Temperature: 0.7,
	}, func(cumulative string) { last = cumulative })
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if text != "Hi there" || last != "Hi there" {
		t.Fatalf("text=%q last=%q", text, last)
	}
	if gotPath != "/models/gemini-2.0-flash:streamGenerateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if !strings.Contains(gotQuery, "alt=sse") || !strings.Contains(gotQuery, "key=k") {
		t.Fatalf("query = %q", gotQuery)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "greet" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestGenerateStreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error": "bad key"}`)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, APIKey: "bad"}, logging.Nop())
	_, err := client.GenerateStream(context.Background(), GenerateRequest{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: "q"}},
	}, nil)
	if err == nil {
		t.Fatal("want error on 403")
	}
	if !strings.Contains(err.Error(), "status=403") || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{}, logging.Nop())
	if client.endpoint != DefaultEndpoint {
		t.Fatalf("endpoint = %q", client.endpoint)
	}
	if client.Model() != DefaultModel {
		t.Fatalf("model = %q", client.Model())
	}

	// trailing slash trimmed so the path joins cleanly
	client = NewClient(Config{Endpoint: "https://proxy.local/v1beta/"}, logging.Nop())
	if client.endpoint != "https://proxy.local/v1beta" {
		t.Fatalf("endpoint = %q", client.endpoint)
	}
}
