package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pagechat/internal/chat"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.0-flash"

	// Fixed generation parameters; only temperature comes from settings.
	defaultTopK            = 40
	defaultTopP            = 0.8
	defaultMaxOutputTokens = 1024
)

// Config configures the HTTP client.
type Config struct {
	Endpoint  string
	Model     string
	APIKey    string
	TimeoutMS int
}

// Client issues streamGenerateContent requests.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		model:      model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "gemini").Logger(),
	}
}

// GenerateRequest is one model turn: the prior message list, the bound
// persona's system prompt, the sampling temperature, and optionally the
// attached page with its body already converted to markdown by the rendering
// collaborator.
type GenerateRequest struct {
	Messages     []chat.Message
	SystemPrompt string
	Temperature  float64
	Page         *chat.PageContent
	PageMarkdown string
}

// wire types for the request body
type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type contentPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string        `json:"role"`
	Parts []contentPart `json:"parts"`
}

type instruction struct {
	Parts []contentPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateBody struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *instruction     `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

// buildBody assembles the request payload: an optional leading inline-data
// block carrying the page (title, URL, markdown body, base64-encoded), then
// the prior messages mapped to the endpoint's role vocabulary.
func buildBody(req GenerateRequest) generateBody {
	var contents []content

	if req.Page != nil {
		blob := req.Page.Title + "\n\n" + req.Page.URL + "\n\n" + req.PageMarkdown
		contents = append(contents, content{
			Role: "user",
			Parts: []contentPart{{
				InlineData: &inlineData{
					MimeType: "text/md",
					Data:     base64.StdEncoding.EncodeToString([]byte(blob)),
				},
			}},
		})
	}

	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == chat.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{
			Role:  role,
			Parts: []contentPart{{Text: msg.Content}},
		})
	}

	body := generateBody{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			TopK:            defaultTopK,
			TopP:            defaultTopP,
			MaxOutputTokens: defaultMaxOutputTokens,
		},
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		body.SystemInstruction = &instruction{
			Parts: []contentPart{{Text: req.SystemPrompt}},
		}
	}
	return body
}

// GenerateStream issues the request, feeds the event-stream response through
// an Assembler, and returns the complete assembled text. onPartial receives
// the cumulative text after each delta.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, onPartial PartialFunc) (string, error) {
	payload, err := json.Marshal(buildBody(req))
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		c.endpoint, c.model, url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("generate request failed: status=%d (read error: %v)", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("generate request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	asm := NewAssembler(onPartial, c.log)
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			asm.Consume(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read stream response: %w", err)
		}
	}
	return asm.Finish(), nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}
