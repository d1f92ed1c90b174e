package session

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"pagechat/internal/chat"
)

// tokenizer 请求规模估算器，tiktoken 不可用时回退到启发式
// tokenizer estimates request size, falling back to a heuristic when the
// tiktoken BPE cache is unavailable (offline environments).
type tokenizer struct {
	encoder  *tiktoken.Tiktoken
	fallback bool
	mu       sync.Mutex
}

func newTokenizer() *tokenizer {
	t := &tokenizer{}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		t.fallback = true
		return t
	}
	t.encoder = enc
	return t
}

func (t *tokenizer) countText(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicTokenCount(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// estimate approximates the token size of an outgoing turn: the message list,
// the system prompt, and the attached page markdown.
func (t *tokenizer) estimate(messages []chat.Message, systemPrompt, pageMarkdown string) int {
	total := 0
	for _, msg := range messages {
		total += 4 // per-message structure overhead
		total += t.countText(msg.Content)
	}
	total += t.countText(systemPrompt)
	total += t.countText(pageMarkdown)
	return total
}

// heuristicTokenCount: CJK characters are typically 1-2 tokens each, English
// about 4 chars per token.
func heuristicTokenCount(text string) int {
	cjkCount := 0
	asciiCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		} else {
			asciiCount++
		}
	}
	estimate := int(float64(cjkCount)*1.5 + float64(asciiCount)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3040 && r <= 0x30FF) ||
		(r >= 0xAC00 && r <= 0xD7AF)
}
