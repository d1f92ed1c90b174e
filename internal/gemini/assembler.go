// Package gemini speaks the hosted generative-language endpoint: request
// building and incremental reconstruction of streamed output.
package gemini

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
)

// PartialFunc receives the cumulative message-so-far after each extracted
// delta, not just the delta; the consuming UI repaints the whole message.
type PartialFunc func(cumulative string)

// streamFrame 流式帧载荷 / streamFrame is the JSON payload of one SSE frame.
type streamFrame struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Assembler reconstructs model output from an event-stream response. One
// instance serves exactly one request; after Finish it is inert.
type Assembler struct {
	buf       strings.Builder
	carry     string // partial line held across chunk boundaries
	done      bool
	onPartial PartialFunc
	log       zerolog.Logger
}

func NewAssembler(onPartial PartialFunc, log zerolog.Logger) *Assembler {
	return &Assembler{
		onPartial: onPartial,
		log:       log.With().Str("component", "assembler").Logger(),
	}
}

// Consume decodes one transport chunk. Chunk boundaries are arbitrary: a frame
// split across chunks is carried over and completed by the next one.
// Malformed frames are skipped and logged; they never abort the stream.
func (a *Assembler) Consume(chunk []byte) {
	if a.done || len(chunk) == 0 {
		return
	}
	text := a.carry + string(chunk)
	lines := strings.Split(text, "\n")
	a.carry = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		a.consumeLine(line)
	}
}

// Finish signals end of input. It flushes any carried partial line, marks the
// assembler inert, and returns the complete message text.
func (a *Assembler) Finish() string {
	if !a.done {
		if a.carry != "" {
			a.consumeLine(a.carry)
			a.carry = ""
		}
		a.done = true
	}
	return a.buf.String()
}

// Text returns the accumulated message so far.
func (a *Assembler) Text() string {
	return a.buf.String()
}

func (a *Assembler) consumeLine(line string) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data:") {
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return
	}

	var frame streamFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		a.log.Debug().Err(err).Str("line", truncateForLog(payload)).Msg("skip malformed stream frame")
		return
	}
	delta := frame.text()
	if delta == "" {
		return
	}
	a.buf.WriteString(delta)
	if a.onPartial != nil {
		a.onPartial(a.buf.String())
	}
}

func (f streamFrame) text() string {
	if len(f.Candidates) == 0 {
		return ""
	}
	parts := f.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}

func truncateForLog(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
