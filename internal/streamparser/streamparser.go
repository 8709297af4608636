// Package streamparser implements the Stream Parser (§4.G): a pure fold
// over one llmruntime.Event plus the accumulator carried from the prior
// fold, producing the next accumulator and whatever new, event-local
// facts that event revealed.
//
// Grounded line-for-line on backend/sdk/client/stream_parser.py's
// StreamParser.parse_message/_parse_stream_event (the isinstance
// dispatch order, the tool-name-suffix checks, and the
// "session_id only if response is still empty" StreamEvent rule).
package streamparser

import (
	"strings"

	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime"
)

// Tool name suffixes the fold inspects on a ToolUseBlock. Tool names are
// server-qualified (e.g. "mcp__room__skip"); only the suffix matters.
const (
	SkipToolSuffix      = "__skip"
	MemorizeToolSuffix  = "__memorize"
	AnthropicToolSuffix = "__anthropic"
)

// ParsedEvent is the output of one fold step: the updated accumulated
// text plus any new facts this event carried.
type ParsedEvent struct {
	Response string
	Thinking string

	// SessionID is non-empty exactly when this event revealed a new
	// session id.
	SessionID string

	SkipUsed       bool
	MemoryEntries  []string
	AnthropicCalls []string

	StructuredOutput map[string]any
	Usage            *llmruntime.Usage
}

// HasToolUsage reports whether this event carried any of the three
// control tool calls the fold recognizes.
func (p ParsedEvent) HasToolUsage() bool {
	return p.SkipUsed || len(p.MemoryEntries) > 0 || len(p.AnthropicCalls) > 0
}

// Parse folds one event into the accumulator (priorResponse,
// priorThinking), returning the next accumulator plus event-local facts.
// Parse holds no state of its own; every call is independent.
func Parse(event llmruntime.Event, priorResponse, priorThinking string) ParsedEvent {
	if se, ok := event.(llmruntime.StreamEvent); ok {
		return parseStreamEvent(se, priorResponse, priorThinking)
	}

	out := ParsedEvent{Response: priorResponse, Thinking: priorThinking}

	switch msg := event.(type) {
	case llmruntime.ResultMessage:
		out.Usage = msg.Usage
		out.StructuredOutput = msg.StructuredOutput

	case llmruntime.SystemMessage:
		if sid, ok := msg.Data["session_id"].(string); ok && sid != "" {
			out.SessionID = sid
		}

	case llmruntime.AssistantMessage:
		var contentDelta, thinkingDelta string
		for _, block := range msg.Content {
			switch b := block.(type) {
			case llmruntime.ToolUseBlock:
				switch {
				case strings.HasSuffix(b.Name, SkipToolSuffix):
					out.SkipUsed = true
				case strings.HasSuffix(b.Name, MemorizeToolSuffix):
					if entry, ok := b.Input["memory_entry"].(string); ok && entry != "" {
						out.MemoryEntries = append(out.MemoryEntries, entry)
					}
				case strings.HasSuffix(b.Name, AnthropicToolSuffix):
					if situation, ok := b.Input["situation"].(string); ok && situation != "" {
						out.AnthropicCalls = append(out.AnthropicCalls, situation)
					}
				}
			case llmruntime.ThinkingBlock:
				thinkingDelta = b.Thinking
			case llmruntime.TextBlock:
				contentDelta += b.Text
			}
		}
		out.Response = priorResponse + contentDelta
		out.Thinking = priorThinking + thinkingDelta
	}

	return out
}

// parseStreamEvent handles the raw, partial StreamEvent case: only
// content_block_delta events of subtype text_delta/thinking_delta carry
// text, everything else is a no-op fold.
func parseStreamEvent(se llmruntime.StreamEvent, priorResponse, priorThinking string) ParsedEvent {
	var contentDelta, thinkingDelta string

	if typ, _ := se.Raw["type"].(string); typ == "content_block_delta" {
		if delta, ok := se.Raw["delta"].(map[string]any); ok {
			switch deltaType, _ := delta["type"].(string); deltaType {
			case "text_delta":
				contentDelta, _ = delta["text"].(string)
			case "thinking_delta":
				thinkingDelta, _ = delta["thinking"].(string)
			}
		}
	}

	out := ParsedEvent{
		Response: priorResponse + contentDelta,
		Thinking: priorThinking + thinkingDelta,
	}
	if se.SessionID != "" && priorResponse == "" {
		out.SessionID = se.SessionID
	}
	return out
}
