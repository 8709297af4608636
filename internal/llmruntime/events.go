// Package llmruntime declares the boundary between the tape scheduler and
// an external LLM runtime. The runtime itself (a subprocess-backed SDK
// client, an HTTP streaming API, whatever) is never implemented here — it
// is injected as a Client. This package only fixes the shape of that
// boundary: a typed, sealed event union and the options that configure a
// session.
//
// Grounded on backend/sdk/client/stream_parser.py's isinstance dispatch
// over claude_agent_sdk.types (AssistantMessage, SystemMessage,
// ResultMessage, StreamEvent, and the block types nested in
// AssistantMessage.content) and on internal/providers/types.go's Provider
// interface shape for the surrounding client contract.
package llmruntime

// ContentBlock is one block inside an AssistantMessage. It is a closed
// set: TextBlock, ThinkingBlock, ToolUseBlock.
type ContentBlock interface {
	contentBlock()
}

// TextBlock carries a chunk (or the whole, depending on the runtime) of
// assistant-visible response text.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ThinkingBlock carries extended-thinking text, never shown to end users.
type ThinkingBlock struct {
	Thinking string
}

func (ThinkingBlock) contentBlock() {}

// ToolUseBlock records a tool invocation the model requested. Name carries
// the server-qualified tool name (e.g. "mcp__room__skip"); the stream
// parser inspects its suffix to recognize the control tools (§4.G).
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

func (ToolUseBlock) contentBlock() {}

// Event is one message emitted by a runtime session. It is a closed set:
// StreamEvent, AssistantMessage, SystemMessage, ResultMessage, ErrorEvent.
type Event interface {
	runtimeEvent()
}

// StreamEvent is a raw, partial delta forwarded ahead of the fully
// assembled AssistantMessage it belongs to. Only content_block_delta
// deltas of subtype text_delta/thinking_delta carry text; everything else
// is opaque and the fold treats it as a no-op (§4.G).
type StreamEvent struct {
	// Raw is the undecoded event payload, keyed the way the upstream
	// wire format names it (type, delta, index, ...).
	Raw map[string]any
	// SessionID is set on the very first stream event of a session in
	// some runtimes; empty otherwise.
	SessionID string
}

func (StreamEvent) runtimeEvent() {}

// AssistantMessage is one fully assembled turn from the model, made up of
// content blocks in emission order.
type AssistantMessage struct {
	Content []ContentBlock
}

func (AssistantMessage) runtimeEvent() {}

// SystemMessage carries runtime metadata outside the conversation proper,
// most importantly the session id a later resume can reference.
type SystemMessage struct {
	Data map[string]any
}

func (SystemMessage) runtimeEvent() {}

// Usage reports token accounting for a completed turn.
type Usage struct {
	InputTokens              int
	OutputTokens             int
	CacheCreationInputTokens int
	CacheReadInputTokens     int
}

// ResultMessage closes out a query: final usage and, when the session was
// configured with an output schema, the decoded structured output.
type ResultMessage struct {
	Usage            *Usage
	StructuredOutput map[string]any
}

func (ResultMessage) runtimeEvent() {}

// ErrorEvent signals that the runtime session failed mid-stream (the
// transport dropped, the subprocess died, the upstream API returned a
// fatal error) and cannot produce any further events for this turn.
// Implementations emit this on Events() instead of closing the channel
// silently; the channel is still closed afterward.
type ErrorEvent struct {
	Err error
}

func (ErrorEvent) runtimeEvent() {}
