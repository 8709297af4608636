package tape

// Broadcast event type discriminators, matching §6's SSE event schema
// verbatim.
const (
	EventConnected     = "connected"
	EventCatchUp       = "catch_up"
	EventStreamStart   = "stream_start"
	EventContentDelta  = "content_delta"
	EventThinkingDelta = "thinking_delta"
	EventStreamEnd     = "stream_end"
	EventNewMessage    = "new_message"
	EventKeepalive     = "keepalive"
)

// ConnectedData is sent once when an SSE subscriber attaches.
type ConnectedData struct {
	RoomID int64 `json:"room_id"`
}

// CatchUpData replays an in-flight generation's accumulated text to a
// newly attached subscriber.
type CatchUpData struct {
	AgentID      int64  `json:"agent_id"`
	AgentName    string `json:"agent_name"`
	ThinkingText string `json:"thinking_text"`
	ResponseText string `json:"response_text"`
}

// StreamStartData announces the beginning of one agent turn.
type StreamStartData struct {
	TaskID    string `json:"task_id"`
	AgentID   int64  `json:"agent_id"`
	AgentName string `json:"agent_name"`
	TempID    string `json:"temp_id"`
}

// ContentDeltaData carries one response-text increment plus the running
// total, so a subscriber can reconstruct the final text either way
// (§8 property 4).
type ContentDeltaData struct {
	TaskID      string `json:"task_id"`
	AgentID     int64  `json:"agent_id"`
	Delta       string `json:"delta"`
	Accumulated string `json:"accumulated"`
}

// ThinkingDeltaData is ContentDeltaData's counterpart for thinking text.
type ThinkingDeltaData struct {
	TaskID      string `json:"task_id"`
	AgentID     int64  `json:"agent_id"`
	Delta       string `json:"delta"`
	Accumulated string `json:"accumulated"`
}

// StreamEndData closes out one agent turn.
type StreamEndData struct {
	TaskID       string `json:"task_id"`
	AgentID      int64  `json:"agent_id"`
	Skipped      bool   `json:"skipped"`
	ResponseText string `json:"response_text,omitempty"`
	ThinkingText string `json:"thinking_text,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewMessageData announces a durably persisted message.
type NewMessageData struct {
	ID        int64  `json:"id"`
	RoomID    int64  `json:"room_id"`
	AgentID   *int64 `json:"agent_id,omitempty"`
	Content   string `json:"content"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
}
