package tape

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

// DefaultContextMessageLimit bounds how many of the most recent messages
// are folded into one agent turn's conversation context.
const DefaultContextMessageLimit = 40

// DefaultUserName is used when a user-role message carries no
// participant name of its own.
const DefaultUserName = "User"

// ContextInput is everything BuildContext needs to produce one agent
// turn's prompt content.
type ContextInput struct {
	// Messages is the set that occurred after this agent's last
	// response, oldest first (§4.H step 1/2).
	Messages []*model.Message
	// Agents resolves an assistant message's speaker name.
	Agents map[int64]*model.Agent
	// AgentCount is the room's total agent roster size, used for 1-on-1
	// detection.
	AgentCount int
	MaxMessages int
}

// BuiltContext is the result of folding a message window into prompt
// content, plus the classification that shaped its instruction tail.
type BuiltContext struct {
	Text       string
	IsOneOnOne bool
	UserName   string
}

// BuildContext concatenates messages with speaker labels, dedupes
// adjacent identical content, truncates to the most recent N, and
// appends an instruction tail that depends on whether the room is a
// 1-on-1 conversation (single agent, a user/character present, no
// situation-builder messages) or a multi-agent one.
//
// Grounded on backend/orchestration/conversation.py's
// detect_conversation_type (the 1-on-1 classification rule) and on the
// teacher's internal/agent/loop_history.go limitHistoryTurns (truncate
// to the most recent N, keep whole messages rather than splitting one).
func BuildContext(in ContextInput) BuiltContext {
	limit := in.MaxMessages
	if limit <= 0 {
		limit = DefaultContextMessageLimit
	}

	deduped := dedupeAdjacent(in.Messages)
	if len(deduped) > limit {
		deduped = deduped[len(deduped)-limit:]
	}

	isOneOnOne, userName := detectConversationType(in.Messages, in.AgentCount)

	var b strings.Builder
	for i, msg := range deduped {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(speakerLabel(msg, in.Agents, userName))
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}

	tail := multiAgentInstructionTail
	if isOneOnOne {
		tail = fmt.Sprintf(oneOnOneInstructionTail, userName)
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(tail)

	return BuiltContext{Text: b.String(), IsOneOnOne: isOneOnOne, UserName: userName}
}

const oneOnOneInstructionTail = "This is a one-on-one conversation with %s. Respond directly to them."
const multiAgentInstructionTail = "This is a multi-agent conversation. Respond only if you have something to contribute; otherwise use your skip tool."

// dedupeAdjacent drops a message whose content is identical to the
// immediately preceding kept message's content.
func dedupeAdjacent(messages []*model.Message) []*model.Message {
	out := make([]*model.Message, 0, len(messages))
	for _, msg := range messages {
		if n := len(out); n > 0 && out[n-1].Content == msg.Content {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func speakerLabel(msg *model.Message, agents map[int64]*model.Agent, userName string) string {
	if msg.Role == model.RoleAssistant {
		if msg.AgentID != nil {
			if agent, ok := agents[*msg.AgentID]; ok {
				return agent.Name
			}
		}
		return "Agent"
	}

	if msg.ParticipantKind != nil {
		switch *msg.ParticipantKind {
		case model.ParticipantCharacter:
			if msg.ParticipantName != nil && *msg.ParticipantName != "" {
				return *msg.ParticipantName
			}
		case model.ParticipantSituationBuilder:
			return "Situation"
		case model.ParticipantSystem:
			return "System"
		}
	}
	return userName
}

// detectConversationType mirrors
// backend/orchestration/conversation.py's detect_conversation_type: a
// room is 1-on-1 when it has exactly one agent, at least one
// user/character message is present, and no situation-builder message
// is present.
func detectConversationType(messages []*model.Message, agentCount int) (bool, string) {
	userName := ""
	hasUserOrCharacter := false
	hasSituationBuilder := false

	for _, msg := range messages {
		if msg.Role != model.RoleUser || msg.ParticipantKind == nil {
			continue
		}
		switch *msg.ParticipantKind {
		case model.ParticipantCharacter:
			hasUserOrCharacter = true
			if userName == "" && msg.ParticipantName != nil {
				userName = *msg.ParticipantName
			}
		case model.ParticipantUser:
			hasUserOrCharacter = true
			if userName == "" {
				userName = DefaultUserName
			}
		case model.ParticipantSituationBuilder:
			hasSituationBuilder = true
		}
	}

	if userName == "" {
		userName = DefaultUserName
	}

	isOneOnOne := agentCount == 1 && hasUserOrCharacter && !hasSituationBuilder
	return isOneOnOne, userName
}
