// Package taskid defines the (room, agent) composite key shared by the
// Client Pool and Streaming State tables.
package taskid

import (
	"fmt"
)

// ID identifies one (room, agent) turn-execution slot.
type ID struct {
	RoomID  int64
	AgentID int64
}

// New builds an ID from a room and agent identifier.
func New(roomID, agentID int64) ID {
	return ID{RoomID: roomID, AgentID: agentID}
}

// String renders the canonical "room_{n}_agent_{m}" form.
func (t ID) String() string {
	return fmt.Sprintf("room_%d_agent_%d", t.RoomID, t.AgentID)
}

// Parse parses the canonical "room_{n}_agent_{m}" form produced by String.
func Parse(s string) (ID, error) {
	var roomID, agentID int64
	n, err := fmt.Sscanf(s, "room_%d_agent_%d", &roomID, &agentID)
	if err != nil || n != 2 {
		return ID{}, fmt.Errorf("taskid: invalid task identifier %q", s)
	}
	return ID{RoomID: roomID, AgentID: agentID}, nil
}
