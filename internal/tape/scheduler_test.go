package tape

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

func byIDOf(agents []*model.Agent) map[int64]*model.Agent {
	byID := make(map[int64]*model.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	return byID
}

func TestDetermineFollowUpAgentsOffersFollowUpToOthersWhenOneResponds(t *testing.T) {
	a := &model.Agent{ID: 1, Priority: 2}
	b := &model.Agent{ID: 2, Priority: 1}
	agents := []*model.Agent{a, b}

	results := []TurnResult{
		{Descriptor: TurnDescriptor{AgentID: 1}, Outcome: Responded},
		{Descriptor: TurnDescriptor{AgentID: 2}, Outcome: Skipped},
	}

	followUps := determineFollowUpAgents(agents, results, byIDOf(agents))

	if len(followUps) != 1 || followUps[0].ID != 2 {
		t.Fatalf("got %+v, want only agent 2 offered a follow-up", followUps)
	}
}

func TestDetermineFollowUpAgentsSkipsWhenOnlyResponderIsTransparent(t *testing.T) {
	a := &model.Agent{ID: 1, Priority: 2, Transparent: true}
	b := &model.Agent{ID: 2, Priority: 1}
	agents := []*model.Agent{a, b}

	results := []TurnResult{
		{Descriptor: TurnDescriptor{AgentID: 1}, Outcome: Responded},
		{Descriptor: TurnDescriptor{AgentID: 2}, Outcome: Skipped},
	}

	if followUps := determineFollowUpAgents(agents, results, byIDOf(agents)); len(followUps) != 0 {
		t.Fatalf("got %+v, want no follow-ups: a transparent agent's response must not trigger one", followUps)
	}
}

func TestDetermineFollowUpAgentsNeverOffersAnAgentItsOwnResponse(t *testing.T) {
	a := &model.Agent{ID: 1, Priority: 1}
	agents := []*model.Agent{a}

	results := []TurnResult{
		{Descriptor: TurnDescriptor{AgentID: 1}, Outcome: Responded},
	}

	if followUps := determineFollowUpAgents(agents, results, byIDOf(agents)); len(followUps) != 0 {
		t.Fatalf("got %+v, want no follow-ups: the sole responder must not trigger itself", followUps)
	}
}

func TestDetermineFollowUpAgentsAlwaysOffersInterruptEveryTurnAgents(t *testing.T) {
	a := &model.Agent{ID: 1, Priority: 2}
	watcher := &model.Agent{ID: 2, Priority: 1, InterruptEveryTurn: true, Transparent: true}
	agents := []*model.Agent{a, watcher}

	// The only other agent skipped, and the watcher is transparent, so
	// nothing would normally trigger a follow-up round at all -- except
	// InterruptEveryTurn bypasses the triggered-by-another-agent check.
	results := []TurnResult{
		{Descriptor: TurnDescriptor{AgentID: 1}, Outcome: Skipped},
		{Descriptor: TurnDescriptor{AgentID: 2}, Outcome: Skipped},
	}

	followUps := determineFollowUpAgents(agents, results, byIDOf(agents))

	if len(followUps) != 1 || followUps[0].ID != 2 {
		t.Fatalf("got %+v, want the interrupt-every-turn watcher offered a follow-up regardless of round outcome", followUps)
	}
}
