package workflow

import (
	"strings"
	"testing"
)

// The resolver must stay in lock-step with the state enumeration:
// every non-terminal state resolves to a reason and a concrete action.
func TestBlockingCoversEveryNonTerminalState(t *testing.T) {
	for _, s := range allStates() {
		b := BlockingCondition(s)
		if IsTerminal(s) {
			if b != nil {
				t.Errorf("%s: terminal state has a blocking condition", s)
			}
			continue
		}
		if b == nil {
			t.Errorf("%s: missing blocking condition", s)
			continue
		}
		if b.Gate == "" || b.Reason == "" || b.Action == "" {
			t.Errorf("%s: incomplete blocking condition: %+v", s, b)
		}
		if !strings.Contains(b.Link, "{id}") {
			t.Errorf("%s: link template missing {id}: %s", s, b.Link)
		}
		if _, ok := GatePrerequisite(b.Gate); !ok {
			t.Errorf("%s: blocking names unknown gate %s", s, b.Gate)
		}
	}
}

func TestBlockingReasonsReferencePriorStage(t *testing.T) {
	// spot checks mirroring how the UI presents a blocked gate
	b := BlockingCondition(StateAudiencePending)
	if !strings.Contains(b.Reason, "audience definition") {
		t.Errorf("unexpected reason: %s", b.Reason)
	}
	b = BlockingCondition(StateAwaitingClusterApproval)
	if !strings.Contains(b.Action, "approve") {
		t.Errorf("unexpected action: %s", b.Action)
	}
}
