package workflow

import "testing"

func allStates() []State {
	var states []State
	for s := StateInvalid + 1; s < maxState; s++ {
		states = append(states, s)
	}
	return states
}

func TestTerminalStatesHaveNoSuccessors(t *testing.T) {
	for _, s := range []State{StateCompleted, StateCancelled} {
		if !IsTerminal(s) {
			t.Errorf("%s: expected terminal", s)
		}
		if n := len(LegalSuccessors(s)); n != 0 {
			t.Errorf("%s: expected 0 successors, got %d", s, n)
		}
	}
}

func TestOnlyTerminalStatesAreTerminal(t *testing.T) {
	for _, s := range allStates() {
		if s == StateCompleted || s == StateCancelled {
			continue
		}
		if IsTerminal(s) {
			t.Errorf("%s: unexpected terminal state", s)
		}
		if len(LegalSuccessors(s)) < 1 {
			t.Errorf("%s: non-terminal state with no successors", s)
		}
	}
}

func TestNoSelfLoops(t *testing.T) {
	for _, s := range allStates() {
		if IsLegalTransition(s, s) {
			t.Errorf("%s: state is its own successor", s)
		}
	}
}

// Processing states may only go to their own stage's completed or
// failed states (or be cancelled). A stage can never be skipped.
func TestProcessingSuccessors(t *testing.T) {
	processing := map[State][2]State{
		StateAudienceProcessing:   {StateAudienceCompleted, StateAudienceFailed},
		StateCompetitorProcessing: {StateCompetitorCompleted, StateCompetitorFailed},
		StateSeedProcessing:       {StateSeedCompleted, StateSeedFailed},
		StateLongtailProcessing:   {StateLongtailCompleted, StateLongtailFailed},
		StateFilterProcessing:     {StateFilterCompleted, StateFilterFailed},
		StateClusterProcessing:    {StateClusterCompleted, StateClusterFailed},
		StateSubtopicProcessing:   {StateSubtopicCompleted, StateSubtopicFailed},
		StateQueueProcessing:      {StateCompleted, StateQueueFailed},
	}
	for s, want := range processing {
		succ := LegalSuccessors(s)
		if have, want := len(succ), 3; have != want {
			t.Errorf("%s: have %d successors, want %d", s, have, want)
		}
		for _, to := range []State{want[0], want[1], StateCancelled} {
			if !IsLegalTransition(s, to) {
				t.Errorf("%s -> %s: expected legal", s, to)
			}
		}
	}
}

// Failed states may only retry their own stage's processing state (or
// be cancelled). A failure is never recovered by jumping stages.
func TestFailedSuccessors(t *testing.T) {
	failed := map[State]State{
		StateAudienceFailed:   StateAudienceProcessing,
		StateCompetitorFailed: StateCompetitorProcessing,
		StateSeedFailed:       StateSeedProcessing,
		StateLongtailFailed:   StateLongtailProcessing,
		StateFilterFailed:     StateFilterProcessing,
		StateClusterFailed:    StateClusterProcessing,
		StateSubtopicFailed:   StateSubtopicProcessing,
		StateQueueFailed:      StateQueueProcessing,
	}
	for s, retry := range failed {
		succ := LegalSuccessors(s)
		if have, want := len(succ), 2; have != want {
			t.Errorf("%s: have %d successors, want %d", s, have, want)
		}
		if !IsLegalTransition(s, retry) {
			t.Errorf("%s -> %s: expected legal retry", s, retry)
		}
		if !IsLegalTransition(s, StateCancelled) {
			t.Errorf("%s: expected cancellable", s)
		}
	}
}

func TestEveryNonTerminalStateIsCancellable(t *testing.T) {
	for _, s := range allStates() {
		if IsTerminal(s) {
			continue
		}
		if !IsLegalTransition(s, StateCancelled) {
			t.Errorf("%s: expected cancellable", s)
		}
	}
}

func TestMatrixCoversEveryState(t *testing.T) {
	for _, s := range allStates() {
		if _, ok := successors[s]; !ok {
			t.Errorf("%s: missing from transition matrix", s)
		}
	}
	if have, want := len(successors), len(allStates()); have != want {
		t.Errorf("matrix has %d entries, want %d", have, want)
	}
}

func TestHumanGateEdges(t *testing.T) {
	for _, tr := range []struct {
		from, to State
	}{
		{StateClusterCompleted, StateAwaitingClusterApproval},
		{StateAwaitingClusterApproval, StateSubtopicPending},
		{StateAwaitingClusterApproval, StateClusterPending},
		{StateSubtopicCompleted, StateAwaitingSubtopicApproval},
		{StateAwaitingSubtopicApproval, StateQueuePending},
		{StateAwaitingSubtopicApproval, StateSubtopicPending},
	} {
		if !IsLegalTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s: expected legal", tr.from, tr.to)
		}
	}
	// approval can never be skipped
	if IsLegalTransition(StateClusterCompleted, StateSubtopicPending) {
		t.Error("cluster_completed -> subtopic_pending: cluster approval skipped")
	}
	if IsLegalTransition(StateSubtopicCompleted, StateQueuePending) {
		t.Error("subtopic_completed -> queue_pending: subtopic approval skipped")
	}
}
