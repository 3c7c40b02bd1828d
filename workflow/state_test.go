package workflow

import "testing"

func TestStateStringRoundTrip(t *testing.T) {
	for _, s := range allStates() {
		str := s.String()
		if str == "invalid" {
			t.Errorf("state %d: no canonical string", uint(s))
			continue
		}
		if have, want := ParseState(str), s; have != want {
			t.Errorf("%s: parsed to %s", want, have)
		}
	}
	if s := ParseState("competitor_complete"); s.Valid() {
		t.Errorf("unknown string parsed to %s", s)
	}
}

func TestStateStage(t *testing.T) {
	for _, s := range allStates() {
		if s == StateCancelled {
			if StateStage(s).Valid() {
				t.Error("cancelled: expected no stage")
			}
			continue
		}
		if !StateStage(s).Valid() {
			t.Errorf("%s: no stage", s)
		}
	}
	if have, want := StateStage(StateAwaitingClusterApproval), StageClusterValidation; have != want {
		t.Errorf("have %s, want %s", have, want)
	}
	if have, want := StateStage(StateAwaitingSubtopicApproval), StageSubtopic; have != want {
		t.Errorf("have %s, want %s", have, want)
	}
	if have, want := StateStage(StateCompleted), StageQueue; have != want {
		t.Errorf("have %s, want %s", have, want)
	}
}

func TestReached(t *testing.T) {
	for _, test := range []struct {
		name   string
		s      State
		marker State
		want   bool
	}{
		{"before", StateAudiencePending, StateAudienceCompleted, false},
		{"at", StateAudienceCompleted, StateAudienceCompleted, true},
		{"after", StateClusterProcessing, StateAudienceCompleted, true},
		{"completed", StateCompleted, StateAwaitingSubtopicApproval, true},
		{"cancelled", StateCancelled, StateAudienceCompleted, false},
		{"invalid", StateInvalid, StateAudienceCompleted, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			if have, want := test.s.Reached(test.marker), test.want; have != want {
				t.Errorf("%s reached %s: have %v, want %v", test.s, test.marker, have, want)
			}
		})
	}
}

func TestStageEventRoundTrip(t *testing.T) {
	for e := eventInvalid + 1; e < maxStageEvent; e++ {
		if have, want := ParseStageEvent(e.String()), e; have != want {
			t.Errorf("%s: parsed to %s", want, have)
		}
	}
	if e := ParseStageEvent("audience.begin"); e.Valid() {
		t.Errorf("unknown string parsed to %s", e)
	}
}

func TestGatePrerequisitesKnown(t *testing.T) {
	for _, g := range GateNames {
		marker, ok := GatePrerequisite(g)
		if !ok {
			t.Errorf("%s: no prerequisite", g)
			continue
		}
		if !marker.Valid() || IsTerminal(marker) {
			t.Errorf("%s: bad prerequisite marker %s", g, marker)
		}
	}
	if _, ok := GatePrerequisite("article-queueing"); ok {
		t.Error("unknown gate has a prerequisite")
	}
}
