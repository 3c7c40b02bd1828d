package workflow

// successors is the static legal-transition matrix.
//
// Shape of the matrix, stage by stage:
//   - pending    -> processing
//   - processing -> completed | failed
//   - failed     -> processing (retry of the same stage only)
//   - completed  -> next stage's pending (or an awaiting-approval state
//     at the two human gates)
//   - every non-terminal state -> cancelled
//
// StateCompleted and StateCancelled have no successors. Cancelled edges
// are added uniformly in init rather than repeated here.
var successors = map[State][]State{
	StateAudiencePending:    {StateAudienceProcessing},
	StateAudienceProcessing: {StateAudienceCompleted, StateAudienceFailed},
	StateAudienceCompleted:  {StateCompetitorPending},
	StateAudienceFailed:     {StateAudienceProcessing},

	StateCompetitorPending:    {StateCompetitorProcessing},
	StateCompetitorProcessing: {StateCompetitorCompleted, StateCompetitorFailed},
	StateCompetitorCompleted:  {StateSeedPending},
	StateCompetitorFailed:     {StateCompetitorProcessing},

	StateSeedPending:    {StateSeedProcessing},
	StateSeedProcessing: {StateSeedCompleted, StateSeedFailed},
	StateSeedCompleted:  {StateLongtailPending},
	StateSeedFailed:     {StateSeedProcessing},

	StateLongtailPending:    {StateLongtailProcessing},
	StateLongtailProcessing: {StateLongtailCompleted, StateLongtailFailed},
	StateLongtailCompleted:  {StateFilterPending},
	StateLongtailFailed:     {StateLongtailProcessing},

	StateFilterPending:    {StateFilterProcessing},
	StateFilterProcessing: {StateFilterCompleted, StateFilterFailed},
	StateFilterCompleted:  {StateClusterPending},
	StateFilterFailed:     {StateFilterProcessing},

	StateClusterPending:    {StateClusterProcessing},
	StateClusterProcessing: {StateClusterCompleted, StateClusterFailed},
	StateClusterCompleted:  {StateAwaitingClusterApproval},
	StateClusterFailed:     {StateClusterProcessing},

	// approval moves forward; rejection sends clustering back around
	StateAwaitingClusterApproval: {StateSubtopicPending, StateClusterPending},

	StateSubtopicPending:    {StateSubtopicProcessing},
	StateSubtopicProcessing: {StateSubtopicCompleted, StateSubtopicFailed},
	StateSubtopicCompleted:  {StateAwaitingSubtopicApproval},
	StateSubtopicFailed:     {StateSubtopicProcessing},

	StateAwaitingSubtopicApproval: {StateQueuePending, StateSubtopicPending},

	StateQueuePending:    {StateQueueProcessing},
	StateQueueProcessing: {StateCompleted, StateQueueFailed},
	StateQueueFailed:     {StateQueueProcessing},

	StateCompleted: {},
	StateCancelled: {},
}

func init() {
	for s, succ := range successors {
		if s == StateCompleted || s == StateCancelled {
			continue
		}
		successors[s] = append(succ, StateCancelled)
	}
}

// LegalSuccessors returns the set of states s may transition to.
// The returned slice must not be modified.
func LegalSuccessors(s State) []State {
	return successors[s]
}

// IsLegalTransition reports whether from -> to is in the legal matrix.
func IsLegalTransition(from, to State) bool {
	for _, s := range successors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no legal successors.
// A terminal workflow is immutable.
func IsTerminal(s State) bool {
	succ, ok := successors[s]
	return ok && len(succ) == 0
}
