package workflow

// Gate names. A gate guards entry to the stage it is named for.
const (
	GateCompetitorAnalysis = "competitor-analysis"
	GateSeedExtraction     = "seed-extraction"
	GateLongtailExpansion  = "longtail-expansion"
	GateKeywordFiltering   = "keyword-filtering"
	GateClustering         = "clustering"
	GateSubtopicGeneration = "subtopic-generation"
	GateArticleQueuing     = "article-queuing"
)

// GateNames lists every gate, in pipeline order.
var GateNames = []string{
	GateCompetitorAnalysis,
	GateSeedExtraction,
	GateLongtailExpansion,
	GateKeywordFiltering,
	GateClustering,
	GateSubtopicGeneration,
	GateArticleQueuing,
}

// gatePrerequisites maps each gate to its prerequisite marker: the
// earliest state at which the gate's precondition is satisfied. The
// two gates behind review boundaries use the post-review pending
// state, which is only reachable through a resolved approval.
var gatePrerequisites = map[string]State{
	GateCompetitorAnalysis: StateAudienceCompleted,
	GateSeedExtraction:     StateCompetitorCompleted,
	GateLongtailExpansion:  StateSeedCompleted,
	GateKeywordFiltering:   StateLongtailCompleted,
	GateClustering:         StateFilterCompleted,
	GateSubtopicGeneration: StateSubtopicPending,
	GateArticleQueuing:     StateQueuePending,
}

// GatePrerequisite returns the prerequisite marker state for a gate
// name. The second return is false for unknown gates.
func GatePrerequisite(gate string) (State, bool) {
	s, ok := gatePrerequisites[gate]
	return s, ok
}
