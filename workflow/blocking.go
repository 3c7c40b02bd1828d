package workflow

// Blocking describes, for presentation, what is standing between the
// workflow's current state and further progress: the gate involved, a
// human-readable reason, the remedial action, and a deep-link path
// template ({id} is replaced with the workflow ID by the caller).
type Blocking struct {
	Gate   string `json:"gate"`
	Reason string `json:"reason"`
	Action string `json:"action"`
	Link   string `json:"link"`
}

// blockings must stay in lock-step with the state enumeration: every
// non-terminal state has an entry. Tested exhaustively.
var blockings = map[State]Blocking{
	StateAudiencePending: {
		Gate:   GateCompetitorAnalysis,
		Reason: "audience definition has not started",
		Action: "start the audience definition stage",
		Link:   "/workflows/{id}/audience",
	},
	StateAudienceProcessing: {
		Gate:   GateCompetitorAnalysis,
		Reason: "audience definition is still running",
		Action: "wait for audience definition to complete",
		Link:   "/workflows/{id}/audience",
	},
	StateAudienceCompleted: {
		Gate:   GateCompetitorAnalysis,
		Reason: "competitor analysis has not started",
		Action: "start the competitor analysis stage",
		Link:   "/workflows/{id}/competitors",
	},
	StateAudienceFailed: {
		Gate:   GateCompetitorAnalysis,
		Reason: "audience definition failed",
		Action: "retry the audience definition stage",
		Link:   "/workflows/{id}/audience",
	},

	StateCompetitorPending: {
		Gate:   GateSeedExtraction,
		Reason: "competitor analysis has not started",
		Action: "start the competitor analysis stage",
		Link:   "/workflows/{id}/competitors",
	},
	StateCompetitorProcessing: {
		Gate:   GateSeedExtraction,
		Reason: "competitor analysis is still running",
		Action: "wait for competitor analysis to complete",
		Link:   "/workflows/{id}/competitors",
	},
	StateCompetitorCompleted: {
		Gate:   GateSeedExtraction,
		Reason: "seed keyword extraction has not started",
		Action: "start the seed keyword extraction stage",
		Link:   "/workflows/{id}/seeds",
	},
	StateCompetitorFailed: {
		Gate:   GateSeedExtraction,
		Reason: "competitor analysis failed",
		Action: "retry the competitor analysis stage",
		Link:   "/workflows/{id}/competitors",
	},

	StateSeedPending: {
		Gate:   GateLongtailExpansion,
		Reason: "seed keyword extraction has not started",
		Action: "start the seed keyword extraction stage",
		Link:   "/workflows/{id}/seeds",
	},
	StateSeedProcessing: {
		Gate:   GateLongtailExpansion,
		Reason: "seed keyword extraction is still running",
		Action: "wait for seed keyword extraction to complete",
		Link:   "/workflows/{id}/seeds",
	},
	StateSeedCompleted: {
		Gate:   GateLongtailExpansion,
		Reason: "long-tail expansion has not started",
		Action: "start the long-tail expansion stage",
		Link:   "/workflows/{id}/longtail",
	},
	StateSeedFailed: {
		Gate:   GateLongtailExpansion,
		Reason: "seed keyword extraction failed",
		Action: "retry the seed keyword extraction stage",
		Link:   "/workflows/{id}/seeds",
	},

	StateLongtailPending: {
		Gate:   GateKeywordFiltering,
		Reason: "long-tail expansion has not started",
		Action: "start the long-tail expansion stage",
		Link:   "/workflows/{id}/longtail",
	},
	StateLongtailProcessing: {
		Gate:   GateKeywordFiltering,
		Reason: "long-tail expansion is still running",
		Action: "wait for long-tail expansion to complete",
		Link:   "/workflows/{id}/longtail",
	},
	StateLongtailCompleted: {
		Gate:   GateKeywordFiltering,
		Reason: "keyword filtering has not started",
		Action: "start the keyword filtering stage",
		Link:   "/workflows/{id}/filter",
	},
	StateLongtailFailed: {
		Gate:   GateKeywordFiltering,
		Reason: "long-tail expansion failed",
		Action: "retry the long-tail expansion stage",
		Link:   "/workflows/{id}/longtail",
	},

	StateFilterPending: {
		Gate:   GateClustering,
		Reason: "keyword filtering has not started",
		Action: "start the keyword filtering stage",
		Link:   "/workflows/{id}/filter",
	},
	StateFilterProcessing: {
		Gate:   GateClustering,
		Reason: "keyword filtering is still running",
		Action: "wait for keyword filtering to complete",
		Link:   "/workflows/{id}/filter",
	},
	StateFilterCompleted: {
		Gate:   GateClustering,
		Reason: "clustering has not started",
		Action: "start the clustering stage",
		Link:   "/workflows/{id}/clusters",
	},
	StateFilterFailed: {
		Gate:   GateClustering,
		Reason: "keyword filtering failed",
		Action: "retry the keyword filtering stage",
		Link:   "/workflows/{id}/filter",
	},

	StateClusterPending: {
		Gate:   GateSubtopicGeneration,
		Reason: "clustering has not started",
		Action: "start the clustering stage",
		Link:   "/workflows/{id}/clusters",
	},
	StateClusterProcessing: {
		Gate:   GateSubtopicGeneration,
		Reason: "clustering is still running",
		Action: "wait for clustering to complete",
		Link:   "/workflows/{id}/clusters",
	},
	StateClusterCompleted: {
		Gate:   GateSubtopicGeneration,
		Reason: "clusters await human validation",
		Action: "review and approve the keyword clusters",
		Link:   "/workflows/{id}/clusters/review",
	},
	StateClusterFailed: {
		Gate:   GateSubtopicGeneration,
		Reason: "clustering failed",
		Action: "retry the clustering stage",
		Link:   "/workflows/{id}/clusters",
	},

	StateAwaitingClusterApproval: {
		Gate:   GateSubtopicGeneration,
		Reason: "keyword clusters have not been approved",
		Action: "review and approve the keyword clusters",
		Link:   "/workflows/{id}/clusters/review",
	},

	StateSubtopicPending: {
		Gate:   GateArticleQueuing,
		Reason: "subtopic generation has not started",
		Action: "start the subtopic generation stage",
		Link:   "/workflows/{id}/subtopics",
	},
	StateSubtopicProcessing: {
		Gate:   GateArticleQueuing,
		Reason: "subtopic generation is still running",
		Action: "wait for subtopic generation to complete",
		Link:   "/workflows/{id}/subtopics",
	},
	StateSubtopicCompleted: {
		Gate:   GateArticleQueuing,
		Reason: "subtopics await human approval",
		Action: "review and approve the generated subtopics",
		Link:   "/workflows/{id}/subtopics/review",
	},
	StateSubtopicFailed: {
		Gate:   GateArticleQueuing,
		Reason: "subtopic generation failed",
		Action: "retry the subtopic generation stage",
		Link:   "/workflows/{id}/subtopics",
	},

	StateAwaitingSubtopicApproval: {
		Gate:   GateArticleQueuing,
		Reason: "subtopics have not been approved",
		Action: "review and approve the generated subtopics",
		Link:   "/workflows/{id}/subtopics/review",
	},

	StateQueuePending: {
		Gate:   GateArticleQueuing,
		Reason: "article queuing has not started",
		Action: "start the article queuing stage",
		Link:   "/workflows/{id}/queue",
	},
	StateQueueProcessing: {
		Gate:   GateArticleQueuing,
		Reason: "article queuing is still running",
		Action: "wait for article queuing to complete",
		Link:   "/workflows/{id}/queue",
	},
	StateQueueFailed: {
		Gate:   GateArticleQueuing,
		Reason: "article queuing failed",
		Action: "retry the article queuing stage",
		Link:   "/workflows/{id}/queue",
	},
}

// BlockingCondition resolves the current state to its blocking
// condition. Terminal states block on nothing and resolve to nil.
func BlockingCondition(s State) *Blocking {
	b, ok := blockings[s]
	if !ok {
		return nil
	}
	return &b
}
