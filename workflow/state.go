package workflow

// Stage identifies one of the nine ordered pipeline stages.
type Stage uint

// Storage backends (persistent storage) are likely to use these numeric
// values. Treat these as append-only: order and position matter.
const (
	StageInvalid Stage = iota
	StageAudience
	StageCompetitor
	StageSeed
	StageLongtail
	StageFilter
	StageCluster
	StageClusterValidation
	StageSubtopic
	StageQueue
	maxStage
)

func (s Stage) Valid() bool {
	return s > StageInvalid && s < maxStage
}

func (s Stage) String() string {
	switch s {
	case StageAudience:
		return "audience_definition"
	case StageCompetitor:
		return "competitor_analysis"
	case StageSeed:
		return "seed_extraction"
	case StageLongtail:
		return "longtail_expansion"
	case StageFilter:
		return "keyword_filtering"
	case StageCluster:
		return "clustering"
	case StageClusterValidation:
		return "cluster_validation"
	case StageSubtopic:
		return "subtopic_generation"
	case StageQueue:
		return "article_queuing"
	default:
		return "invalid"
	}
}

// State is one value of the closed workflow state enumeration.
//
// States are declared in pipeline order: a state later in the pipeline
// has a larger numeric value. Reached depends on this ordering.
// Treat the values as append-only: storage backends persist the
// canonical string but code compares the numeric order.
type State uint

const (
	StateInvalid State = iota

	StateAudiencePending
	StateAudienceProcessing
	StateAudienceCompleted
	StateAudienceFailed

	StateCompetitorPending
	StateCompetitorProcessing
	StateCompetitorCompleted
	StateCompetitorFailed

	StateSeedPending
	StateSeedProcessing
	StateSeedCompleted
	StateSeedFailed

	StateLongtailPending
	StateLongtailProcessing
	StateLongtailCompleted
	StateLongtailFailed

	StateFilterPending
	StateFilterProcessing
	StateFilterCompleted
	StateFilterFailed

	StateClusterPending
	StateClusterProcessing
	StateClusterCompleted
	StateClusterFailed

	// human gate: cluster validation
	StateAwaitingClusterApproval

	StateSubtopicPending
	StateSubtopicProcessing
	StateSubtopicCompleted
	StateSubtopicFailed

	// human gate: subtopic approval
	StateAwaitingSubtopicApproval

	StateQueuePending
	StateQueueProcessing
	StateQueueFailed

	// queue completion is workflow completion; there is no queue_completed
	StateCompleted
	StateCancelled

	maxState
)

// InitialState is the state a newly created workflow starts in.
const InitialState = StateAudiencePending

func (s State) Valid() bool {
	return s > StateInvalid && s < maxState
}

var stateStrings = map[State]string{
	StateAudiencePending:          "audience_pending",
	StateAudienceProcessing:       "audience_processing",
	StateAudienceCompleted:        "audience_completed",
	StateAudienceFailed:           "audience_failed",
	StateCompetitorPending:        "competitor_pending",
	StateCompetitorProcessing:     "competitor_processing",
	StateCompetitorCompleted:      "competitor_completed",
	StateCompetitorFailed:         "competitor_failed",
	StateSeedPending:              "seed_pending",
	StateSeedProcessing:           "seed_processing",
	StateSeedCompleted:            "seed_completed",
	StateSeedFailed:               "seed_failed",
	StateLongtailPending:          "longtail_pending",
	StateLongtailProcessing:       "longtail_processing",
	StateLongtailCompleted:        "longtail_completed",
	StateLongtailFailed:           "longtail_failed",
	StateFilterPending:            "filter_pending",
	StateFilterProcessing:         "filter_processing",
	StateFilterCompleted:          "filter_completed",
	StateFilterFailed:             "filter_failed",
	StateClusterPending:           "cluster_pending",
	StateClusterProcessing:        "cluster_processing",
	StateClusterCompleted:         "cluster_completed",
	StateClusterFailed:            "cluster_failed",
	StateAwaitingClusterApproval:  "awaiting_cluster_approval",
	StateSubtopicPending:          "subtopic_pending",
	StateSubtopicProcessing:       "subtopic_processing",
	StateSubtopicCompleted:        "subtopic_completed",
	StateSubtopicFailed:           "subtopic_failed",
	StateAwaitingSubtopicApproval: "awaiting_subtopic_approval",
	StateQueuePending:             "queue_pending",
	StateQueueProcessing:          "queue_processing",
	StateQueueFailed:              "queue_failed",
	StateCompleted:                "completed",
	StateCancelled:                "cancelled",
}

var statesByString = func() map[string]State {
	m := make(map[string]State, len(stateStrings))
	for s, str := range stateStrings {
		m[str] = s
	}
	return m
}()

// String returns the canonical (persisted) form of s.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "invalid"
}

// ParseState returns the state for canonical string str.
// Unknown strings parse to the invalid zero state.
func ParseState(str string) State {
	return statesByString[str]
}

var stateStages = map[State]Stage{
	StateAudiencePending:          StageAudience,
	StateAudienceProcessing:       StageAudience,
	StateAudienceCompleted:        StageAudience,
	StateAudienceFailed:           StageAudience,
	StateCompetitorPending:        StageCompetitor,
	StateCompetitorProcessing:     StageCompetitor,
	StateCompetitorCompleted:      StageCompetitor,
	StateCompetitorFailed:         StageCompetitor,
	StateSeedPending:              StageSeed,
	StateSeedProcessing:           StageSeed,
	StateSeedCompleted:            StageSeed,
	StateSeedFailed:               StageSeed,
	StateLongtailPending:          StageLongtail,
	StateLongtailProcessing:       StageLongtail,
	StateLongtailCompleted:        StageLongtail,
	StateLongtailFailed:           StageLongtail,
	StateFilterPending:            StageFilter,
	StateFilterProcessing:         StageFilter,
	StateFilterCompleted:          StageFilter,
	StateFilterFailed:             StageFilter,
	StateClusterPending:           StageCluster,
	StateClusterProcessing:        StageCluster,
	StateClusterCompleted:         StageCluster,
	StateClusterFailed:            StageCluster,
	StateAwaitingClusterApproval:  StageClusterValidation,
	StateSubtopicPending:          StageSubtopic,
	StateSubtopicProcessing:       StageSubtopic,
	StateSubtopicCompleted:        StageSubtopic,
	StateSubtopicFailed:           StageSubtopic,
	StateAwaitingSubtopicApproval: StageSubtopic,
	StateQueuePending:             StageQueue,
	StateQueueProcessing:          StageQueue,
	StateQueueFailed:              StageQueue,
	StateCompleted:                StageQueue,
}

// StateStage returns the pipeline stage s belongs to.
// StateCancelled belongs to no stage.
func StateStage(s State) Stage {
	return stateStages[s]
}

// Reached reports whether s is at or past marker in pipeline order.
// A cancelled workflow has reached nothing: cancellation abandons the
// pipeline rather than advancing it.
func (s State) Reached(marker State) bool {
	if s == StateCancelled {
		return false
	}
	return s.Valid() && marker.Valid() && s >= marker
}
