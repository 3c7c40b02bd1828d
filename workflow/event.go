package workflow

import "fmt"

// StageEvent is a stage worker's terminal callback: each stage reports
// exactly one of its completed or failed event when its async work ends.
type StageEvent uint

// Storage backends and webhook payloads use the string forms; treat the
// numeric values as append-only.
const (
	eventInvalid StageEvent = iota
	EventAudienceCompleted
	EventAudienceFailed
	EventCompetitorCompleted
	EventCompetitorFailed
	EventSeedCompleted
	EventSeedFailed
	EventLongtailCompleted
	EventLongtailFailed
	EventFilterCompleted
	EventFilterFailed
	EventClusterCompleted
	EventClusterFailed
	EventSubtopicCompleted
	EventSubtopicFailed
	EventQueueCompleted
	EventQueueFailed
	maxStageEvent
)

func (e StageEvent) Valid() bool {
	return e > eventInvalid && e < maxStageEvent
}

var stageEventStrings = map[StageEvent]string{
	EventAudienceCompleted:   "audience.completed",
	EventAudienceFailed:      "audience.failed",
	EventCompetitorCompleted: "competitor.completed",
	EventCompetitorFailed:    "competitor.failed",
	EventSeedCompleted:       "seed.completed",
	EventSeedFailed:          "seed.failed",
	EventLongtailCompleted:   "longtail.completed",
	EventLongtailFailed:      "longtail.failed",
	EventFilterCompleted:     "filter.completed",
	EventFilterFailed:        "filter.failed",
	EventClusterCompleted:    "cluster.completed",
	EventClusterFailed:       "cluster.failed",
	EventSubtopicCompleted:   "subtopic.completed",
	EventSubtopicFailed:      "subtopic.failed",
	EventQueueCompleted:      "queue.completed",
	EventQueueFailed:         "queue.failed",
}

var stageEventsByString = func() map[string]StageEvent {
	m := make(map[string]StageEvent, len(stageEventStrings))
	for e, str := range stageEventStrings {
		m[str] = e
	}
	return m
}()

func (e StageEvent) String() string {
	if s, ok := stageEventStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("unknown stage event: %d", uint(e))
}

// ParseStageEvent returns the event for s, or an invalid zero event.
func ParseStageEvent(s string) StageEvent {
	return stageEventsByString[s]
}

// Trigger is the name of a downstream dispatch that starts a stage's
// worker. Triggers are dispatched through the worker dispatch boundary;
// their payload identifies the workflow to operate on.
type Trigger string

const (
	TriggerAudience   Trigger = "audience.start"
	TriggerCompetitor Trigger = "competitor.start"
	TriggerSeed       Trigger = "seed.start"
	TriggerLongtail   Trigger = "longtail.start"
	TriggerFilter     Trigger = "filter.start"
	TriggerCluster    Trigger = "cluster.start"
	TriggerSubtopic   Trigger = "subtopic.start"
	TriggerQueue      Trigger = "queue.start"
)

// Triggers lists every dispatchable stage trigger.
var Triggers = []Trigger{
	TriggerAudience,
	TriggerCompetitor,
	TriggerSeed,
	TriggerLongtail,
	TriggerFilter,
	TriggerCluster,
	TriggerSubtopic,
	TriggerQueue,
}

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	for _, known := range Triggers {
		if t == known {
			return true
		}
	}
	return false
}
