package http

import (
	"net/http"

	"github.com/micromdm/nanolib/log"
)

// APIEngine is the engine surface the workflow endpoints need.
type APIEngine interface {
	WorkflowRetriever
	TransitionAttempter
	WorkflowCanceller
	BlockingResolver
}

// APIOrchestrator is the orchestration surface the workflow endpoints need.
type APIOrchestrator interface {
	WorkflowStarter
	StageEventHandler
	ApprovalResumer
	StageRetrier
}

// Mux can register HTTP handlers.
// Ostensibly this supports flow router.
type Mux interface {
	// Handle registers the handler for the given pattern.
	Handle(pattern string, handler http.Handler, methods ...string)
}

// HandleAPIv1 registers the workflow API handlers into mux.
// API endpoint paths are prepended with prefix.
// Authentication or any other layered handlers are not present.
// They are assumed to be layered with mux, possibly at the Handle call.
// The logger is adorned with a "handler" key of the endpoint name.
func HandleAPIv1(prefix string, mux Mux, logger log.Logger, e APIEngine, o APIOrchestrator) {
	mux.Handle(
		prefix+"/workflow",
		StartWorkflowHandler(o, logger.With("handler", "start-workflow")),
		"POST",
	)
	mux.Handle(
		prefix+"/workflow/:id",
		GetWorkflowHandler(e, logger.With("handler", "get-workflow")),
		"GET",
	)
	mux.Handle(
		prefix+"/workflow/:id/transition",
		TransitionHandler(e, logger.With("handler", "transition")),
		"POST",
	)
	mux.Handle(
		prefix+"/workflow/:id/event/:event",
		StageEventHandlerFunc(o, logger.With("handler", "stage-event")),
		"POST",
	)
	mux.Handle(
		prefix+"/workflow/:id/cancel",
		CancelWorkflowHandler(e, logger.With("handler", "cancel-workflow")),
		"POST",
	)
	mux.Handle(
		prefix+"/workflow/:id/resume/:type",
		ResumeHandler(o, logger.With("handler", "resume-workflow")),
		"POST",
	)
	mux.Handle(
		prefix+"/workflow/:id/retry",
		RetryHandler(o, logger.With("handler", "retry-stage")),
		"POST",
	)
	mux.Handle(
		prefix+"/workflow/:id/blocking",
		BlockingHandler(e, logger.With("handler", "blocking-condition")),
		"GET",
	)
}
