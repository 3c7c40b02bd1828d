package http

import (
	"net/http"

	"github.com/intentops/intentengine/subsystem/approval"

	"github.com/micromdm/nanolib/log"
)

// Mux can register HTTP handlers.
// Ostensibly this supports flow router.
type Mux interface {
	// Handle registers the handler for the given pattern.
	Handle(pattern string, handler http.Handler, methods ...string)
}

// HandleAPIv1 registers the approval API handlers into mux.
// API endpoint paths are prepended with prefix.
// Authentication or any other layered handlers are not present.
// They are assumed to be layered with mux, possibly at the Handle call.
// The logger is adorned with a "handler" key of the endpoint name.
func HandleAPIv1(prefix string, mux Mux, logger log.Logger, svc *approval.Service) {
	mux.Handle(
		prefix+"/workflow/:id/approval/:type",
		RecordApproval(svc, logger.With("handler", "record-approval")),
		"PUT",
	)
	mux.Handle(
		prefix+"/workflow/:id/approval/:type",
		RetrieveApproval(svc, logger.With("handler", "get-approval")),
		"GET",
	)
	mux.Handle(
		prefix+"/workflow/:id/candidates/:type",
		StoreCandidates(svc, logger.With("handler", "put-candidates")),
		"PUT",
	)
}
