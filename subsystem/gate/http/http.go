// Package http contains HTTP handlers for the gate subsystem.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	engstorage "github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/http/api"
	"github.com/intentops/intentengine/log/logkeys"
	"github.com/intentops/intentengine/subsystem/gate"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var ErrNoOrg = errors.New("no org provided")

// CheckGate returns an HTTP handler that evaluates one gate for a
// workflow. Blocked results are still HTTP 200: the check succeeded,
// the answer is no.
func CheckGate(v *gate.Validator, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID := r.URL.Query().Get("org")
		if orgID == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoOrg)
			api.JSONError(w, ErrNoOrg, http.StatusBadRequest)
			return
		}
		workflowID := flow.Param(r.Context(), "id")
		gateName := flow.Param(r.Context(), "name")

		result, err := v.Validate(r.Context(), orgID, workflowID, gateName)
		if err != nil {
			logger.Info(
				logkeys.Message, "check gate",
				logkeys.OrgID, orgID,
				logkeys.WorkflowID, workflowID,
				logkeys.Gate, gateName,
				logkeys.Error, err,
			)
			status := 0
			switch {
			case errors.Is(err, gate.ErrUnknownGate):
				status = http.StatusBadRequest
			case errors.Is(err, engstorage.ErrNotFound):
				status = http.StatusNotFound
			}
			api.JSONError(w, err, status)
			return
		}
		w.Header().Set("Content-type", "application/json")
		if err = json.NewEncoder(w).Encode(result); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
		}
	}
}
