// Package http contains HTTP handlers for the audit trail subsystem.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/intentops/intentengine/http/api"
	"github.com/intentops/intentengine/log/logkeys"
	"github.com/intentops/intentengine/subsystem/audit/storage"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoOrg     = errors.New("no org provided")
	ErrNoStorage = errors.New("no storage backend")
)

// RetrieveAuditTrail returns an HTTP handler that lists the audit
// records for a workflow in chronological order.
func RetrieveAuditTrail(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Message, "retrieve audit trail", logkeys.Error, ErrNoStorage)
			api.JSONError(w, ErrNoStorage, 0)
			return
		}

		orgID := r.URL.Query().Get("org")
		if orgID == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoOrg)
			api.JSONError(w, ErrNoOrg, http.StatusBadRequest)
			return
		}
		workflowID := flow.Param(r.Context(), "id")

		logger = logger.With(
			logkeys.OrgID, orgID,
			logkeys.WorkflowID, workflowID,
		)
		records, err := store.RetrieveRecords(r.Context(), orgID, workflowID)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve audit trail", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(
			logkeys.Message, "retrieved audit trail",
			logkeys.GenericCount, len(records),
		)
		w.Header().Set("Content-type", "application/json")
		if err = json.NewEncoder(w).Encode(records); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
			return
		}
	}
}
