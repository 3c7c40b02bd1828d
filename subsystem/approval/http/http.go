// Package http contains HTTP handlers for the approval subsystem.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	engstorage "github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/http/api"
	"github.com/intentops/intentengine/log/logkeys"
	"github.com/intentops/intentengine/subsystem/approval"
	"github.com/intentops/intentengine/subsystem/approval/storage"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var ErrNoOrg = errors.New("no org provided")

func params(r *http.Request) (orgID, workflowID string, t storage.Type, err error) {
	orgID = r.URL.Query().Get("org")
	if orgID == "" {
		err = ErrNoOrg
		return
	}
	workflowID = flow.Param(r.Context(), "id")
	t = storage.Type(flow.Param(r.Context(), "type"))
	if !t.Valid() {
		err = storage.ErrInvalidType
	}
	return
}

// RecordApproval returns an HTTP handler that records a reviewer
// decision for a workflow's review boundary.
func RecordApproval(svc *approval.Service, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, workflowID, t, err := params(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		logger = logger.With(
			logkeys.OrgID, orgID,
			logkeys.WorkflowID, workflowID,
			logkeys.ApprovalType, string(t),
		)

		var req approval.Request
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Info(logkeys.Message, "decode request", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		req.SourceAddr = r.RemoteAddr

		rec, err := svc.RecordApproval(r.Context(), orgID, workflowID, t, req)
		if err != nil {
			logger.Info(logkeys.Message, "record approval", logkeys.Error, err)
			api.JSONError(w, err, approvalErrStatus(err))
			return
		}
		logger.Debug(
			logkeys.Message, "recorded approval",
			logkeys.ActorID, rec.ApproverID,
		)
		w.Header().Set("Content-type", "application/json")
		if err = json.NewEncoder(w).Encode(rec); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
		}
	}
}

// RetrieveApproval returns an HTTP handler that reads the recorded
// decision for a workflow's review boundary.
func RetrieveApproval(svc *approval.Service, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, workflowID, t, err := params(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		rec, err := svc.RetrieveApproval(r.Context(), orgID, workflowID, t)
		if err != nil {
			logger.Info(
				logkeys.Message, "retrieve approval",
				logkeys.OrgID, orgID,
				logkeys.WorkflowID, workflowID,
				logkeys.Error, err,
			)
			api.JSONError(w, err, approvalErrStatus(err))
			return
		}
		w.Header().Set("Content-type", "application/json")
		if err = json.NewEncoder(w).Encode(rec); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
		}
	}
}

// StoreCandidates returns an HTTP handler that replaces the candidate
// item set awaiting review. Intended for the worker callbacks.
func StoreCandidates(svc *approval.Service, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, workflowID, t, err := params(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		var body struct {
			ItemIDs []string `json:"item_ids"`
		}
		if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Info(logkeys.Message, "decode request", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		if err = svc.StoreCandidates(r.Context(), orgID, workflowID, t, body.ItemIDs); err != nil {
			logger.Info(
				logkeys.Message, "store candidates",
				logkeys.OrgID, orgID,
				logkeys.WorkflowID, workflowID,
				logkeys.Error, err,
			)
			api.JSONError(w, err, 0)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func approvalErrStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, engstorage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, approval.ErrNotAwaitingReview):
		return http.StatusConflict
	case errors.Is(err, approval.ErrUnknownItem),
		errors.Is(err, storage.ErrInvalidType),
		errors.Is(err, storage.ErrInvalidDecision),
		errors.Is(err, storage.ErrMissingApprover):
		return http.StatusBadRequest
	}
	return 0
}
