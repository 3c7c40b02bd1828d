// Package http contains HTTP handlers that work with the workflow engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/intentops/intentengine/engine"
	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/http/api"
	"github.com/intentops/intentengine/log/logkeys"
	apprstorage "github.com/intentops/intentengine/subsystem/approval/storage"
	"github.com/intentops/intentengine/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoOrg  = errors.New("no org provided")
	ErrNoName = errors.New("no workflow name provided")
)

type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, orgID, name string) (*storage.WorkflowRecord, error)
}

type WorkflowRetriever interface {
	RetrieveWorkflow(ctx context.Context, orgID, workflowID string) (*storage.WorkflowRecord, error)
}

type TransitionAttempter interface {
	AttemptTransition(ctx context.Context, orgID, workflowID string, from, to workflow.State, idemKey string) (*engine.TransitionResult, error)
}

type WorkflowCanceller interface {
	Cancel(ctx context.Context, orgID, workflowID, actor, reason string) (*engine.TransitionResult, error)
}

type StageEventHandler interface {
	HandleStageEvent(ctx context.Context, orgID, workflowID string, event workflow.StageEvent, idemKey string) (*engine.TransitionResult, error)
}

type ApprovalResumer interface {
	ResumeFromApproval(ctx context.Context, orgID, workflowID string, t apprstorage.Type) (*engine.TransitionResult, error)
}

type StageRetrier interface {
	RetryStage(ctx context.Context, orgID, workflowID, idemKey string) (*engine.TransitionResult, error)
}

type BlockingResolver interface {
	BlockingCondition(ctx context.Context, orgID, workflowID string) (*workflow.Blocking, error)
}

// workflowResp is the wire form of a workflow record.
type workflowResp struct {
	ID           string                `json:"id"`
	OrgID        string                `json:"org_id"`
	Name         string                `json:"name,omitempty"`
	State        string                `json:"state"`
	Cancellation *storage.Cancellation `json:"cancellation,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

func workflowJSON(r *storage.WorkflowRecord) *workflowResp {
	return &workflowResp{
		ID:           r.ID,
		OrgID:        r.OrgID,
		Name:         r.Name,
		State:        r.State.String(),
		Cancellation: r.Cancellation,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func orgParam(r *http.Request) (string, error) {
	orgID := r.URL.Query().Get("org")
	if orgID == "" {
		return "", ErrNoOrg
	}
	return orgID, nil
}

// resultStatus maps a transition result to its HTTP status.
func resultStatus(result *engine.TransitionResult) int {
	switch result.Outcome {
	case engine.OutcomeApplied, engine.OutcomeNoop:
		return http.StatusOK
	case engine.OutcomeConflict:
		return http.StatusConflict
	case engine.OutcomeInvalid:
		return http.StatusUnprocessableEntity
	case engine.OutcomeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeResult(w http.ResponseWriter, logger log.Logger, result *engine.TransitionResult) {
	w.Header().Set("Content-type", "application/json")
	w.WriteHeader(resultStatus(result))
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
	}
}

// StartWorkflowHandler creates a HandlerFunc that creates a workflow
// and dispatches its first stage.
func StartWorkflowHandler(starter WorkflowStarter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, err := orgParam(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		var body struct {
			Name string `json:"name"`
		}
		if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Info(logkeys.Message, "decode request", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		if body.Name == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoName)
			api.JSONError(w, ErrNoName, http.StatusBadRequest)
			return
		}

		wf, err := starter.StartWorkflow(r.Context(), orgID, body.Name)
		if err != nil {
			logger.Info(logkeys.Message, "starting workflow", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(
			logkeys.Message, "started workflow",
			logkeys.OrgID, orgID,
			logkeys.WorkflowID, wf.ID,
		)
		w.Header().Set("Content-type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err = json.NewEncoder(w).Encode(workflowJSON(wf)); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
		}
	}
}

// GetWorkflowHandler creates a HandlerFunc that reads a workflow.
func GetWorkflowHandler(retriever WorkflowRetriever, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, err := orgParam(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		workflowID := flow.Param(r.Context(), "id")

		wf, err := retriever.RetrieveWorkflow(r.Context(), orgID, workflowID)
		if errors.Is(err, storage.ErrNotFound) {
			api.JSONError(w, err, http.StatusNotFound)
			return
		} else if err != nil {
			logger.Info(logkeys.Message, "retrieve workflow", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		w.Header().Set("Content-type", "application/json")
		if err = json.NewEncoder(w).Encode(workflowJSON(wf)); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
		}
	}
}

// TransitionHandler creates a HandlerFunc that attempts an explicit
// state transition.
func TransitionHandler(attempter TransitionAttempter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, err := orgParam(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		workflowID := flow.Param(r.Context(), "id")

		var body struct {
			From    string `json:"from"`
			To      string `json:"to"`
			IdemKey string `json:"idempotency_key"`
		}
		if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Info(logkeys.Message, "decode request", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		from := workflow.ParseState(body.From)
		to := workflow.ParseState(body.To)
		if !from.Valid() || !to.Valid() {
			err := errors.New("unknown state name")
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		result, err := attempter.AttemptTransition(r.Context(), orgID, workflowID, from, to, body.IdemKey)
		if errors.Is(err, storage.ErrMissingIdemKey) {
			api.JSONError(w, err, http.StatusBadRequest)
			return
		} else if err != nil {
			logger.Info(logkeys.Message, "attempt transition", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		writeResult(w, logger, result)
	}
}

// StageEventHandlerFunc creates a HandlerFunc for worker terminal
// callbacks: stage completions and failures.
func StageEventHandlerFunc(handler StageEventHandler, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, err := orgParam(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		workflowID := flow.Param(r.Context(), "id")
		event := workflow.ParseStageEvent(flow.Param(r.Context(), "event"))
		if !event.Valid() {
			api.JSONError(w, engine.ErrUnknownEvent, http.StatusBadRequest)
			return
		}

		var body struct {
			IdemKey string `json:"idempotency_key"`
		}
		if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Info(logkeys.Message, "decode request", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		result, err := handler.HandleStageEvent(r.Context(), orgID, workflowID, event, body.IdemKey)
		if errors.Is(err, storage.ErrMissingIdemKey) {
			api.JSONError(w, err, http.StatusBadRequest)
			return
		} else if err != nil {
			logger.Info(
				logkeys.Message, "handle stage event",
				logkeys.Event, event.String(),
				logkeys.Error, err,
			)
			api.JSONError(w, err, 0)
			return
		}
		writeResult(w, logger, result)
	}
}

// CancelWorkflowHandler creates a HandlerFunc that cancels a workflow.
func CancelWorkflowHandler(canceller WorkflowCanceller, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, err := orgParam(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		workflowID := flow.Param(r.Context(), "id")

		var body struct {
			Actor  string `json:"actor"`
			Reason string `json:"reason"`
		}
		if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Info(logkeys.Message, "decode request", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		result, err := canceller.Cancel(r.Context(), orgID, workflowID, body.Actor, body.Reason)
		if err != nil {
			logger.Info(logkeys.Message, "cancel workflow", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		writeResult(w, logger, result)
	}
}

// ResumeHandler creates a HandlerFunc that continues a workflow parked
// at a review boundary per its recorded decision.
func ResumeHandler(resumer ApprovalResumer, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, err := orgParam(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		workflowID := flow.Param(r.Context(), "id")
		t := apprstorage.Type(flow.Param(r.Context(), "type"))

		result, err := resumer.ResumeFromApproval(r.Context(), orgID, workflowID, t)
		if err != nil {
			logger.Info(
				logkeys.Message, "resume workflow",
				logkeys.ApprovalType, string(t),
				logkeys.Error, err,
			)
			status := 0
			switch {
			case errors.Is(err, apprstorage.ErrInvalidType):
				status = http.StatusBadRequest
			case errors.Is(err, engine.ErrNoDecision):
				status = http.StatusConflict
			}
			api.JSONError(w, err, status)
			return
		}
		writeResult(w, logger, result)
	}
}

// RetryHandler creates a HandlerFunc that re-runs a failed stage.
func RetryHandler(retrier StageRetrier, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, err := orgParam(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		workflowID := flow.Param(r.Context(), "id")

		var body struct {
			IdemKey string `json:"idempotency_key"`
		}
		if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Info(logkeys.Message, "decode request", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		result, err := retrier.RetryStage(r.Context(), orgID, workflowID, body.IdemKey)
		if err != nil {
			logger.Info(logkeys.Message, "retry stage", logkeys.Error, err)
			status := 0
			switch {
			case errors.Is(err, engine.ErrNotFailed):
				status = http.StatusConflict
			case errors.Is(err, storage.ErrNotFound):
				status = http.StatusNotFound
			case errors.Is(err, storage.ErrMissingIdemKey):
				status = http.StatusBadRequest
			}
			api.JSONError(w, err, status)
			return
		}
		writeResult(w, logger, result)
	}
}

// BlockingHandler creates a HandlerFunc that reports what a workflow
// is currently waiting on. Terminal workflows report nothing.
func BlockingHandler(resolver BlockingResolver, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		orgID, err := orgParam(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		workflowID := flow.Param(r.Context(), "id")

		blocking, err := resolver.BlockingCondition(r.Context(), orgID, workflowID)
		if errors.Is(err, storage.ErrNotFound) {
			api.JSONError(w, err, http.StatusNotFound)
			return
		} else if err != nil {
			logger.Info(logkeys.Message, "resolve blocking condition", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		resp := &struct {
			Blocked  bool               `json:"blocked"`
			Blocking *workflow.Blocking `json:"blocking,omitempty"`
		}{Blocked: blocking != nil, Blocking: blocking}
		w.Header().Set("Content-type", "application/json")
		if err = json.NewEncoder(w).Encode(resp); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
		}
	}
}
