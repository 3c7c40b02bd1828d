// Package dispatch delivers stage triggers to the workers that run
// the pipeline stages. Delivery is at-least-once; the receiving side
// is expected to dedup on the dispatch ID.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/intentops/intentengine/log/logkeys"
	"github.com/intentops/intentengine/utils/uuid"
	"github.com/intentops/intentengine/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Dispatcher hands a stage trigger to whatever runs it.
type Dispatcher interface {
	// Dispatch delivers trigger for a workflow and returns an
	// identifier for the delivery attempt.
	Dispatch(ctx context.Context, trigger workflow.Trigger, orgID, workflowID string) (string, error)
}

// Payload is the JSON body delivered to stage workers.
type Payload struct {
	DispatchID string `json:"dispatch_id"`
	Trigger    string `json:"trigger"`
	OrgID      string `json:"org_id"`
	WorkflowID string `json:"workflow_id"`
}

// Doer executes HTTP requests; usually an *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPDispatcher POSTs trigger payloads to per-trigger worker URLs.
type HTTPDispatcher struct {
	routes map[workflow.Trigger]string
	apiKey string
	client Doer
	ider   uuid.IDer
	logger log.Logger
}

type Option func(*HTTPDispatcher)

func WithClient(client Doer) Option {
	return func(d *HTTPDispatcher) {
		d.client = client
	}
}

func WithAPIKey(key string) Option {
	return func(d *HTTPDispatcher) {
		d.apiKey = key
	}
}

func WithLogger(logger log.Logger) Option {
	return func(d *HTTPDispatcher) {
		d.logger = logger
	}
}

func WithIDer(ider uuid.IDer) Option {
	return func(d *HTTPDispatcher) {
		d.ider = ider
	}
}

// NewHTTPDispatcher creates a dispatcher for the given trigger routes.
func NewHTTPDispatcher(routes map[workflow.Trigger]string, opts ...Option) *HTTPDispatcher {
	d := &HTTPDispatcher{
		routes: routes,
		client: http.DefaultClient,
		ider:   uuid.NewUUID(),
		logger: log.NopLogger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("service", "dispatch")
	return d
}

// Dispatch POSTs the trigger payload to its routed worker URL.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, trigger workflow.Trigger, orgID, workflowID string) (string, error) {
	url, ok := d.routes[trigger]
	if !ok {
		return "", fmt.Errorf("no route for trigger: %s", trigger)
	}
	dispatchID := d.ider.ID()

	body, err := json.Marshal(&Payload{
		DispatchID: dispatchID,
		Trigger:    string(trigger),
		OrgID:      orgID,
		WorkflowID: workflowID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-Api-Key", d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("dispatching %s: %w", trigger, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("dispatching %s: unexpected status: %d", trigger, resp.StatusCode)
	}

	ctxlog.Logger(ctx, d.logger).Debug(
		logkeys.Message, "dispatched trigger",
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, workflowID,
		logkeys.Trigger, string(trigger),
		logkeys.DispatchID, dispatchID,
	)
	return dispatchID, nil
}

// NopDispatcher logs triggers and drops them. For development and for
// deployments where workers poll instead of being pushed to.
type NopDispatcher struct {
	ider   uuid.IDer
	logger log.Logger
}

// NewNopDispatcher creates a new do-nothing dispatcher.
func NewNopDispatcher(logger log.Logger) *NopDispatcher {
	return &NopDispatcher{ider: uuid.NewUUID(), logger: logger}
}

// Dispatch logs the trigger and reports success.
func (d *NopDispatcher) Dispatch(ctx context.Context, trigger workflow.Trigger, orgID, workflowID string) (string, error) {
	dispatchID := d.ider.ID()
	ctxlog.Logger(ctx, d.logger).Info(
		logkeys.Message, "dropping trigger",
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, workflowID,
		logkeys.Trigger, string(trigger),
		logkeys.DispatchID, dispatchID,
	)
	return dispatchID, nil
}
