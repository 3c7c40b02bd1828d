package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/intentops/intentengine/utils/uuid"
	"github.com/intentops/intentengine/workflow"
)

func TestHTTPDispatcher(t *testing.T) {
	var got Payload
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST; got %s", r.Method)
		}
		gotKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(
		map[workflow.Trigger]string{workflow.TriggerCluster: srv.URL},
		WithAPIKey("secret"),
		WithIDer(uuid.NewStaticIDs("d1")),
	)

	dispatchID, err := d.Dispatch(context.Background(), workflow.TriggerCluster, "o1", "wf1")
	if err != nil {
		t.Fatal(err)
	}
	if dispatchID != "d1" {
		t.Errorf("expected dispatch id d1; got %s", dispatchID)
	}
	if gotKey != "secret" {
		t.Errorf("expected api key header; got %q", gotKey)
	}
	if got.Trigger != "cluster.start" || got.OrgID != "o1" || got.WorkflowID != "wf1" || got.DispatchID != "d1" {
		t.Errorf("unexpected payload: %+v", got)
	}

	// unrouted trigger
	if _, err = d.Dispatch(context.Background(), workflow.TriggerQueue, "o1", "wf1"); err == nil {
		t.Error("expected error for unrouted trigger")
	}
}

func TestHTTPDispatcherBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(map[workflow.Trigger]string{workflow.TriggerSeed: srv.URL})
	if _, err := d.Dispatch(context.Background(), workflow.TriggerSeed, "o1", "wf1"); err == nil {
		t.Error("expected error for non-2xx worker response")
	}
}

func TestLoadRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	err := os.WriteFile(path, []byte(`
version: "1"
api_key: secret
routes:
  - trigger: audience.start
    url: http://workers.internal/audience
  - trigger: queue.start
    url: http://workers.internal/queue
`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	routes, apiKey, err := LoadRoutes(path)
	if err != nil {
		t.Fatal(err)
	}
	if apiKey != "secret" {
		t.Errorf("expected api key; got %q", apiKey)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes; got %d", len(routes))
	}
	if routes[workflow.TriggerAudience] != "http://workers.internal/audience" {
		t.Errorf("unexpected audience route: %s", routes[workflow.TriggerAudience])
	}
}

func TestLoadRoutesUnknownTrigger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	err := os.WriteFile(path, []byte(`
routes:
  - trigger: nonsense.start
    url: http://workers.internal/nonsense
`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err = LoadRoutes(path); err == nil {
		t.Error("expected error for unknown trigger")
	}
}
