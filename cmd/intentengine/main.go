// Package main starts an intent engine server.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/intentops/intentengine/dispatch"
	"github.com/intentops/intentengine/engine"
	enginehttp "github.com/intentops/intentengine/engine/http"
	httpcmd "github.com/intentops/intentengine/http"
	"github.com/intentops/intentengine/log/logkeys"
	"github.com/intentops/intentengine/subsystem/approval"
	apprhttp "github.com/intentops/intentengine/subsystem/approval/http"
	"github.com/intentops/intentengine/subsystem/audit"
	audithttp "github.com/intentops/intentengine/subsystem/audit/http"
	"github.com/intentops/intentengine/subsystem/gate"
	gatehttp "github.com/intentops/intentengine/subsystem/gate/http"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log/stdlogfmt"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "intentengine"
	apiRealm    = "intentengine"
)

func main() {
	var (
		flDebug   = flag.Bool("debug", false, "log debug messages")
		flListen  = flag.String("listen", ":9004", "HTTP listen address")
		flVersion = flag.Bool("version", false, "print version and exit")
		flDump    = flag.Bool("dump", false, "dump stage event input")
		flAPIKey  = flag.String("api", "", "API key for API endpoints")
		flRoutes  = flag.String("routes", "", "path to dispatch routes YAML; triggers are logged and dropped if unset")
		flStorage = flag.String("storage", "file", "name of storage backend")
		flDSN     = flag.String("storage-dsn", "", "data source name (e.g. connection string or path)")
	)
	envflag.Parse("INTENTENGINE_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	storage, err := parseStorage(*flStorage, *flDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	auditor := audit.New(storage.audit, audit.WithLogger(logger))

	var dispatcher dispatch.Dispatcher = dispatch.NewNopDispatcher(logger)
	if *flRoutes != "" {
		routes, routesAPIKey, err := dispatch.LoadRoutes(*flRoutes)
		if err != nil {
			logger.Info(logkeys.Message, "loading dispatch routes", logkeys.Error, err)
			os.Exit(1)
		}
		dispatcher = dispatch.NewHTTPDispatcher(
			routes,
			dispatch.WithAPIKey(routesAPIKey),
			dispatch.WithLogger(logger),
		)
	}

	e := engine.New(storage.engine,
		engine.WithLogger(logger),
		engine.WithAuditor(auditor),
	)
	approvals := approval.New(storage.approval, storage.engine,
		approval.WithLogger(logger),
		approval.WithAuditor(auditor),
	)
	orch := engine.NewOrchestrator(e, approvals, dispatcher,
		engine.WithOrchestratorLogger(logger),
	)
	gates := gate.New(storage.engine,
		gate.WithLogger(logger),
		gate.WithAuditor(auditor),
	)

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))

	if *flAPIKey != "" {
		mux.Group(func(mux *flow.Mux) {
			mux.Use(func(h http.Handler) http.Handler {
				return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
			})
			if *flDump {
				mux.Use(func(h http.Handler) http.Handler {
					return httpcmd.DumpHandler(h, os.Stdout)
				})
			}

			enginehttp.HandleAPIv1("/v1", mux, logger, e, orch)
			apprhttp.HandleAPIv1("/v1", mux, logger, approvals)
			gatehttp.HandleAPIv1("/v1", mux, logger, gates)
			audithttp.HandleAPIv1("/v1", mux, logger, storage.audit)
		})
	}

	// seed for newTraceID
	rand.Seed(time.Now().UnixNano())

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

// newTraceID generates a new HTTP trace ID for context logging.
// Currently this just makes a random string. This would be better
// served by e.g. https://github.com/oklog/ulid or something like
// https://opentelemetry.io/ someday.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
