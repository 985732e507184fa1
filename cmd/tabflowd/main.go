// Command tabflowd runs the tabflow sender: the control-plane HTTP API,
// the durable state store, and the ingestion pipeline that pushes chunks to
// whatever callback_url each request names.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabflow/config"
	"github.com/hazyhaar/tabflow/dbopen"
	"github.com/hazyhaar/tabflow/httpapi"
	"github.com/hazyhaar/tabflow/idgen"
	"github.com/hazyhaar/tabflow/observability"
	"github.com/hazyhaar/tabflow/pipeline"
	"github.com/hazyhaar/tabflow/pusher"
	"github.com/hazyhaar/tabflow/statestore"
	"github.com/hazyhaar/tabflow/trace"
)

func main() {
	cfgPath := "tabflow.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.Logger

	// Trace store first: it must be opened with the raw "sqlite" driver and
	// registered before anything else opens a "sqlite-trace" connection.
	traceDB, err := dbopen.Open(cfg.TraceDBPath, dbopen.WithMkdirAll())
	if err != nil {
		log.Fatalf("trace db: %v", err)
	}
	defer traceDB.Close()
	traceStore := trace.NewStore(traceDB)
	if err := traceStore.Init(); err != nil {
		log.Fatalf("trace schema: %v", err)
	}
	trace.SetStore(traceStore)
	defer traceStore.Close()

	obsDB, err := dbopen.Open(cfg.ObservabilityDBPath, dbopen.WithTrace(), dbopen.WithMkdirAll())
	if err != nil {
		log.Fatalf("observability db: %v", err)
	}
	defer obsDB.Close()
	if err := observability.Init(obsDB); err != nil {
		log.Fatalf("observability schema: %v", err)
	}

	auditLogger := observability.NewAuditLogger(obsDB, 1000,
		observability.WithAuditIDGenerator(idgen.Prefixed("aud_", idgen.Default)),
	)
	defer auditLogger.Close()
	metrics := observability.NewMetricsManager(obsDB, 100, 5*time.Second)
	defer metrics.Close()

	events := observability.NewEventLogger(obsDB,
		observability.WithEventIDGenerator(idgen.Prefixed("evt_", idgen.Default)),
	)

	heartbeat := observability.NewHeartbeatWriter(obsDB, "tabflowd", 15*time.Second)
	heartbeat.Start(context.Background())
	defer heartbeat.Stop()

	store, err := statestore.Open(cfg.StateStorePath)
	if err != nil {
		log.Fatalf("state store: %v", err)
	}
	defer store.Close()

	p := pipeline.New(store,
		pipeline.WithPusher(pusher.New(
			pusher.WithHTTPClient(&http.Client{Timeout: cfg.PushTimeout()}),
			pusher.WithMaxAttempts(cfg.PushMaxAttempts),
			pusher.WithLogger(logger),
		)),
		pipeline.WithAudit(auditLogger),
		pipeline.WithMetrics(metrics),
		pipeline.WithEventLogger(events),
		pipeline.WithLogger(logger),
	)

	h := httpapi.New(p,
		httpapi.WithIDGenerator(idgen.Prefixed("ing_", idgen.UUIDv7())),
		httpapi.WithLogger(logger),
	)

	logger.Info("tabflowd listening", "addr", cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, h.Router()); err != nil {
		slog.Error("serve", "error", err)
		os.Exit(1)
	}
}
