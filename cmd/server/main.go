package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/aegis-run/orchestrator/internal/application/blackboard"
	"github.com/aegis-run/orchestrator/internal/application/cortex"
	"github.com/aegis-run/orchestrator/internal/application/expreval"
	"github.com/aegis-run/orchestrator/internal/application/humangate"
	"github.com/aegis-run/orchestrator/internal/application/iteration"
	applicationrouter "github.com/aegis-run/orchestrator/internal/application/router"
	"github.com/aegis-run/orchestrator/internal/application/validator"
	"github.com/aegis-run/orchestrator/internal/domain"
	"github.com/aegis-run/orchestrator/internal/infrastructure/api"
	"github.com/aegis-run/orchestrator/internal/infrastructure/config"
	"github.com/aegis-run/orchestrator/internal/infrastructure/cortexstore"
	"github.com/aegis-run/orchestrator/internal/infrastructure/durability"
	"github.com/aegis-run/orchestrator/internal/infrastructure/eventlog"
	"github.com/aegis-run/orchestrator/internal/infrastructure/isolation"
	"github.com/aegis-run/orchestrator/internal/infrastructure/logger"
	"github.com/aegis-run/orchestrator/internal/infrastructure/modelinvoke"
	"github.com/aegis-run/orchestrator/internal/infrastructure/monitoring"
	"github.com/aegis-run/orchestrator/internal/infrastructure/storage"
	"github.com/aegis-run/orchestrator/internal/infrastructure/stimulussource"
	"github.com/aegis-run/orchestrator/internal/infrastructure/websocket"
)

func main() {
	var (
		port           = flag.String("port", "", "server port (overrides config)")
		enableTemporal = flag.Bool("temporal", false, "drive executions through a live Temporal worker instead of the in-process TestRuntime (overrides config)")
	)
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}
	if *enableTemporal {
		cfg.EnableTemporal = true
	}

	log := logger.Setup(cfg.LogLevel)
	log.Info().
		Str("port", cfg.Port).
		Bool("temporal", cfg.EnableTemporal).
		Str("database_dsn", maskDSN(cfg.DatabaseDSN)).
		Msg("starting aegis orchestrator")

	ctx := context.Background()

	db := storage.Open(cfg.DatabaseDSN)
	if err := storage.InitSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage schema")
	}

	events := eventlog.New(cfg.DatabaseDSN)
	if err := events.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize event log schema")
	}

	workflows := storage.NewWorkflowStore(db)
	agents := storage.NewAgentStore(db)
	registrations := storage.NewRegistrationStore(db)
	humanGateStore := storage.NewHumanGateStore(db)
	executions := storage.NewExecutionStore(db, events)

	var patterns domain.PatternStore
	if cfg.DatabaseDSN != "" {
		patterns = cortexstore.NewBunStore(db)
	} else {
		patterns = cortexstore.NewMemory()
	}

	invokers := map[string]domain.ModelInvoker{}
	if cfg.OpenAIAPIKey != "" {
		invokers["openai"] = modelinvoke.NewOpenAIInvoker(cfg.OpenAIAPIKey)
	}
	if cfg.AnthropicAPIKey != "" {
		invokers["anthropic"] = modelinvoke.NewAnthropicInvoker(cfg.AnthropicAPIKey)
	}
	modelDispatcher := modelinvoke.NewDispatcher(invokers)

	var embedder iteration.Embedder
	if cfg.OpenAIAPIKey != "" {
		embedder = modelinvoke.NewOpenAIEmbedder(cfg.OpenAIAPIKey, openai.SmallEmbedding3)
	}

	isolationProvider := isolation.NewLocalProcess()

	observerManager := monitoring.NewObserverManager()
	loggingObserver := monitoring.NewLoggingObserver(log)
	metricsCollector := monitoring.NewMetricsCollector()
	executionTrace := monitoring.NewExecutionTrace()
	observerManager.Add(monitoring.NewCompositeObserver(loggingObserver, metricsCollector, executionTrace))

	hub := websocket.NewHub(log)
	go hub.Run()
	observerManager.Add(websocket.NewSocketObserver(hub))

	var auth websocket.Authenticator
	if cfg.JWTSigningSecret != "" {
		auth = websocket.NewJWTAuth(cfg.JWTSigningSecret)
	} else {
		auth = websocket.NewNoAuth()
	}
	wsHandler := websocket.NewHandler(hub, auth, log)

	validatorThresholds := validator.Thresholds{
		PassScore:       cfg.ValidatorPassThreshold,
		ConfidenceScore: cfg.ValidatorConfidenceThreshold,
		RefineScore:     cfg.ValidatorRefineThreshold,
	}
	gradeValidator := validator.New(validatorThresholds)

	cortexParams := cortex.Params{
		DedupThreshold: cfg.CortexDedupThreshold,
		ReinforceBeta:  cfg.CortexReinforceBeta,
		MaxWeight:      cfg.CortexMaxWeight,
		MinWeight:      cfg.CortexMinWeightPrune,
		DecayHalfLife:  cfg.CortexDecayHalfLife,
		PruneInterval:  cfg.PrunerInterval,
	}
	cortexService := cortex.New(patterns, cortexParams, observerManager)
	pruner := cortex.NewPruner(cortexService)
	go pruner.Run(ctx)

	loop := &iteration.Loop{
		Invoker:   modelDispatcher,
		Patterns:  patterns,
		Embedder:  embedder,
		Validator: gradeValidator,
		Observer:  observerManager,
		Cortex:    iteration.DefaultCortexParams(),
	}

	renderer := blackboard.NewRenderer()
	eval := expreval.New()

	deps := interpreterDeps{
		workflows:  workflows,
		agents:     agents,
		events:     events,
		executions: executions,
		isolation:  isolationProvider,
		loop:       loop,
		renderer:   renderer,
		eval:       eval,
		observer:   observerManager,
	}

	var drive executionDriver
	var temporalClient client.Client
	var temporalWorker worker.Worker
	if cfg.EnableTemporal {
		var err error
		temporalClient, err = client.Dial(client.Options{HostPort: cfg.TemporalHostPort, Namespace: cfg.TemporalNamespace})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to temporal")
		}
		defer temporalClient.Close()

		gate := humangate.New(humanGateStore, durability.NewTemporalSignaler(temporalClient), observerManager)
		deps.gate = gate

		wfFn := newTemporalWorkflowFunc(deps)
		temporalWorker = worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
		temporalWorker.RegisterWorkflow(wfFn)
		go func() {
			if err := temporalWorker.Run(worker.InterruptCh()); err != nil {
				log.Error().Err(err).Msg("temporal worker stopped")
			}
		}()

		drive = temporalDriver(temporalClient, cfg.TemporalTaskQueue, wfFn, log)
		log.Info().Str("task_queue", cfg.TemporalTaskQueue).Msg("driving executions through temporal")
	} else {
		testRuntime := durability.NewTestRuntime()
		gate := humangate.New(humanGateStore, testRuntime, observerManager)
		deps.gate = gate

		drive = localDriver(deps, testRuntime, log)
		log.Info().Msg("driving executions in-process via TestRuntime")

		go expireOverdueHumanRequests(ctx, gate, cfg.PrunerInterval, log)
	}

	stimulusRouter := &applicationrouter.Router{
		RouterAgentRef: cfg.RouterAgentRef,
		DefaultIntent:  cfg.DefaultIntent,
		MaxConcurrent:  cfg.MaxConcurrentExecutions,
		Agents:         agents,
		Registrations:  registrations,
		Workflows:      workflows,
		Executions:     executions,
		Events:         events,
		Loop:           loop,
		Observer:       observerManager,
	}
	drivenRouter := newDrivingRouter(stimulusRouter, workflows, log, drive)

	webhook := &stimulussource.Webhook{Router: drivenRouter, Log: log}
	manual := &stimulussource.Manual{Router: drivenRouter}

	srv := api.NewServer(api.Dependencies{
		Workflows:     workflows,
		Agents:        agents,
		Registrations: registrations,
		Executions:    executions,
		Gate:          deps.gate,
		Webhook:       webhook,
		Manual:        manual,
		WSHandler:     wsHandler,
		Auth:          auth,
	}, log, api.Config{
		RequireAuthForHumanGate: cfg.JWTSigningSecret != "",
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	if temporalWorker != nil {
		temporalWorker.Stop()
	}
	log.Info().Msg("server exited gracefully")
}

// expireOverdueHumanRequests ticks the Human Gate's timeout sweep at the
// same cadence as the Cortex pruning pass. Both drivers' AwaitSignal
// implementations already time out a parked execution on their own, but
// this sweep is what marks the HumanInputRequest row itself resolved —
// without it a TestRuntime-backed execution would resume on timeout while
// its request row stayed pending forever.
func expireOverdueHumanRequests(ctx context.Context, gate *humangate.Gate, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := gate.ExpireOverdue(ctx, now, nil); err != nil {
				log.Error().Err(err).Msg("failed to expire overdue human input requests")
			}
		}
	}
}

// maskDSN redacts a DSN's password component for safe logging — find the
// ":" that starts the password (skipping the scheme's "://") and the "@"
// that ends it.
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	start, end := -1, -1
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == ':' && start == -1 && i+1 < len(dsn) && dsn[i+1] != '/' {
			start = i + 1
		}
		if dsn[i] == '@' && start != -1 {
			end = i
			break
		}
	}
	if start != -1 && end != -1 && end > start {
		return dsn[:start] + "***" + dsn[end:]
	}
	return dsn
}
