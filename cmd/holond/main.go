// Command holond is the process entrypoint: it wires the Event Bus, State
// Manager, Queue Manager, Policy, Workflow Orchestrator, and Coordinator
// into one holon.Application and runs until signalled.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
	"github.com/holoncore/travel-orchestrator/internal/coordinator"
	"github.com/holoncore/travel-orchestrator/internal/eventbus"
	"github.com/holoncore/travel-orchestrator/internal/policy"
	"github.com/holoncore/travel-orchestrator/internal/queue"
	"github.com/holoncore/travel-orchestrator/internal/statestore"
	"github.com/holoncore/travel-orchestrator/internal/workflow"
	"go.uber.org/zap"
)

// shutdownGracePeriod bounds how long app.Stop waits for in-flight work
// across every module before the process exits regardless.
const shutdownGracePeriod = 30 * time.Second

// builtinQueues lists the queue names from §6, each seeded with the
// package's default config. Per-queue tuning from the §4.3 parameter
// tables is not specified literally in the contract, so built-ins start
// from DefaultQueueConfig and are expected to be overridden per-deployment
// through the config file.
var builtinQueues = []string{
	"search-requests", "candidate-generation", "validation-tasks",
	"ranking-tasks", "selection-tasks", "enrichment-tasks",
	"output-generation", "booking-requests", "notifications",
	"telemetry-events",
}

// builtinNamespaces lists the namespace names from §6, each seeded with
// the package's default config for the same reason builtinQueues is.
var builtinNamespaces = []string{
	"user-sessions", "search-cache", "booking-data", "candidate-results",
	"user-preferences", "system-config", "analytics-data", "temporary-data",
}

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := holon.NewZapLogger(zapLogger)

	cfg, err := holon.LoadConfigFile(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	app := holon.NewApplication(cfg, logger, holon.RealClock)

	namespaces := make(map[string]statestore.NamespaceConfig, len(builtinNamespaces))
	for _, ns := range builtinNamespaces {
		namespaces[ns] = statestore.DefaultNamespaceConfig()
	}

	queueSpecs := make([]queue.QueueSpec, 0, len(builtinQueues))
	for _, name := range builtinQueues {
		queueSpecs = append(queueSpecs, queue.QueueSpec{Name: name, Config: queue.DefaultQueueConfig()})
	}

	modules := []holon.Module{
		eventbus.NewModule(eventbus.DefaultConfig()),
		statestore.NewModule(namespaces),
		queue.NewModule(queueSpecs),
		policy.NewModule(policy.DefaultConfig()),
		workflow.NewModule(),
		coordinator.NewModule(coordinator.DefaultConfig()),
	}
	for _, m := range modules {
		if err := app.RegisterModule(m); err != nil {
			logger.Error("failed to register module", "module", m.Name(), "error", err.Error())
			os.Exit(1)
		}
	}

	if err := app.Init(); err != nil {
		logger.Error("failed to initialize application", "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		logger.Error("failed to start application", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("holond started")

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err.Error())
		os.Exit(1)
	}
}
