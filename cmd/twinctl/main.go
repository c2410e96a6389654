// Command twinctl runs the digital-twin control plane: it wires the Twin
// Store, Override Store/Resolver, Safety Rule Engine, State Calculator,
// Immediate/Drift Reconcilers, Maintenance Jobs, Infrastructure Health
// Gate, and the REST/real-time ports into one process from config.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentrygrid/twinctl/internal/api"
	"github.com/sentrygrid/twinctl/internal/calculate"
	"github.com/sentrygrid/twinctl/internal/config"
	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/health"
	"github.com/sentrygrid/twinctl/internal/logger"
	"github.com/sentrygrid/twinctl/internal/maintenance"
	"github.com/sentrygrid/twinctl/internal/override"
	"github.com/sentrygrid/twinctl/internal/realtime"
	"github.com/sentrygrid/twinctl/internal/reconcile"
	"github.com/sentrygrid/twinctl/internal/safety"
	"github.com/sentrygrid/twinctl/internal/systemreg"
	"github.com/sentrygrid/twinctl/internal/telemetry"
	"github.com/sentrygrid/twinctl/internal/twin"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "twinctl:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.ComponentLogger(logger.NewSimpleLoggerAt(cfg.Logging.Level))
	bus := eventbus.New()
	gate := health.New(cfg.Health.FailureThreshold, cfg.Health.RecoveryThreshold, bus, log)

	store, err := buildStore(cfg, gate, log)
	if err != nil {
		return fmt.Errorf("building twin store: %w", err)
	}
	overrides, err := buildOverrideStore(cfg, bus, gate, log)
	if err != nil {
		return fmt.Errorf("building override store: %w", err)
	}
	systems := systemreg.NewMemoryRegistry()

	rules, relatedPatterns, err := safety.LoadRegistry(cfg.Rules.RegistryPath)
	if err != nil {
		log.Warn("rule registry loaded with degraded configuration", map[string]interface{}{"error": err.Error()})
	}
	engine := safety.NewEngine(rules, cfg.Rules.EvaluationTimeout(), log)

	related := make([]calculate.RelatedPattern, len(relatedPatterns))
	for i, p := range relatedPatterns {
		related[i] = calculate.RelatedPattern{Pattern: p}
	}

	resolver := override.NewResolver(overrides)
	calc := calculate.New(store, resolver, systems, engine, bus, related, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	immediate := reconcile.NewImmediate(store, gate, bus, cfg.Reconciliation.Debounce(), log)
	immediate.Start(ctx)

	drift := reconcile.NewDrift(store, gate, bus, cfg.Reconciliation.DriftPeriod(), log)
	drift.Start(ctx)

	jobs := maintenance.New(store, cfg.Maintenance.StaleThresholdDays, log)
	if err := jobs.Schedule(toSixField(cfg.Maintenance.StaleDetectionCron), toSixField(cfg.Maintenance.OrphanCleanupCron)); err != nil {
		return fmt.Errorf("scheduling maintenance jobs: %w", err)
	}
	jobs.Start()
	defer jobs.Stop()

	ws := realtime.NewWebSocket(log)
	realtime.NewBridge(ws).Attach(bus)

	if cfg.Telemetry.Enabled {
		provider, err := telemetry.New("twinctl")
		if err != nil {
			return fmt.Errorf("starting telemetry: %w", err)
		}
		defer provider.Shutdown(context.Background())
	}

	handlers := &api.Handlers{Store: store, Overrides: overrides, Systems: systems, Calculator: calc}
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(handlers))
	mux.Handle("/realtime", ws.Handler())

	srv := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("twinctl control plane starting", map[string]interface{}{"addr": srv.Addr})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func buildStore(cfg *config.Config, gate *health.Gate, log logger.ComponentLogger) (twin.Store, error) {
	if cfg.Redis.URL == "" {
		return twin.NewMemoryStore(log), nil
	}
	return twin.NewRedisStore(cfg.Redis.URL, cfg.Redis.Namespace, gate, log)
}

func buildOverrideStore(cfg *config.Config, bus *eventbus.Bus, gate *health.Gate, log logger.ComponentLogger) (override.Store, error) {
	if cfg.Redis.URL == "" {
		return override.NewMemoryStore(bus), nil
	}
	return override.NewRedisStore(cfg.Redis.URL, cfg.Redis.Namespace, bus, gate, log)
}

// toSixField upgrades a 5-field cron expression to the 6-field
// (seconds-first) form robfig/cron/v3's WithSeconds parser expects; the
// defaults in config.Default are already 6-field, this only helps
// operators who set a 5-field override via environment.
func toSixField(expr string) string {
	fields := 0
	inField := false
	for _, r := range expr {
		if r == ' ' {
			inField = false
			continue
		}
		if !inField {
			fields++
			inField = true
		}
	}
	if fields == 5 {
		return "0 " + expr
	}
	return expr
}
