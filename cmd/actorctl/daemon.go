package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/actorforge/internal/activity"
	"github.com/oriys/actorforge/internal/config"
	"github.com/oriys/actorforge/internal/domain"
	"github.com/oriys/actorforge/internal/idempotency"
	"github.com/oriys/actorforge/internal/jobtracker"
	"github.com/oriys/actorforge/internal/logging"
	"github.com/oriys/actorforge/internal/runtime"
	"github.com/oriys/actorforge/internal/telemetry"
	"github.com/oriys/actorforge/internal/worker"
)

// loadConfig assembles a Config the way the teacher's daemon command
// does: compiled-in defaults, an optional file overlay, then
// environment overrides. Flags the caller explicitly set are applied
// afterwards by daemonCmd, not here.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func daemonCmd() *cobra.Command {
	var logLevel string
	var nodeID string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the actor runtime daemon",
		Long:  "Runs the activation pool and one worker per registered actor type until an interrupt is received",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}
			if cmd.Flags().Changed("node-id") {
				cfg.Daemon.NodeID = nodeID
			}

			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)
			logging.SetLevelFromString(cfg.Daemon.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := telemetry.Init(ctx, telemetry.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer telemetry.Shutdown(context.Background())

			if cfg.Observability.Metrics.Enabled {
				telemetry.InitMetrics(cfg.Observability.Metrics.Namespace)
			}

			return runDaemon(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	cmd.Flags().StringVar(&nodeID, "node-id", "", "Node identifier override")

	return cmd
}

// runDaemon wires the configured adapters into one Runtime and one
// Worker per built-in actor type, then blocks until ctx is cancelled,
// draining in-flight work cooperatively before returning.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	ad, err := buildAdapters(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build adapters: %w", err)
	}

	rt := runtime.New(ad.locks, ad.states, ad.journals, runtime.Config{
		LeaseTTL:            cfg.Adapters.Lock.LeaseTTL,
		MaxActivePerType:    cfg.Runtime.MaxActivePerType,
		IdleTTL:             cfg.Runtime.IdleTTL,
		CleanupInterval:     cfg.Runtime.CleanupInterval,
		HealthCheckInterval: cfg.Runtime.HealthCheckInterval,
	})

	tracker := jobtracker.New(30 * time.Minute)
	executor := activity.NewExecutor(ad.activityRegistry, ad.blobs, ad.idem).WithTracker(tracker)
	defer executor.Close(context.Background())

	go runIdempotencyCleanup(ctx, ad.idem)

	behaviors := builtinBehaviors()
	factory := behaviorFactory(behaviors)

	workers := make([]*worker.Worker, 0, len(behaviors))
	for actorType := range behaviors {
		w := worker.New(worker.Config{
			ActorType:      actorType,
			PollInterval:   cfg.Worker.PollInterval,
			DequeueTimeout: cfg.Adapters.Queue.VisibilityTO,
			MessagePolicy:  policyFromConfig(cfg.Retry),
			ActivityPolicy: activityPolicyFromConfig(cfg.Retry),
			Adaptive:       cfg.Worker.Adaptive,
			MaxWorkers:     cfg.Worker.MaxWorkers,
		}, rt, factory, ad.queue, executor, ad.activityRegistry, ad.idem).WithNotifier(ad.notifier)
		workers = append(workers, w)
		go w.Run(ctx)
		logging.Op().Info("worker started", "actor_type", actorType)
	}

	logging.Op().Info("daemon started", "node_id", cfg.Daemon.NodeID)
	<-ctx.Done()
	logging.Op().Info("daemon shutting down")

	for _, w := range workers {
		w.Stop()
	}
	for _, w := range workers {
		w.Wait()
		w.WaitActivities()
	}
	if err := ad.notifier.Close(); err != nil {
		logging.Op().Warn("notifier close failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return rt.Shutdown(shutdownCtx)
}

// idempotencyCleanupInterval is how often runIdempotencyCleanup sweeps
// expired idempotency records -- frequent enough that a long-lived
// in-memory store doesn't grow unbounded between restarts, infrequent
// enough not to compete with request traffic for the store's lock.
const idempotencyCleanupInterval = 5 * time.Minute

// runIdempotencyCleanup periodically removes expired idempotency
// records, mirroring the teacher's checkpoint store's cleanupLoop.
// Redis-backed stores rely on Redis's own key TTL for the real work;
// Cleanup there is advisory bookkeeping only.
func runIdempotencyCleanup(ctx context.Context, store idempotency.Store) {
	ticker := time.NewTicker(idempotencyCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Cleanup(ctx, time.Now().UnixMilli())
			if err != nil {
				logging.Op().Warn("idempotency cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				logging.Op().Debug("idempotency cleanup", "removed", removed)
			}
		}
	}
}

// policyFromConfig turns the daemon's single configured retry schedule
// into a domain.RetryPolicy for message redelivery.
func policyFromConfig(rc config.RetryConfig) domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxRetries:        rc.MaxAttempts,
		InitialDelayMs:    rc.BaseBackoff.Milliseconds(),
		MaxDelayMs:        rc.MaxBackoff.Milliseconds(),
		BackoffMultiplier: 2.0,
	}
}

// activityPolicyFromConfig narrows the message policy's schedule to
// domain.RetryPolicyActivity's bound, since activity retries run
// synchronously in-process and should exhaust well before a message's
// own redelivery budget does.
func activityPolicyFromConfig(rc config.RetryConfig) domain.RetryPolicy {
	p := policyFromConfig(rc)
	if p.MaxRetries > domain.RetryPolicyActivity.MaxRetries {
		p.MaxRetries = domain.RetryPolicyActivity.MaxRetries
	}
	return p
}
