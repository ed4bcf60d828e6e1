package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"cdigit/internal/audit"
	"cdigit/internal/backendsync"
	synchandler "cdigit/internal/backendsync/handler"
	"cdigit/internal/events"
	jwttoken "cdigit/internal/jwt_token"
	"cdigit/internal/platform/config"
	"cdigit/internal/platform/httpserver"
	"cdigit/internal/platform/metrics"
	authmw "cdigit/internal/platform/middleware"
	"cdigit/internal/policy"
	"cdigit/internal/signature"
	"cdigit/internal/storage"
	httptransport "cdigit/internal/transport/http"
	"cdigit/internal/workflow"
	"cdigit/internal/workflow/store"
	"cdigit/pkg/platform/circuit"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the approval API",
	Action: func(cCtx *cli.Context) error {
		cfg, err := loadConfig(cCtx)
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

// serve wires the engine, runs the HTTP server until ctx ends, then drains
// in dependency order: HTTP first, then the outbox and event bus that
// handlers feed, then the write-behind writer everything persists through.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	pol := policy.Default()
	if cfg.PolicyFile != "" {
		loaded, err := policy.LoadFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		pol = loaded
		log.InfoContext(ctx, "loaded policy", "path", cfg.PolicyFile)
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Close(); err != nil {
			log.Error("failed to close store backend", "error", err)
		}
	}()
	wb := storage.NewWriteBehind(be.kv,
		storage.WithWriteBehindLogger(log),
		storage.WithWriteRetry(cfg.Store.WriteRetries, cfg.Store.WriteBackoff))

	trail := audit.NewTrail(cfg.Audit.Capacity,
		audit.WithLogger(log),
		audit.WithMetrics(m),
		audit.WithStore(wb))
	if err := trail.Load(ctx); err != nil {
		return fmt.Errorf("load audit logs: %w", err)
	}
	workflows := store.New(store.WithPersistence(wb), store.WithLogger(log))
	if err := workflows.Load(ctx); err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}
	log.InfoContext(ctx, "restored state", "workflows", workflows.Count())

	alg, err := signature.ParseAlgorithm(cfg.Signature.Algorithm)
	if err != nil {
		return err
	}
	engine := signature.New(
		signature.WithLogger(log),
		signature.WithMetrics(m),
		signature.WithAuditor(trail),
		signature.WithAlgorithm(alg))

	bus := events.NewBus(events.WithBusLogger(log))
	bus.SubscribeAll(func(ctx context.Context, e events.Event) error {
		log.InfoContext(ctx, "workflow event",
			"event_type", e.Type,
			"voucher_id", e.VoucherID,
			"status", e.Status,
			"actor_id", e.ActorID,
		)
		return nil
	})
	var kafka *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic,
			events.WithKafkaLogger(log),
			events.WithKafkaMetrics(m))
		if err != nil {
			return fmt.Errorf("create kafka publisher: %w", err)
		}
		if err := kafka.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			log.WarnContext(ctx, "could not ensure kafka topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		bus.SubscribeAll(kafka.Publish)
	}

	svcOpts := []workflow.Option{
		workflow.WithLogger(log),
		workflow.WithMetrics(m),
		workflow.WithAuditor(trail),
		workflow.WithEventPublisher(bus),
	}
	var outbox *backendsync.Outbox
	var syncAdmin synchandler.Outbox
	if cfg.Sync.BackendURL != "" {
		client := backendsync.NewHTTPClient(cfg.Sync.BackendURL, backendsync.WithBearerToken(cfg.Sync.Token))
		outbox, err = backendsync.NewOutbox(client,
			backendsync.WithLogger(log),
			backendsync.WithMetrics(m),
			backendsync.WithQueueSize(cfg.Sync.QueueSize),
			backendsync.WithRetry(cfg.Sync.MaxAttempts, cfg.Sync.InitialBackoff, cfg.Sync.MaxBackoff),
			backendsync.WithAttemptTimeout(cfg.Sync.AttemptTimeout),
			backendsync.WithMaxDeadLetters(cfg.Sync.MaxDeadLetters),
			backendsync.WithStore(wb),
			backendsync.WithBreaker(circuit.New("backend-sync",
				circuit.WithFailureThreshold(cfg.Sync.BreakerFailures),
				circuit.WithCooldown(cfg.Sync.BreakerCooldown))))
		if err != nil {
			return fmt.Errorf("create backend outbox: %w", err)
		}
		if err := outbox.Load(ctx); err != nil {
			return fmt.Errorf("restore backend outbox: %w", err)
		}
		svcOpts = append(svcOpts, workflow.WithNotifier(outbox))
		syncAdmin = outbox
		log.InfoContext(ctx, "backend sync enabled", "backend_url", cfg.Sync.BackendURL)
	}

	svc, err := workflow.New(workflows, pol, svcOpts...)
	if err != nil {
		return err
	}

	jwt := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	guard := authmw.NewGuard(jwttoken.NewJWTServiceAdapter(jwt), pol,
		authmw.WithLogger(log),
		authmw.WithAuditor(trail),
		authmw.WithMetrics(m))

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:     log,
		Guard:      guard,
		Gatherer:   reg,
		Health:     be.health,
		Workflows:  svc,
		Signatures: engine,
		Audit:      trail,
		Sync:       syncAdmin,
		RateLimit:  newRateLimit(ctx, cfg, be, log, m),
	})
	srv := httpserver.New(cfg.Server, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting cdigit", "addr", cfg.Server.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case runErr = <-errCh:
		log.Error("server error", "error", runErr)
	}

	router.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if outbox != nil {
		if err := outbox.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain backend outbox: %w", err))
		}
		stats := outbox.Stats()
		log.Info("backend outbox drained", "delivered", stats.Delivered, "dead_letters", stats.DeadLetters)
	}
	bus.Close()
	if kafka != nil {
		if err := kafka.Flush(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("flush kafka: %w", err))
		}
		kafka.Close()
	}
	if err := wb.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("flush store writes: %w", err))
	}
	log.Info("shutdown complete", "store_writes", wb.Written(), "store_write_failures", wb.Failed())

	return errors.Join(append([]error{runErr}, errs...)...)
}
