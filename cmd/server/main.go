package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"escrow-sentinel/internal/alerting/engine"
	alertrepo "escrow-sentinel/internal/alerting/repository"
	"escrow-sentinel/internal/alerting/rules"
	"escrow-sentinel/internal/audit"
	"escrow-sentinel/internal/config"
	"escrow-sentinel/internal/httpapi"
	"escrow-sentinel/internal/platform/ratelimit"
	policyengine "escrow-sentinel/internal/policy/engine"
	sessionrepo "escrow-sentinel/internal/session/repository"
	"escrow-sentinel/internal/session/service"
	"escrow-sentinel/internal/sweep"
	"escrow-sentinel/internal/telemetry"
	telemetryotel "escrow-sentinel/internal/telemetry/otel"
	"escrow-sentinel/internal/telemetry/producer"
)

// limiterIdle is how long an IP's token bucket is kept after its last request.
const limiterIdle = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	sinks := []audit.Sink{
		audit.NewLogSink(log.Default()),
		telemetryotel.NewAuditSink(emitter),
	}
	kafkaProducer := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuditKafkaTopic)
	var kafkaSink *audit.AsyncSink
	if kafkaProducer != nil {
		kafkaSink = audit.NewAsyncSink(kafkaProducer, audit.DefaultAsyncQueue)
		sinks = append(sinks, kafkaSink)
		log.Printf("audit: shipping to kafka topic %s", cfg.AuditKafkaTopic)
	}
	auditLogger := audit.NewLogger(sinks...)

	sessions := service.NewManager(sessionrepo.NewMemoryRepository(), auditLogger, service.Options{
		AbsoluteTimeout: cfg.SessionAbsoluteTimeout,
		IdleTimeout:     cfg.SessionIdleTimeout,
		MaxPerSubject:   cfg.SessionMaxPerSubject,
	})

	alerts, err := newEngine(cfg, auditLogger, emitter)
	if err != nil {
		log.Fatalf("alerting: %v", err)
	}

	drift, err := policyengine.NewOPAEvaluatorFromFile(ctx, cfg.DriftPolicyFile)
	if err != nil {
		if cfg.Production() {
			log.Fatalf("drift policy: %v", err)
		}
		log.Printf("drift policy: %v; using built-in policy", err)
		if drift, err = policyengine.NewOPAEvaluator(ctx, ""); err != nil {
			log.Fatalf("drift policy: %v", err)
		}
	}
	if err := drift.HealthCheck(ctx); err != nil {
		log.Fatalf("drift policy: %v", err)
	}

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)

	detector := engine.NewDetector(alerts, engine.NewRuntimeProbe(cfg.MemorySoftLimitMB), config.Watch(config.EnvFile))
	scheduler, err := sweep.New(
		sweep.Task{Name: "session-expiry", Interval: cfg.SessionSweepInterval, Run: func(ctx context.Context) error {
			if n := sessions.Sweep(ctx); n > 0 {
				log.Printf("sweep: removed %d expired sessions", n)
			}
			return nil
		}},
		sweep.Task{Name: "anomaly-detection", Interval: cfg.AnomalySweepInterval, Run: func(ctx context.Context) error {
			_, err := detector.Run(ctx)
			return err
		}},
		sweep.Task{Name: "alert-retention", Interval: cfg.RetentionSweepInterval, Run: func(ctx context.Context) error {
			alerts.SweepRetention(ctx)
			return nil
		}},
		sweep.Task{Name: "rate-limit-prune", Interval: limiterIdle, Run: func(context.Context) error {
			limiter.Prune(limiterIdle)
			return nil
		}},
	)
	if err != nil {
		log.Fatalf("sweep: %v", err)
	}

	if cfg.IssuerToken == "" {
		log.Printf("http: ISSUER_TOKEN is unset; session creation and event ingestion will reject every caller")
	}
	router, err := httpapi.NewRouter(httpapi.Deps{
		Sessions:    sessions,
		Alerts:      alerts,
		Drift:       drift,
		Audit:       auditLogger,
		Emitter:     emitter,
		IssuerToken: cfg.IssuerToken,
		Limiter:     limiter,
		CookieName:  cfg.SessionCookieName,
		ServiceName: cfg.OTelServiceName,
	})
	if err != nil {
		log.Fatalf("http: %v", err)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}

	// Let in-flight async emits finish before the providers go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(shutdownCtx); err != nil {
			log.Printf("audit: kafka queue not drained: %v", err)
		}
	}
	if err := kafkaProducer.Close(); err != nil {
		log.Printf("kafka producer close: %v", err)
	}
	log.Println("server stopped")
}

func newEngine(cfg *config.Config, auditLogger audit.AuditLogger, emitter telemetry.EventEmitter) (*engine.Engine, error) {
	opts := engine.Options{
		WindowCapacity: cfg.EventWindowCapacity,
		Retention:      cfg.AlertRetention,
	}
	if cfg.AlertRulesFile != "" {
		loaded, err := rules.LoadFile(cfg.AlertRulesFile)
		if err != nil {
			return nil, err
		}
		opts.Rules = loaded
		log.Printf("alerting: loaded %d rules from %s", len(loaded), cfg.AlertRulesFile)
	}
	return engine.New(
		alertrepo.NewMemoryAlertRepository(cfg.AlertCapacity),
		alertrepo.NewMemoryMetricRepository(cfg.MetricCapacity),
		auditLogger,
		engine.NewLogNotifier(emitter),
		opts,
	)
}
