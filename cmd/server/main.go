package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presence/internal/audit"
	"presence/internal/face"
	"presence/internal/liveness"
	livestore "presence/internal/liveness/store"
	"presence/internal/liveness/workers/cleanup"
	"presence/internal/platform/config"
	"presence/internal/platform/database"
	"presence/internal/platform/health"
	"presence/internal/platform/logger"
	platformredis "presence/internal/platform/redis"
	"presence/internal/registry"
	refstore "presence/internal/registry/store"
	"presence/internal/spoof"
	"presence/internal/token"
	httptransport "presence/internal/transport/http"
	"presence/internal/verify"
	"presence/internal/verify/metrics"
	"presence/internal/verify/tracer"
	"presence/migrations"
)

const deviceTokenTTL = 24 * time.Hour

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Gate logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.FaceServiceURL == "" {
		log.Error("PRESENCE_FACE_SERVICE_URL is required")
		os.Exit(1)
	}

	log.Info("initializing presence gateway",
		"addr", cfg.Addr,
		"face_service", cfg.FaceServiceURL,
		"location_threshold_m", cfg.LocationThresholdM,
	)

	faceClient := face.NewHTTPClient(cfg.FaceServiceURL, cfg.FaceServiceTimeout)
	analyzer := face.NewBreakerAnalyzer(faceClient, log)

	healthHandler := health.New()
	healthHandler.RegisterCheck("face_service", faceClient.Health)

	// Reference store: Postgres with pgvector when configured, in-memory
	// otherwise. The in-memory store loses enrolments on restart.
	var refs refstore.Store
	if cfg.DatabaseURL != "" {
		pool, err := database.New(database.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close() //nolint:errcheck // shutting down anyway

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := migrations.Apply(migrateCtx, pool.DB()); err != nil {
			cancel()
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		cancel()

		refs = refstore.NewPostgres(pool.DB())
		healthHandler.RegisterCheck("database", pool.Health)
	} else {
		log.Warn("no database configured, enrolments will not survive restarts")
		refs = refstore.NewInMemoryStore()
	}

	livenessCfg := liveness.Config{
		EARThreshold:    cfg.EARThreshold,
		Timeout:         cfg.ChallengeTimeout,
		MinClosedFrames: cfg.MinClosedFrames,
	}

	// Session store: Redis when configured so multiple instances can share
	// blink challenges, in-memory otherwise.
	var sessions livestore.Store
	rdb, err := platformredis.New(cfg.RedisAddr)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close() //nolint:errcheck // shutting down anyway
		sessions = livestore.NewRedisStore(rdb.Client, livenessCfg)
		healthHandler.RegisterCheck("redis", rdb.Health)
	} else {
		sessions = livestore.NewInMemoryStore(livenessCfg)
	}

	var auditor audit.Publisher
	if cfg.KafkaBrokers != "" {
		kafkaPub, err := audit.NewKafkaPublisher(audit.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.AuditTopic,
		}, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		auditor = kafkaPub
	} else {
		log.Warn("no kafka brokers configured, audit events stay in memory")
		auditor = audit.NewMemoryPublisher()
	}
	defer auditor.Close() //nolint:errcheck // flushed on shutdown

	m := metrics.New()

	policy := verify.Policy{
		ReferenceLat:       cfg.ReferenceLat,
		ReferenceLon:       cfg.ReferenceLon,
		LocationThresholdM: cfg.LocationThresholdM,
		TextureBand: spoof.Band{
			Min: cfg.TextureMinVariance,
			Max: cfg.TextureMaxVariance,
		},
		BatchDropThreshold: cfg.BatchDropThreshold,
		MatchThreshold:     cfg.MatchThreshold,
	}

	pipeline, err := verify.New(policy, analyzer, refs, sessions,
		verify.WithLogger(log),
		verify.WithTracer(tracer.NewOTel()),
		verify.WithMetrics(m),
		verify.WithAuditPublisher(auditor),
	)
	if err != nil {
		log.Error("pipeline init failed", "error", err)
		os.Exit(1)
	}

	enrol, err := registry.New(analyzer, refs, registry.WithLogger(log))
	if err != nil {
		log.Error("registry init failed", "error", err)
		os.Exit(1)
	}

	sweeper, err := cleanup.New(sessions,
		cleanup.WithInterval(cfg.SessionSweepInterval),
		cleanup.WithIdleCutoff(cfg.SessionIdleCutoff),
		cleanup.WithLogger(log),
		cleanup.WithGauge(m.ActiveBlinkSessions),
	)
	if err != nil {
		log.Error("session sweeper init failed", "error", err)
		os.Exit(1)
	}

	if cfg.EnrollAPIKeyHash == "" {
		log.Warn("no operator API key hash configured, enrolment endpoints will reject every key")
	}

	tokens := token.NewService(cfg.JWTSigningKey, "presence", deviceTokenTTL)

	handler, err := httptransport.NewHandler(pipeline, enrol, sessions, log,
		httptransport.WithAuditPublisher(auditor),
		httptransport.WithMetrics(m),
	)
	if err != nil {
		log.Error("handler init failed", "error", err)
		os.Exit(1)
	}

	router := httptransport.NewRouter(handler, tokens, cfg.EnrollAPIKeyHash, healthHandler, log)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	go func() {
		if err := sweeper.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("session sweeper stopped", "error", err)
		}
	}()

	if rdb != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-workerCtx.Done():
					return
				case <-ticker.C:
					rdb.RecordPoolStats()
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
