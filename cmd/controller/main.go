// Package main is the entry point for the contentplane controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"contentplane/internal/agent"
	"contentplane/internal/broadcast"
	"contentplane/internal/config"
	"contentplane/internal/controller"
	"contentplane/internal/engine"
	"contentplane/internal/governor"
	"contentplane/internal/ledger"
	"contentplane/internal/logger"
	"contentplane/internal/observability"
	"contentplane/internal/store"
	"contentplane/internal/store/memory"
	"contentplane/internal/store/postgres"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()
	ctx := context.Background()

	// Setup the store: PostgreSQL normally, in-memory in dev mode.
	var st store.Store
	if cfg.DevMode {
		log.Println("DEV_MODE: using in-memory store, state is not persisted")
		st = memory.New()
	} else {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer pg.Close()

		if *migrateFlag {
			log.Println("Running database migrations...")
			if err := postgres.Migrate(pg.DB()); err != nil {
				log.Fatalf("Migration failed: %v", err)
			}
			log.Println("Migrations completed successfully")
		}
		st = pg
	}

	// Tracing
	if cfg.OTELCollectorAddr != "" {
		shutdownTracer, err := observability.Init(ctx, "contentplane-controller", cfg.OTELCollectorAddr)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Printf("Failed to shutdown tracer: %v", err)
			}
		}()
	}

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Stage agent registry: the catalog order is the canonical full-pipeline
	// sequence.
	registry := agent.NewRegistry()
	for _, a := range []agent.Agent{
		agent.NewCompetitorDiscovery(cfg.AgentServiceURL),
		agent.NewTopicAnalysis(cfg.AgentServiceURL),
		agent.NewGeneration(cfg.AgentServiceURL),
		agent.NewComplianceCheck(cfg.AgentServiceURL),
		agent.NewPublish(cfg.AgentServiceURL),
	} {
		if err := registry.Register(agent.Definition{Agent: a}); err != nil {
			log.Fatalf("Failed to register stage %s: %v", a.Kind(), err)
		}
	}
	registry.DefaultRecipes()

	// Event fan-out: local hub always; a redis bridge when configured so
	// events reach subscribers on other replicas.
	hub := broadcast.NewHub(0)
	var broadcaster broadcast.Broadcaster = hub
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		bridge := broadcast.NewRedisBridge(redis.NewClient(redisOpts), hub)
		broadcaster = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil {
				log.Printf("Redis event bridge stopped: %v", err)
			}
		}()
	}

	gov := governor.New(cfg.VariantCap)
	led := ledger.New(st, st)
	eng := engine.New(st, registry, led, gov, broadcaster, engine.Config{
		RetryBackoffBase: cfg.RetryBackoffBase,
		CancelGrace:      cfg.CancelGrace,
	}, slogger)

	// Observable gauge: governor queue depth, read only when scraped.
	meter := otel.Meter("contentplane-controller")
	_, err = meter.Int64ObservableGauge("contentplane.governor.queue_depth",
		metric.WithDescription("Pipelines waiting for a tenant execution slot"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			obs.Observe(gov.QueueDepth())
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register queue depth metric: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(controller.Options{
		Addr:           addr,
		Store:          st,
		Engine:         eng,
		Events:         hub,
		AdminSecret:    cfg.AdminSecret,
		MetricsHandler: metricsHandler,
		Logger:         slogger,
	})

	go func() {
		log.Printf("contentplane controller starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := eng.Close(shutdownCtx); err != nil {
		log.Printf("Engine drain incomplete: %v", err)
	}
	log.Println("Server exited properly")
}
