// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/audit"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/gdpr/connected"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/gdpr/tokens"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/config"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/database"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/health"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/kafka"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/kafka/producer"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/logger"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/metrics"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/middleware"
	platformredis "github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/redis"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/service"
	profilestore "github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/store"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/seeder"
	registrystore "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/store"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/tracer"
	httptransport "github.com/City-of-Helsinki/open-city-profile-sub000/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing open-city-profile",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	m := metrics.New()

	// Storage. Without DATABASE_URL everything runs in memory, which is
	// what the development and e2e setups use.
	var (
		pool    *database.Pool
		err     error
		ctx     = context.Background()
		healthH = health.New(cfg.Environment)
	)
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err = database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}

	var (
		profiles    profilestore.ProfileStore
		claims      profilestore.ClaimTokenStore
		readTokens  profilestore.ReadTokenStore
		services    registrystore.ServiceStore
		connections registrystore.ConnectionStore
	)
	if pool != nil {
		pg := profilestore.NewPostgres(pool.DB())
		profiles, claims, readTokens = pg, pg, pg
		reg := registrystore.NewPostgres(pool.DB())
		services, connections = reg, reg
		healthH.RegisterCheck("database", pool.Health)
		defer pool.Close()
	} else {
		mem := profilestore.NewInMemory()
		profiles, claims, readTokens = mem, mem, mem
		reg := registrystore.NewInMemory()
		services, connections = reg, reg
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	// Temporary read access tokens live in Redis when available so they
	// expire on their own.
	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			log.Error("redis init failed", "error", err)
			os.Exit(1)
		}
		readTokens = profilestore.NewRedisReadTokens(redisClient)
		healthH.RegisterCheck("redis", redisClient.Health)
		defer redisClient.Close()
	}

	flusher, kafkaProducer := buildAuditPipeline(cfg, pool, profiles, m, log, healthH)
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
	}

	exchanger := tokens.NewExchanger(
		cfg.TokenExchange.IssuerURL,
		cfg.TokenExchange.APITokensPath,
		cfg.TokenExchange.ClientID,
		cfg.TokenExchange.ClientSecret,
		cfg.TokenExchange.Timeout,
	)
	orchestrator := connected.New(exchanger, connections, tracer.NewOTel(), m, log)

	serviceOpts := []service.Option{}
	if cfg.Keycloak.BaseURL != "" {
		admin := tokens.NewAdminClient(tokens.AdminConfig{
			BaseURL:      cfg.Keycloak.BaseURL,
			Realm:        cfg.Keycloak.Realm,
			ClientID:     cfg.Keycloak.ClientID,
			ClientSecret: cfg.Keycloak.ClientSecret,
		})
		serviceOpts = append(serviceOpts, service.WithAccountDeleter(admin))
	}
	profileService := service.New(profiles, claims, readTokens, services, connections, orchestrator, m, log, serviceOpts...)

	if cfg.SeedDemoData {
		if err := seeder.New(profiles, services, connections, log).SeedAll(ctx); err != nil {
			log.Error("demo data seeding failed", "error", err)
			os.Exit(1)
		}
	}

	handler := httptransport.New(profileService, log, m)
	router := httptransport.NewRouter(handler, healthH, httptransport.RouterConfig{
		Validator:         middleware.NewHMACValidator(cfg.TokenSigningKey),
		Services:          services,
		Flusher:           flusher,
		AuditEnabled:      cfg.Audit.Enabled,
		TrustForwardedFor: cfg.Audit.UseXForwardedFor,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// buildAuditPipeline assembles the enabled audit sinks. Each sink is
// independent; a disabled or failed one never blocks the others.
func buildAuditPipeline(
	cfg config.Config,
	pool *database.Pool,
	profiles profilestore.ProfileStore,
	m *metrics.Metrics,
	log *slog.Logger,
	healthH *health.Handler,
) (*audit.Flusher, *producer.Producer) {
	var sinks []audit.Sink
	sinks = append(sinks, audit.NewLogSink(log))

	if cfg.Audit.LogToDB {
		if pool != nil {
			sinks = append(sinks, audit.NewPostgresSink(pool.DB()))
		} else {
			log.Warn("db audit sink enabled without a database, skipping")
		}
	}

	var kafkaProducer *producer.Producer
	if cfg.Audit.LogToKafka {
		p, err := producer.New(producer.Config{Brokers: cfg.Kafka.Brokers}, log)
		if err != nil {
			log.Warn("kafka audit sink unavailable", "error", err)
		} else {
			kafkaProducer = p
			sinks = append(sinks, audit.NewKafkaSink(p, cfg.Kafka.AuditTopic))
			healthH.RegisterCheck("kafka", kafka.NewHealthChecker(cfg.Kafka.Brokers).Check)
		}
	}

	flusher := audit.NewFlusher(sinks, profiles, cfg.Audit.SystemClients, cfg.Audit.LogUsername, m, log)
	return flusher, kafkaProducer
}
