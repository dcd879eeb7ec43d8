package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-session-worker/internal/config"
	"github.com/openclaw/match-session-worker/internal/database"
	"github.com/openclaw/match-session-worker/internal/geo"
	"github.com/openclaw/match-session-worker/internal/handler"
	"github.com/openclaw/match-session-worker/internal/jobs"
	"github.com/openclaw/match-session-worker/internal/middleware"
	"github.com/openclaw/match-session-worker/internal/model"
	"github.com/openclaw/match-session-worker/internal/queue"
	"github.com/openclaw/match-session-worker/internal/redis"
	"github.com/openclaw/match-session-worker/internal/repository"
	"github.com/openclaw/match-session-worker/internal/repository/memstore"
	"github.com/openclaw/match-session-worker/internal/repository/mongostore"
	"github.com/openclaw/match-session-worker/internal/service"
)

func main() {
	os.Exit(run())
}

// run wires the worker and blocks until a shutdown signal or a fatal consumer
// error. It returns the process exit code.
func run() int {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogFormat(cfg.LogFormat)
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	store, storeChecks, closeStore := openStore(cfg)

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	log.Info().Msg("redis connected")

	geoClient := geo.NewClient(cfg.GeoAPIURL, cfg.GeoAPIKey, cfg.GeoTimeout())

	sessionService := service.NewSessionService(store.ChatSessions)
	presenceService := service.NewPresenceService(store.UserSessions, store.SiteUsage, store.Locations, geoClient)
	router := handler.NewRouter(sessionService, presenceService)

	consumer, err := queue.Dial(cfg.RabbitMQURL, router, queue.Options{
		Prefetch: cfg.ConsumerPrefetch,
		PoolSize: cfg.WorkerPoolSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	log.Info().Msg("rabbitmq connected")

	consumeCtx, stopConsuming := context.WithCancel(context.Background())
	defer stopConsuming()
	if err := consumer.Start(consumeCtx, model.Topics); err != nil {
		log.Fatal().Err(err).Msg("failed to start consumer")
	}

	cleanupJob := jobs.NewCleanupJob(redisClient, cfg.SessionPrefix, cfg.SweepTimeout())
	if err := cleanupJob.Start(cfg.CleanupCronSchedule); err != nil {
		log.Fatal().Err(err).Msg("failed to start cleanup job")
	}

	checks := append([]handler.Check{{
		Name:  "redis",
		Probe: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}}, storeChecks...)
	opsHandler := handler.NewOpsHandler(cleanupJob, checks...)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)

	r.Mount("/", opsHandler.Routes())

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting ops server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down worker")
	case err := <-consumer.Errors():
		log.Error().Err(err).Msg("consumer failed, shutting down")
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	if err := consumer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("consumer did not drain cleanly")
	}

	select {
	case <-cleanupJob.Stop().Done():
	case <-shutdownCtx.Done():
		log.Error().Msg("cleanup sweep still running at shutdown")
	}

	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close redis")
	}
	closeStore(shutdownCtx)

	log.Info().Int("exit_code", exitCode).Msg("worker stopped")
	return exitCode
}

// openStore connects the durable store selected by STORE_DRIVER. It returns
// readiness probes for the connection and a function that closes it.
func openStore(cfg *config.Config) (*repository.Store, []handler.Check, func(context.Context)) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		if err := db.Migrate(ctx, repository.Schema); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
		log.Info().Msg("database connected")

		checks := []handler.Check{{Name: "postgres", Probe: db.Ping}}
		return repository.NewPostgresStore(db.DB), checks, func(context.Context) {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close database")
			}
		}

	case config.StoreDriverMemory:
		return memstore.New().Store(), nil, func(context.Context) {}

	default:
		ctx, cancel := context.WithTimeout(context.Background(), config.MongoConnTimeout)
		defer cancel()

		mdb, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mongodb")
		}
		if err := mongostore.EnsureIndexes(ctx, mdb.DB); err != nil {
			log.Fatal().Err(err).Msg("failed to create indexes")
		}
		log.Info().Str("database", cfg.MongoDatabase).Msg("mongodb connected")

		checks := []handler.Check{{Name: "mongodb", Probe: mdb.Ping}}
		return mongostore.New(mdb.DB), checks, func(ctx context.Context) {
			if err := mdb.Close(ctx); err != nil {
				log.Error().Err(err).Msg("failed to close mongodb")
			}
		}
	}
}

func setLogFormat(format string) {
	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
