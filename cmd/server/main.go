package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/thaddeuskkr/whatsapp/internal/config"
	"github.com/thaddeuskkr/whatsapp/internal/httpapi"
	"github.com/thaddeuskkr/whatsapp/internal/kafka"
	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"github.com/thaddeuskkr/whatsapp/internal/reconciler"
	"github.com/thaddeuskkr/whatsapp/internal/repository/postgres"
	"github.com/thaddeuskkr/whatsapp/internal/server"
	"github.com/thaddeuskkr/whatsapp/internal/token"
	"github.com/thaddeuskkr/whatsapp/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	observability.InitLogger(cfg.ServiceName)
	log := observability.Log

	if cfg.TracingEnabled {
		tp, err := observability.InitTracer(cfg.ServiceName, cfg.JaegerURL)
		if err != nil {
			log.Fatal("failed to initialize tracer", zap.Error(err))
		}
		defer tp.Shutdown(context.Background())
	}

	ctx, cancel := setupSignalHandler(log)
	defer cancel()

	repo := initPostgres(ctx, cfg.DatabaseURL, log)
	defer repo.DB.Close()

	redisClient := initRedis(ctx, cfg.RedisAddr, log)
	tokens := token.NewRedisStore(redisClient, token.DefaultTTL)

	registry := websocket.NewRegistry(cfg.ServiceName)
	rec := reconciler.New(repo, registry, cfg.ServiceName,
		reconciler.DefaultIgnoreFrom, reconciler.DefaultIgnoreTypes)

	source := initSource(ctx, cfg, rec, log)
	defer source.Close()

	wsHandler := websocket.NewHandler(registry, tokens, cfg.AuthEnabled(), cfg.ServiceName)
	apiRouter := httpapi.NewRouter(
		wsHandler,
		httpapi.NewTokenHandler(tokens, cfg.AuthEnabled()),
		httpapi.NewSendHandler(source),
		httpapi.NewOTPHandler(source),
		httpapi.NewMessagesHandler(repo),
		httpapi.NewStatusHandler(source),
		cfg.AuthTokens,
		cfg.ServiceName,
	)

	obsSrv := initObservabilityServer(cfg, repo.DB, redisClient)
	mainSrv := server.New(cfg.HTTPAddr, apiRouter)

	startServers(obsSrv, mainSrv, log)

	<-ctx.Done()
	performGracefulShutdown(obsSrv, mainSrv, registry, log)
}

func setupSignalHandler(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
		cancel()
	}()
	return ctx, cancel
}

func initPostgres(ctx context.Context, dsn string, log *zap.Logger) *postgres.Repository {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	repo := postgres.New(db)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}
	return repo
}

func initRedis(ctx context.Context, addr string, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	return client
}

func initSource(ctx context.Context, cfg *config.Config, rec *reconciler.Reconciler, log *zap.Logger) *kafka.Source {
	source, err := kafka.NewSource(cfg.KafkaBrokers, cfg.EventsTopic, cfg.CommandsTopic, cfg.ConsumerGroup)
	if err != nil {
		log.Fatal("failed to create event source", zap.Error(err))
	}
	source.Subscribe(rec.Handlers())
	source.Start(ctx)
	return source
}

func initObservabilityServer(cfg *config.Config, db *sql.DB, redisClient *redis.Client) *http.Server {
	mux := chi.NewRouter()
	mux.Use(observability.MetricsMiddleware(cfg.ServiceName))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/health/live", observability.HealthLiveHandler)
	mux.Get("/health/ready", observability.HealthReadyHandler(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	}))
	return &http.Server{Addr: cfg.ObsHTTPAddr, Handler: mux}
}

func startServers(obsSrv *http.Server, mainSrv *server.Server, log *zap.Logger) {
	go func() {
		log.Info("starting observability server", zap.String("addr", obsSrv.Addr))
		if err := obsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("observability server error", zap.Error(err))
		}
	}()
	go func() {
		if err := mainSrv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()
}

func performGracefulShutdown(obs *http.Server, main *server.Server, reg *websocket.Registry, log *zap.Logger) {
	log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := main.Shutdown(ctx); err != nil {
		log.Error("error during main server shutdown", zap.Error(err))
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error("error during observability server shutdown", zap.Error(err))
	}
	reg.CloseAll()
	log.Info("shutdown complete, exiting")
}
