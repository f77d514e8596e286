package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"courier.chat/relay/common/id"
	"courier.chat/relay/common/logger"
	"courier.chat/relay/common/otel"
	"courier.chat/relay/core/config"
	"courier.chat/relay/core/db"
	"courier.chat/relay/internal/blob"
	"courier.chat/relay/internal/cache"
	"courier.chat/relay/internal/chat"
	"courier.chat/relay/internal/http/middleware"
	httprouter "courier.chat/relay/internal/http/router"
	"courier.chat/relay/internal/provider"
	"courier.chat/relay/internal/queue"
	"courier.chat/relay/internal/ratelimit"
	"courier.chat/relay/internal/session"
	"courier.chat/relay/internal/store"
	"courier.chat/relay/internal/summary"
	"courier.chat/relay/internal/websearch"
	"courier.chat/relay/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "relay starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Queue.Stream)

	producer := queue.NewRedisProducer(redisClient, cfg.Queue.Stream, nil)
	defer producer.Close()

	stores := store.NewStores(database.Pool())

	var searcher websearch.Searcher
	if cfg.Search.Enabled() {
		searcher, err = websearch.New(websearch.Config{
			URL:        cfg.Search.URL,
			APIKey:     cfg.Search.APIKey,
			Collection: cfg.Search.Collection,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to initialize web search", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "web search enabled", "collection", cfg.Search.Collection)
	}

	var blobs blob.Store
	if cfg.Blob.Enabled() {
		blobs, err = blob.NewS3(ctx, blob.Config{
			Bucket:   cfg.Blob.Bucket,
			Region:   cfg.Blob.Region,
			Endpoint: cfg.Blob.Endpoint,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to initialize blob store", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "blob store enabled", "bucket", cfg.Blob.Bucket)
	}

	var summarizer summary.Summarizer
	if cfg.Summarizer.Enabled() {
		summarizer, err = summary.New(cfg.Summarizer)
		if err != nil {
			slog.ErrorContext(ctx, "failed to initialize summarizer", "error", err)
			os.Exit(1)
		}
	} else {
		slog.WarnContext(ctx, "summarizer disabled, manual compaction will fail")
	}

	registry := provider.NewRegistry(cfg.Providers, searcher)
	slog.InfoContext(ctx, "providers registered", "providers", registry.Names())

	sessions := session.NewStore(session.NewActor(redisClient), stores.Conversations())
	limiter := ratelimit.New(redisClient, cfg.Limits)
	convCache := cache.NewConversationCache(redisClient)
	persister := chat.NewPersister(database, convCache, producer)

	orchestrator := chat.NewOrchestrator(cfg, database, sessions, registry, limiter, convCache, blobs, persister)
	conversations := chat.NewConversationService(stores.Conversations(), stores.Messages(), convCache, sessions)
	compactor := worker.NewCompactor(stores.Conversations(), stores.Messages(), sessions, summarizer, summary.PolicyFromConfig(cfg.Compaction))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.Dependencies{
		Orchestrator:  orchestrator,
		Conversations: conversations,
		Sessions:      sessions,
		Compactor:     compactor,
		ConvStore:     stores.Conversations(),
		MsgStore:      stores.Messages(),
		AdminAPIKey:   cfg.AdminAPIKey,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streaming responses hold the connection for the whole turn.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, deps httprouter.Dependencies) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, deps)

	return router
}

const banner = `
██████╗ ███████╗██╗      █████╗ ██╗   ██╗    ███████╗███████╗██████╗ ██╗   ██╗███████╗██████╗
██╔══██╗██╔════╝██║     ██╔══██╗╚██╗ ██╔╝    ██╔════╝██╔════╝██╔══██╗██║   ██║██╔════╝██╔══██╗
██████╔╝█████╗  ██║     ███████║ ╚████╔╝     ███████╗█████╗  ██████╔╝██║   ██║█████╗  ██████╔╝
██╔══██╗██╔══╝  ██║     ██╔══██║  ╚██╔╝      ╚════██║██╔══╝  ██╔══██╗╚██╗ ██╔╝██╔══╝  ██╔══██╗
██║  ██║███████╗███████╗██║  ██║   ██║       ███████║███████╗██║  ██║ ╚████╔╝ ███████╗██║  ██║
╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝   ╚═╝       ╚══════╝╚══════╝╚═╝  ╚═╝  ╚═══╝  ╚══════╝╚═╝  ╚═╝
`
