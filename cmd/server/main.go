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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/config"
	"github.com/agenthands/keepsake/internal/core"
	"github.com/agenthands/keepsake/internal/graph"
	"github.com/agenthands/keepsake/internal/llm"
	"github.com/agenthands/keepsake/internal/logger"
	"github.com/agenthands/keepsake/internal/observability"
	"github.com/agenthands/keepsake/internal/server"
	"github.com/agenthands/keepsake/internal/store/memory"
	"github.com/agenthands/keepsake/internal/store/postgres"
	"github.com/agenthands/keepsake/internal/store/records"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.App.Env); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()
	lg := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitTracing(ctx, cfg.Telemetry, cfg.App.Env, lg)

	deps, closeStores, err := buildDeps(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("failed to build dependencies", zap.Error(err))
	}
	defer closeStores()

	engine := core.NewEngine(cfg, deps, lg)
	srv := server.NewServer(engine, cfg.Telemetry.ServiceName, lg)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           srv.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("starting server", zap.String("port", cfg.App.Port), zap.String("graph", string(deps.Graph.Kind)))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		lg.Warn("engine shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Warn("tracing shutdown", zap.Error(err))
	}
}

// buildDeps wires storage, providers and the graph. Without a database URL the
// process runs on the in-memory store. A graph that fails to connect is disabled.
func buildDeps(ctx context.Context, cfg *config.Config, lg *zap.Logger) (core.Deps, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var deps core.Deps
	if cfg.Postgres.URL != "" {
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
		if err != nil {
			return deps, closeAll, err
		}
		closers = append(closers, pool.Close)

		pg := postgres.New(pool, lg)
		if cfg.Postgres.Migrate {
			if err := pg.Migrate(ctx, cfg.Embedding.Dimensions); err != nil {
				closeAll()
				return deps, func() {}, err
			}
		}
		db, err := records.Open(cfg.Postgres.URL)
		if err != nil {
			closeAll()
			return deps, func() {}, err
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
		repo := records.NewRepo(db, lg)
		deps.Members, deps.Links, deps.Messages = repo, repo, repo
		deps.Chunks, deps.Memory = pg, pg
	} else {
		lg.Warn("DATABASE_URL not set, using in-memory store")
		st := memory.New()
		deps.Members, deps.Links, deps.Messages = st, st, st
		deps.Chunks, deps.Memory = st, st
	}

	streamer, err := llm.NewStreamer(ctx, cfg.LLM, lg)
	if err != nil {
		closeAll()
		return deps, func() {}, err
	}
	deps.LLM = streamer

	embedder, err := llm.NewEmbedder(ctx, cfg.Embedding)
	if err != nil {
		closeAll()
		return deps, func() {}, err
	}
	deps.Embedder = embedder
	if cfg.Redis.Addr != "" {
		cache, err := llm.NewRedisVectorCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		if err != nil {
			lg.Warn("embedding cache unavailable", zap.Error(err))
		} else {
			closers = append(closers, func() { _ = cache.Close() })
			deps.Embedder = llm.NewCachedEmbedder(embedder, cache, lg)
		}
	}

	sel, err := graph.Select(ctx, cfg.Graph, lg)
	if err != nil {
		lg.Warn("graph backend unavailable, continuing without graph", zap.Error(err))
		sel = graph.Selection{Kind: graph.KindDisabled}
	}
	deps.Graph = sel

	return deps, closeAll, nil
}
