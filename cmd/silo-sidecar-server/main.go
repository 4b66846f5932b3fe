package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	internalhttp "github.com/EternisAI/silo-sidecar/internal/api/http"
	"github.com/EternisAI/silo-sidecar/internal/db"
	grpcserver "github.com/EternisAI/silo-sidecar/internal/grpc/server"
	grpctls "github.com/EternisAI/silo-sidecar/internal/grpc/tls"
	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/EternisAI/silo-sidecar/internal/store"
	"github.com/EternisAI/silo-sidecar/internal/workspace"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Silo Sidecar Server", "version", AppVersion)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	envStore, pool, err := openStore(ctx)
	if err != nil {
		slog.Error("Failed to open environment store", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	keys := signature.NewFileKeyManager(config.Signature.KeyDir, config.Signature.Generate)
	keys.Bits = config.Signature.KeyBits
	if _, err := keys.GetKeyPair(); err != nil {
		slog.Warn("Signature key pair unavailable, sidecar provisioning will fail until it exists",
			"key_dir", config.Signature.KeyDir,
			"error", err)
	}

	grpcOpts, err := grpctls.ServerOptions(config.Grpc.TLS)
	if err != nil {
		slog.Error("Failed to load gRPC TLS credentials", "error", err)
		os.Exit(1)
	}
	grpcSrv := grpcserver.NewServer(config.Grpc.Port, keys, grpcOpts...)
	go grpcSrv.WatchKeys(ctx, config.Signature.KeyCheckInterval)

	services := &internalhttp.Services{
		Workspaces:  workspace.NewManager(envStore, keys),
		Keys:        keys,
		AdminAPIKey: config.Http.AdminAPIKey,
	}

	allowOrigins := config.Http.CORS.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  []string{"GET", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Http.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 2)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		if err := grpcSrv.Start(); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down servers...")
	stop()

	var wg sync.WaitGroup
	shutdownTimeout := 10 * time.Second

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := grpcSrv.StopWithTimeout(shutdownTimeout); err != nil {
			slog.Error("gRPC server shutdown error", "error", err)
		}
	}()

	wg.Wait()
	slog.Info("Shutdown complete")
}

func openStore(ctx context.Context) (store.EnvironmentStore, *pgxpool.Pool, error) {
	if config.Store.Driver != STORE_DRIVER_POSTGRES {
		slog.Info("Using in-memory environment store")
		return store.NewMemoryStore(), nil, nil
	}

	if err := db.RunMigrations(ctx, config.DB); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	pool, err := db.InitDB(ctx, config.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("Using PostgreSQL environment store", "schema", config.DB.Schema)
	return store.NewPostgresStore(pool), pool, nil
}
