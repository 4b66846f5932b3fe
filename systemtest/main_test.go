package systemtest

import (
	"context"
	"testing"
	"time"

	internalhttp "github.com/EternisAI/silo-sidecar/internal/api/http"
	"github.com/EternisAI/silo-sidecar/internal/db"
	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/EternisAI/silo-sidecar/internal/store"
	"github.com/EternisAI/silo-sidecar/internal/workspace"
	"github.com/EternisAI/silo-sidecar/systemtest/postgres"
	"github.com/EternisAI/silo-sidecar/systemtest/tests"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, s store.EnvironmentStore) *gin.Engine {
	t.Helper()

	keys := signature.NewFileKeyManager(t.TempDir(), true)
	keys.Bits = 1024

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	internalhttp.SetupRoute(engine, &internalhttp.Services{
		Workspaces:  workspace.NewManager(s, keys),
		Keys:        keys,
		AdminAPIKey: tests.APIKey,
	})
	return engine
}

func TestSystemIntegration(t *testing.T) {
	engine := newRouter(t, store.NewMemoryStore())

	t.Run("AdminAuth", func(t *testing.T) { tests.TestAdminAuth(t, engine) })
	t.Run("WorkspaceFlow", func(t *testing.T) { tests.TestWorkspaceFlow(t, engine, "ws1") })
	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, engine) })
	t.Run("MemoryStore", func(t *testing.T) { tests.TestEnvironmentStore(t, store.NewMemoryStore()) })
}

func TestPostgresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, url, err := postgres.StartPostgres(ctx)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = postgres.TerminatePostgres(context.Background(), container) })

	cfg := db.Config{Url: url, Schema: "sidecar"}
	require.NoError(t, db.RunMigrations(ctx, cfg))
	require.NoError(t, db.RunMigrations(ctx, cfg), "migrations are idempotent")

	pool, err := db.InitDB(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	pgStore := store.NewPostgresStore(pool)

	t.Run("PostgresStore", func(t *testing.T) { tests.TestEnvironmentStore(t, pgStore) })
	t.Run("WorkspaceFlow", func(t *testing.T) { tests.TestWorkspaceFlow(t, newRouter(t, pgStore), "ws-pg") })
}
