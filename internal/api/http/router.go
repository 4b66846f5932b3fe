package http

import (
	"github.com/EternisAI/silo-sidecar/internal/api/http/handler"
	"github.com/EternisAI/silo-sidecar/internal/api/http/middleware"
	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/EternisAI/silo-sidecar/internal/workspace"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Workspaces  *workspace.Manager
	Keys        signature.KeyManager
	AdminAPIKey string
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler(srvs.Keys)
	engine.GET("/health", healthHandler.Check)

	if srvs.Workspaces == nil {
		return
	}

	workspaceHandler := handler.NewWorkspaceHandler(srvs.Workspaces)
	admin := engine.Group("/api/v1", middleware.APIKeyAuth(srvs.AdminAPIKey))
	{
		admin.GET("/workspaces", workspaceHandler.ListWorkspaces)
		admin.POST("/workspaces", workspaceHandler.CreateWorkspace)
		admin.DELETE("/workspaces/:id", workspaceHandler.DeleteWorkspace)
		admin.GET("/workspaces/:id/environment", workspaceHandler.GetEnvironment)
		admin.POST("/workspaces/:id/servers", workspaceHandler.ExposeServer)
		admin.GET("/workspaces/:id/jwtproxy/config", workspaceHandler.GetProxyConfig)
		admin.POST("/workspaces/:id/token", workspaceHandler.IssueToken)
	}
}
