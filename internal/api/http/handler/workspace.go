package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/EternisAI/silo-sidecar/internal/api/http/dto"
	"github.com/EternisAI/silo-sidecar/internal/environment"
	"github.com/EternisAI/silo-sidecar/internal/jwtproxy"
	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/EternisAI/silo-sidecar/internal/workspace"
	"github.com/gin-gonic/gin"
)

type WorkspaceHandler struct {
	manager *workspace.Manager
}

func NewWorkspaceHandler(manager *workspace.Manager) *WorkspaceHandler {
	return &WorkspaceHandler{manager: manager}
}

func (h *WorkspaceHandler) CreateWorkspace(ctx *gin.Context) {
	var req dto.CreateWorkspaceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.manager.Create(ctx.Request.Context(), environment.RuntimeIdentity{
		WorkspaceID: req.WorkspaceID,
		EnvName:     req.EnvName,
		OwnerID:     req.OwnerID,
	})
	if err != nil {
		writeError(ctx, "Failed to create workspace", err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.WorkspaceResponse{
		WorkspaceID: record.Identity.WorkspaceID,
		EnvName:     record.Identity.EnvName,
		OwnerID:     record.Identity.OwnerID,
		UpdatedAt:   record.UpdatedAt,
	})
}

func (h *WorkspaceHandler) ListWorkspaces(ctx *gin.Context) {
	ids, err := h.manager.List(ctx.Request.Context())
	if err != nil {
		writeError(ctx, "Failed to list workspaces", err)
		return
	}

	ctx.JSON(http.StatusOK, dto.ListWorkspacesResponse{
		Workspaces: ids,
		Count:      len(ids),
	})
}

func (h *WorkspaceHandler) GetEnvironment(ctx *gin.Context) {
	workspaceID := ctx.Param("id")

	record, err := h.manager.Environment(ctx.Request.Context(), workspaceID)
	if err != nil {
		writeError(ctx, "Failed to load workspace", err)
		return
	}

	ctx.JSON(http.StatusOK, dto.EnvironmentResponse{
		WorkspaceID: workspaceID,
		Environment: record.Environment,
	})
}

func (h *WorkspaceHandler) DeleteWorkspace(ctx *gin.Context) {
	if err := h.manager.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		writeError(ctx, "Failed to delete workspace", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Workspace deleted"})
}

func (h *WorkspaceHandler) ExposeServer(ctx *gin.Context) {
	workspaceID := ctx.Param("id")

	var req dto.ExposeServerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	port, err := h.manager.ExposeServer(ctx.Request.Context(), workspaceID, workspace.ServerRequest{
		Service:  req.Service,
		Port:     req.Port,
		Protocol: req.Protocol,
	})
	if err != nil {
		writeError(ctx, "Failed to expose server", err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.ExposeServerResponse{
		WorkspaceID: workspaceID,
		Port:        port,
	})
}

func (h *WorkspaceHandler) GetProxyConfig(ctx *gin.Context) {
	config, err := h.manager.ProxyConfig(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		writeError(ctx, "Failed to read jwtproxy config", err)
		return
	}
	ctx.Data(http.StatusOK, "text/yaml; charset=utf-8", []byte(config))
}

func (h *WorkspaceHandler) IssueToken(ctx *gin.Context) {
	var req dto.IssueTokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	issuedAt := time.Now()
	token, err := h.manager.IssueMachineToken(ctx.Request.Context(), ctx.Param("id"), ttl)
	if err != nil {
		writeError(ctx, "Failed to issue token", err)
		return
	}

	ctx.JSON(http.StatusOK, dto.IssueTokenResponse{
		Token:     token,
		ExpiresAt: issuedAt.Add(ttl).UTC(),
	})
}

func writeError(ctx *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(msg, "error", err, "path", ctx.Request.URL.Path)
		ctx.JSON(status, gin.H{"error": msg})
		return
	}
	slog.Warn(msg, "error", err, "path", ctx.Request.URL.Path)
	ctx.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, jwtproxy.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, workspace.ErrWorkspaceNotFound), errors.Is(err, workspace.ErrNotProvisioned):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrWorkspaceExists):
		return http.StatusConflict
	case errors.Is(err, jwtproxy.ErrKeyPairMissing), errors.Is(err, signature.ErrKeyPairNotFound):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}
