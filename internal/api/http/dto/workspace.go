package dto

import (
	"time"

	"github.com/EternisAI/silo-sidecar/internal/environment"
)

type CreateWorkspaceRequest struct {
	WorkspaceID string `json:"workspace_id" binding:"required"`
	EnvName     string `json:"env_name"`
	OwnerID     string `json:"owner_id" binding:"required"`
}

type WorkspaceResponse struct {
	WorkspaceID string    `json:"workspace_id"`
	EnvName     string    `json:"env_name"`
	OwnerID     string    `json:"owner_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ListWorkspacesResponse struct {
	Workspaces []string `json:"workspaces"`
	Count      int      `json:"count"`
}

type EnvironmentResponse struct {
	WorkspaceID string                   `json:"workspace_id"`
	Environment *environment.Environment `json:"environment"`
}

type ExposeServerRequest struct {
	Service  string `json:"service" binding:"required"`
	Port     int    `json:"port" binding:"required,min=1,max=65535"`
	Protocol string `json:"protocol"`
}

type ExposeServerResponse struct {
	WorkspaceID string                  `json:"workspace_id"`
	Port        environment.ServicePort `json:"port"`
}

type IssueTokenRequest struct {
	TTLSeconds int `json:"ttl_seconds" binding:"required,min=1"`
}

type IssueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
