package handler

import (
	"net/http"

	"github.com/EternisAI/silo-sidecar/internal/api/http/dto"
	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	keys signature.KeyManager
}

func NewHealthHandler(keys signature.KeyManager) *HealthHandler {
	return &HealthHandler{keys: keys}
}

// Check reports "degraded" while no signature key pair is available, since
// no sidecar can be provisioned until one is.
func (h *HealthHandler) Check(ctx *gin.Context) {
	status := "ok"
	if h.keys != nil {
		if pair, err := h.keys.GetKeyPair(); err != nil || pair == nil {
			status = "degraded"
		}
	}
	ctx.JSON(http.StatusOK, dto.HealthResponse{Status: status})
}
