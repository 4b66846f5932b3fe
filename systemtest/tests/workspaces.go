package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/EternisAI/silo-sidecar/internal/api/http/dto"
	"github.com/EternisAI/silo-sidecar/internal/jwtproxy"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T, router *gin.Engine) {
	rr := doJSONWithKey(router, "GET", "/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestAdminAuth(t *testing.T, router *gin.Engine) {
	t.Run("missing key", func(t *testing.T) {
		rr := doJSONWithKey(router, "GET", "/api/v1/workspaces", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		rr := doJSONWithKey(router, "GET", "/api/v1/workspaces", nil, "nope")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

// TestWorkspaceFlow walks a workspace through creation, two exposures and
// deletion. workspaceID must not exist yet.
func TestWorkspaceFlow(t *testing.T, router *gin.Engine, workspaceID string) {
	base := "/api/v1/workspaces/" + workspaceID

	rr := doJSON(router, "POST", "/api/v1/workspaces", dto.CreateWorkspaceRequest{
		WorkspaceID: workspaceID,
		EnvName:     "default",
		OwnerID:     "user-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	t.Run("expose servers", func(t *testing.T) {
		var resp dto.ExposeServerResponse

		rr := doJSON(router, "POST", base+"/servers", dto.ExposeServerRequest{Service: "backend-a", Port: 8080})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "backend-a-4400", resp.Port.Name)

		rr = doJSON(router, "POST", base+"/servers", dto.ExposeServerRequest{Service: "backend-b", Port: 9090})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "backend-b-4401", resp.Port.Name)
		assert.Equal(t, 4401, resp.Port.TargetPort)
	})

	t.Run("jwtproxy config", func(t *testing.T) {
		rr := doJSON(router, "GET", base+"/jwtproxy/config", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		mappings, err := jwtproxy.ParseConfig(rr.Body.String())
		require.NoError(t, err)
		assert.Equal(t, []jwtproxy.ExposureMapping{
			{ListenPort: 4400, BackendURL: "http://backend-a:8080"},
			{ListenPort: 4401, BackendURL: "http://backend-b:9090"},
		}, mappings)
	})

	t.Run("environment holds one sidecar", func(t *testing.T) {
		rr := doJSON(router, "GET", base+"/environment", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.EnvironmentResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Len(t, resp.Environment.Machines, 1)
		assert.Len(t, resp.Environment.Pods, 1)
		assert.Len(t, resp.Environment.ConfigMaps, 1)
		require.Len(t, resp.Environment.Services, 1)
		for _, svc := range resp.Environment.Services {
			assert.Len(t, svc.Spec.Ports, 2)
		}
	})

	t.Run("machine token", func(t *testing.T) {
		rr := doJSON(router, "POST", base+"/token", dto.IssueTokenRequest{TTLSeconds: 300})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.IssueTokenResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("delete", func(t *testing.T) {
		rr := doJSON(router, "DELETE", base, nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = doJSON(router, "GET", base+"/environment", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
