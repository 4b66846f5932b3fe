package server

import (
	"context"
	"testing"
	"time"

	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T, keys signature.KeyManager) (*Server, healthpb.HealthClient) {
	t.Helper()

	s := NewServer(0, keys)
	require.NoError(t, s.Listen())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	t.Cleanup(func() {
		_ = s.StopWithTimeout(time.Second)
		<-errCh
	})

	conn, err := grpc.NewClient(s.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return s, healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp *healthpb.HealthCheckResponse
	require.Eventually(t, func() bool {
		var err error
		resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	return resp.GetStatus()
}

func TestHealth_ServingWithKeyPair(t *testing.T) {
	pair, err := signature.GenerateKeyPair(1024)
	require.NoError(t, err)

	_, client := startServer(t, signature.NewStaticKeyManager(pair))

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, client, ProvisionerService))
}

func TestHealth_ProvisionerNotServingWithoutKeyPair(t *testing.T) {
	keys := signature.NewStaticKeyManager(nil)
	s, client := startServer(t, keys)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, client, ProvisionerService))

	pair, err := signature.GenerateKeyPair(1024)
	require.NoError(t, err)
	keys.Set(pair)
	s.RefreshKeyStatus()

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, client, ProvisionerService))
}

func TestStopBeforeStart(t *testing.T) {
	s := NewServer(0, nil)
	assert.Nil(t, s.Addr())
	assert.NoError(t, s.StopWithTimeout(time.Second))
}
