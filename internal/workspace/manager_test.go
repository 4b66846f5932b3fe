package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/EternisAI/silo-sidecar/internal/environment"
	"github.com/EternisAI/silo-sidecar/internal/jwtproxy"
	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/EternisAI/silo-sidecar/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPair *signature.KeyPair

func init() {
	pair, err := signature.GenerateKeyPair(1024)
	if err != nil {
		panic(err)
	}
	testPair = pair
}

var testIdentity = environment.RuntimeIdentity{WorkspaceID: "ws1", EnvName: "default", OwnerID: "user-1"}

func newTestManager(t *testing.T) (*Manager, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	m := NewManager(s, signature.NewStaticKeyManager(testPair))
	_, err := m.Create(context.Background(), testIdentity)
	require.NoError(t, err)
	return m, s
}

// failingSaveStore fails every Save after the first n.
type failingSaveStore struct {
	*store.MemoryStore
	allowed int
}

func (f *failingSaveStore) Save(ctx context.Context, r *store.Record) error {
	if f.allowed <= 0 {
		return errors.New("connection reset")
	}
	f.allowed--
	return f.MemoryStore.Save(ctx, r)
}

func TestManager_Create(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, testIdentity)
	assert.ErrorIs(t, err, ErrWorkspaceExists)

	_, err = m.Create(ctx, environment.RuntimeIdentity{})
	assert.ErrorIs(t, err, jwtproxy.ErrInvalidArgument)

	ids, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ws1"}, ids)
}

func TestManager_ExposeServer(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	a, err := m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-a", Port: 8080})
	require.NoError(t, err)
	assert.Equal(t, 4400, a.Port)
	assert.Equal(t, "TCP", a.Protocol)

	b, err := m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-b", Port: 9090, Protocol: "UDP"})
	require.NoError(t, err)
	assert.Equal(t, 4401, b.Port)
	assert.Equal(t, "UDP", b.Protocol)

	record, err := s.Get(ctx, "ws1")
	require.NoError(t, err)
	assert.Len(t, record.Environment.Machines, 1)
	assert.Len(t, record.Environment.Services, 1)

	config, err := m.ProxyConfig(ctx, "ws1")
	require.NoError(t, err)
	mappings, err := jwtproxy.ParseConfig(config)
	require.NoError(t, err)
	assert.Equal(t, []jwtproxy.ExposureMapping{
		{ListenPort: 4400, BackendURL: "http://backend-a:8080"},
		{ListenPort: 4401, BackendURL: "http://backend-b:9090"},
	}, mappings)
}

func TestManager_ExposeServer_UnknownWorkspace(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.ExposeServer(context.Background(), "missing", ServerRequest{Service: "a", Port: 80})
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestManager_ExposeServer_MissingKeyPairLeavesStoreUntouched(t *testing.T) {
	s := store.NewMemoryStore()
	keys := signature.NewStaticKeyManager(nil)
	m := NewManager(s, keys)
	ctx := context.Background()
	_, err := m.Create(ctx, testIdentity)
	require.NoError(t, err)

	_, err = m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-a", Port: 8080})
	require.ErrorIs(t, err, jwtproxy.ErrKeyPairMissing)

	record, err := s.Get(ctx, "ws1")
	require.NoError(t, err)
	assert.Empty(t, record.Environment.Machines)

	keys.Set(testPair)
	port, err := m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-a", Port: 8080})
	require.NoError(t, err)
	assert.Equal(t, 4400, port.Port)
}

func TestManager_ExposeServer_RecoversAfterRestart(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	_, err := m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-a", Port: 8080})
	require.NoError(t, err)

	restarted := NewManager(s, signature.NewStaticKeyManager(testPair))
	port, err := restarted.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-b", Port: 9090})
	require.NoError(t, err)
	assert.Equal(t, 4401, port.Port)
	assert.Equal(t, "backend-b-4401", port.Name)

	record, err := s.Get(ctx, "ws1")
	require.NoError(t, err)
	assert.Len(t, record.Environment.Services, 1, "restart must not inject a second sidecar")
}

func TestManager_ExposeServer_SaveFailure(t *testing.T) {
	s := &failingSaveStore{MemoryStore: store.NewMemoryStore(), allowed: 2}
	m := NewManager(s, signature.NewStaticKeyManager(testPair))
	ctx := context.Background()
	_, err := m.Create(ctx, testIdentity)
	require.NoError(t, err)

	_, err = m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-a", Port: 8080})
	require.NoError(t, err)

	_, err = m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-b", Port: 9090})
	require.Error(t, err)

	s.allowed = 1
	port, err := m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-b", Port: 9090})
	require.NoError(t, err)
	assert.Equal(t, 4401, port.Port, "a failed save must not consume a port")
}

func TestManager_ExposeServer_Concurrent(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	ports := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			port, err := m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend", Port: 8000 + i})
			assert.NoError(t, err)
			ports <- port.Port
		}(i)
	}
	wg.Wait()
	close(ports)

	seen := make(map[int]bool)
	for p := range ports {
		assert.False(t, seen[p], "port %d allocated twice", p)
		seen[p] = true
	}
	assert.Len(t, seen, n)

	record, err := s.Get(ctx, "ws1")
	require.NoError(t, err)
	svc, ok := record.Environment.Service(record.Environment.ServiceNames()[0])
	require.True(t, ok)
	assert.Len(t, svc.Spec.Ports, n)
}

func TestManager_ProxyConfig_NotProvisioned(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.ProxyConfig(context.Background(), "ws1")
	assert.ErrorIs(t, err, ErrNotProvisioned)
}

func TestManager_Delete(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-a", Port: 8080})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "ws1"))
	assert.ErrorIs(t, m.Delete(ctx, "ws1"), ErrWorkspaceNotFound)

	_, err = m.Create(ctx, testIdentity)
	require.NoError(t, err)
	port, err := m.ExposeServer(ctx, "ws1", ServerRequest{Service: "backend-a", Port: 8080})
	require.NoError(t, err)
	assert.Equal(t, 4400, port.Port, "a recreated workspace starts from a fresh provisioner")
}

func TestManager_IssueMachineToken(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	token, err := m.IssueMachineToken(ctx, "ws1", time.Minute)
	require.NoError(t, err)

	claims, err := signature.NewTokenIssuer(signature.NewStaticKeyManager(testPair)).Verify(token, "ws1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	_, err = m.IssueMachineToken(ctx, "missing", time.Minute)
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}
