// Package workspace serializes provisioning calls per workspace and keeps
// each workspace's environment in an EnvironmentStore.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/EternisAI/silo-sidecar/internal/environment"
	"github.com/EternisAI/silo-sidecar/internal/jwtproxy"
	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/EternisAI/silo-sidecar/internal/store"
)

var (
	ErrWorkspaceExists   = errors.New("workspace already exists")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrNotProvisioned    = errors.New("jwtproxy is not provisioned for this workspace")
)

// ServerRequest asks for a backend server to be exposed through the sidecar.
type ServerRequest struct {
	Service  string
	Port     int
	Protocol string
}

type Manager struct {
	store  store.EnvironmentStore
	keys   signature.KeyManager
	tokens *signature.TokenIssuer

	mu           sync.Mutex
	locks        map[string]*sync.Mutex
	provisioners map[string]*jwtproxy.Provisioner
}

func NewManager(s store.EnvironmentStore, keys signature.KeyManager) *Manager {
	return &Manager{
		store:        s,
		keys:         keys,
		tokens:       signature.NewTokenIssuer(keys),
		locks:        make(map[string]*sync.Mutex),
		provisioners: make(map[string]*jwtproxy.Provisioner),
	}
}

// lock returns the held mutex of workspaceID. Callers must unlock it.
func (m *Manager) lock(workspaceID string) *sync.Mutex {
	m.mu.Lock()
	l, ok := m.locks[workspaceID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[workspaceID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l
}

func (m *Manager) cached(workspaceID string) (*jwtproxy.Provisioner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.provisioners[workspaceID]
	return p, ok
}

func (m *Manager) cache(workspaceID string, p *jwtproxy.Provisioner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		delete(m.provisioners, workspaceID)
		return
	}
	m.provisioners[workspaceID] = p
}

func (m *Manager) Create(ctx context.Context, identity environment.RuntimeIdentity) (*store.Record, error) {
	if identity.WorkspaceID == "" {
		return nil, fmt.Errorf("%w: workspace ID is required", jwtproxy.ErrInvalidArgument)
	}

	l := m.lock(identity.WorkspaceID)
	defer l.Unlock()

	if _, err := m.store.Get(ctx, identity.WorkspaceID); err == nil {
		return nil, ErrWorkspaceExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load workspace: %w", err)
	}

	record := &store.Record{Identity: identity, Environment: environment.New()}
	if err := m.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save workspace: %w", err)
	}

	slog.Info("Workspace created", "workspace_id", identity.WorkspaceID, "owner_id", identity.OwnerID)
	return record, nil
}

func (m *Manager) get(ctx context.Context, workspaceID string) (*store.Record, error) {
	record, err := m.store.Get(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	return record, nil
}

// Environment returns the stored record of a workspace.
func (m *Manager) Environment(ctx context.Context, workspaceID string) (*store.Record, error) {
	return m.get(ctx, workspaceID)
}

// ExposeServer routes a backend through the workspace's sidecar. The exposure
// is applied to a copy of the stored environment and saved only on success,
// so a failed call never leaves partial resources behind.
func (m *Manager) ExposeServer(ctx context.Context, workspaceID string, req ServerRequest) (environment.ServicePort, error) {
	l := m.lock(workspaceID)
	defer l.Unlock()

	record, err := m.get(ctx, workspaceID)
	if err != nil {
		return environment.ServicePort{}, err
	}

	p, ok := m.cached(workspaceID)
	if !ok {
		p, err = jwtproxy.Recover(record.Identity, m.keys, record.Environment)
		if err != nil {
			return environment.ServicePort{}, fmt.Errorf("recover provisioner: %w", err)
		}
	}

	protocol := req.Protocol
	if protocol == "" {
		protocol = jwtproxy.DefaultProtocol
	}

	env := record.Environment.Clone()
	port, err := p.Expose(env, req.Service, req.Port, protocol)
	if err != nil {
		// The provisioner may have advanced past the stored environment.
		m.cache(workspaceID, nil)
		return environment.ServicePort{}, err
	}

	record.Environment = env
	if err := m.store.Save(ctx, record); err != nil {
		m.cache(workspaceID, nil)
		return environment.ServicePort{}, fmt.Errorf("save workspace: %w", err)
	}
	m.cache(workspaceID, p)

	return port, nil
}

// ProxyConfig returns the jwtproxy configuration document of the workspace.
func (m *Manager) ProxyConfig(ctx context.Context, workspaceID string) (string, error) {
	record, err := m.get(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	cm, ok := record.Environment.ConfigMap(jwtproxy.ConfigMapName(workspaceID))
	if !ok || cm == nil {
		return "", ErrNotProvisioned
	}
	return cm.Data[jwtproxy.ConfigFile], nil
}

func (m *Manager) Delete(ctx context.Context, workspaceID string) error {
	l := m.lock(workspaceID)
	defer l.Unlock()

	if err := m.store.Delete(ctx, workspaceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrWorkspaceNotFound
		}
		return fmt.Errorf("delete workspace: %w", err)
	}
	m.cache(workspaceID, nil)

	slog.Info("Workspace deleted", "workspace_id", workspaceID)
	return nil
}

func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// IssueMachineToken signs a token the workspace's sidecar will accept.
func (m *Manager) IssueMachineToken(ctx context.Context, workspaceID string, ttl time.Duration) (string, error) {
	record, err := m.get(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	return m.tokens.Issue(record.Identity, ttl)
}
