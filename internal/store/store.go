package store

import (
	"context"
	"errors"
	"time"

	"github.com/EternisAI/silo-sidecar/internal/environment"
)

var ErrNotFound = errors.New("workspace environment not found")

// Record is a persisted workspace environment.
type Record struct {
	Identity    environment.RuntimeIdentity
	Environment *environment.Environment
	UpdatedAt   time.Time
}

// EnvironmentStore persists workspace environments between provisioning
// calls and across restarts.
type EnvironmentStore interface {
	Get(ctx context.Context, workspaceID string) (*Record, error)
	Save(ctx context.Context, record *Record) error
	Delete(ctx context.Context, workspaceID string) error
	List(ctx context.Context) ([]string, error)
}
