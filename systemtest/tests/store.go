package tests

import (
	"context"
	"testing"

	"github.com/EternisAI/silo-sidecar/internal/environment"
	"github.com/EternisAI/silo-sidecar/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEnvironmentStore checks the EnvironmentStore contract against s, which
// must start empty.
func TestEnvironmentStore(t *testing.T, s store.EnvironmentStore) {
	ctx := context.Background()
	identity := environment.RuntimeIdentity{WorkspaceID: "store-ws", EnvName: "default", OwnerID: "user-1"}

	t.Run("missing record", func(t *testing.T) {
		_, err := s.Get(ctx, identity.WorkspaceID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, identity.WorkspaceID), store.ErrNotFound)
	})

	t.Run("save and get", func(t *testing.T) {
		env := environment.New()
		env.PutService("svc", &environment.Service{
			Metadata: environment.ObjectMeta{Name: "svc"},
			Spec: environment.ServiceSpec{
				Selector: map[string]string{"app": "x"},
				Ports:    []environment.ServicePort{{Name: "a-4400", Port: 4400, Protocol: "TCP", TargetPort: 4400}},
			},
		})

		record := &store.Record{Identity: identity, Environment: env}
		require.NoError(t, s.Save(ctx, record))
		assert.False(t, record.UpdatedAt.IsZero())

		got, err := s.Get(ctx, identity.WorkspaceID)
		require.NoError(t, err)
		assert.Equal(t, identity, got.Identity)
		svc, ok := got.Environment.Service("svc")
		require.True(t, ok)
		assert.Equal(t, env.Services["svc"].Spec, svc.Spec)
	})

	t.Run("save overwrites", func(t *testing.T) {
		record := &store.Record{Identity: identity, Environment: environment.New()}
		require.NoError(t, s.Save(ctx, record))

		got, err := s.Get(ctx, identity.WorkspaceID)
		require.NoError(t, err)
		assert.Empty(t, got.Environment.Services)
	})

	t.Run("list", func(t *testing.T) {
		other := &store.Record{Identity: environment.RuntimeIdentity{WorkspaceID: "a-store-ws"}, Environment: environment.New()}
		require.NoError(t, s.Save(ctx, other))

		ids, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a-store-ws", "store-ws"}, ids)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, identity.WorkspaceID))
		require.NoError(t, s.Delete(ctx, "a-store-ws"))

		ids, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
