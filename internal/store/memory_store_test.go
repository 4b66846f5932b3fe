package store

import (
	"context"
	"testing"

	"github.com/EternisAI/silo-sidecar/internal/environment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "ws1")
	assert.ErrorIs(t, err, ErrNotFound)

	env := environment.New()
	env.PutService("svc", &environment.Service{Metadata: environment.ObjectMeta{Name: "svc"}})
	record := &Record{Identity: environment.RuntimeIdentity{WorkspaceID: "ws1", OwnerID: "u1"}, Environment: env}
	require.NoError(t, s.Save(ctx, record))
	assert.False(t, record.UpdatedAt.IsZero())

	got, err := s.Get(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Identity.OwnerID)
	_, ok := got.Environment.Service("svc")
	assert.True(t, ok)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ws1"}, ids)

	require.NoError(t, s.Delete(ctx, "ws1"))
	assert.ErrorIs(t, s.Delete(ctx, "ws1"), ErrNotFound)

	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	env := environment.New()
	record := &Record{Identity: environment.RuntimeIdentity{WorkspaceID: "ws1"}, Environment: env}
	require.NoError(t, s.Save(ctx, record))

	// Mutations after Save do not leak into the store.
	env.PutService("late", &environment.Service{})

	got, err := s.Get(ctx, "ws1")
	require.NoError(t, err)
	assert.Empty(t, got.Environment.Services)

	// Mutations of a fetched record do not leak either.
	got.Environment.PutService("fetched", &environment.Service{})
	again, err := s.Get(ctx, "ws1")
	require.NoError(t, err)
	assert.Empty(t, again.Environment.Services)
}

func TestMemoryStore_SaveValidation(t *testing.T) {
	s := NewMemoryStore()
	assert.Error(t, s.Save(context.Background(), nil))
	assert.Error(t, s.Save(context.Background(), &Record{}))
}

func TestMemoryStore_ListSorted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Save(ctx, &Record{Identity: environment.RuntimeIdentity{WorkspaceID: id}}))
	}
	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
