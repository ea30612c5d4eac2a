package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() *APIKey {
	return &APIKey{
		ID:          "key-1",
		Key:         "specviewer_ak_1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef",
		ClientID:    "dashboard",
		Name:        "BHM dashboard",
		Permissions: []string{PermissionSpectraRead, PermissionCatalogRead},
		CreatedAt:   time.Now(),
		Active:      true,
	}
}

func TestInMemoryKeyStore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()

	t.Run("add and find key", func(t *testing.T) {
		store := NewInMemoryKeyStore()
		key := testKey()

		require.NoError(t, store.Add(ctx, key))

		found, ok := store.FindByKey(ctx, key.Key)
		require.True(t, ok)
		assert.Equal(t, key.ID, found.ID)
		assert.Equal(t, key.ClientID, found.ClientID)

		found.Name = "changed"
		again, _ := store.FindByKey(ctx, key.Key)
		assert.Equal(t, "BHM dashboard", again.Name, "results are copies")
	})

	t.Run("unknown key", func(t *testing.T) {
		found, ok := NewInMemoryKeyStore().FindByKey(ctx, "nope")
		assert.False(t, ok)
		assert.Nil(t, found)
	})

	t.Run("duplicates are rejected", func(t *testing.T) {
		store := NewInMemoryKeyStore()
		require.NoError(t, store.Add(ctx, testKey()))

		assert.ErrorIs(t, store.Add(ctx, testKey()), ErrKeyAlreadyExists)

		sameKey := testKey()
		sameKey.ID = "key-2"
		assert.ErrorIs(t, store.Add(ctx, sameKey), ErrKeyAlreadyExists)

		assert.ErrorIs(t, store.Add(ctx, nil), ErrKeyNil)
	})

	t.Run("update moves the key between clients", func(t *testing.T) {
		store := NewInMemoryKeyStore()
		require.NoError(t, store.Add(ctx, testKey()))

		updated := testKey()
		updated.ClientID = "notebook"
		updated.Active = false
		require.NoError(t, store.Update(ctx, updated))

		old, err := store.ListByClient(ctx, "dashboard")
		require.NoError(t, err)
		assert.Empty(t, old)

		moved, err := store.ListByClient(ctx, "notebook")
		require.NoError(t, err)
		require.Len(t, moved, 1)
		assert.False(t, moved[0].Active)

		missing := testKey()
		missing.ID = "key-9"
		assert.ErrorIs(t, store.Update(ctx, missing), ErrKeyNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		store := NewInMemoryKeyStore()
		key := testKey()
		require.NoError(t, store.Add(ctx, key))

		require.NoError(t, store.Delete(ctx, key.ID))

		_, ok := store.FindByKey(ctx, key.Key)
		assert.False(t, ok)
		assert.ErrorIs(t, store.Delete(ctx, key.ID), ErrKeyNotFound)
	})
}
