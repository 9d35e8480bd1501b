package webchat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnichat/webchat/internal/storage"
)

type brokenStore struct {
	gets, sets int
}

func (b *brokenStore) Get(ctx context.Context, key string) (string, error) {
	b.gets++
	return "", errors.New("storage disabled")
}

func (b *brokenStore) Set(ctx context.Context, key, value string) error {
	b.sets++
	return errors.New("quota exceeded")
}

func TestEnsureVisitorIDPersists(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	m := NewIdentityManager(store, zerolog.Nop())
	m.now = func() time.Time { return fixedNow }

	id := m.EnsureVisitorID(ctx)
	assert.True(t, strings.HasPrefix(id, "visitor-1740821400000-"), id)
	assert.Equal(t, id, m.EnsureVisitorID(ctx))

	stored, err := store.Get(ctx, VisitorIDKey)
	require.NoError(t, err)
	assert.Equal(t, id, stored)

	// a reload reads the same identity back
	reloaded := NewIdentityManager(store, zerolog.Nop())
	assert.Equal(t, id, reloaded.EnsureVisitorID(ctx))
}

func TestEnsureVisitorIDSurvivesBrokenStorage(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{}
	m := NewIdentityManager(store, zerolog.Nop())

	id := m.EnsureVisitorID(ctx)
	require.NotEmpty(t, id)
	assert.Equal(t, id, m.EnsureVisitorID(ctx))
	assert.Equal(t, 1, store.gets)
	assert.Equal(t, 0, store.sets)

	handle, ok := m.ConversationHandle(ctx)
	assert.False(t, ok)
	assert.Empty(t, handle)

	m.SaveConversationHandle(ctx, "c1")
	assert.Equal(t, 1, store.sets)
}

// unreadableStore fails reads but still accepts writes.
type unreadableStore struct {
	*storage.Memory
}

func (u unreadableStore) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("read timeout")
}

func TestEnsureVisitorIDKeepsStoredIdentityOnReadFailure(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.Set(ctx, VisitorIDKey, "visitor-durable"))

	m := NewIdentityManager(unreadableStore{mem}, zerolog.Nop())
	id := m.EnsureVisitorID(ctx)
	assert.NotEqual(t, "visitor-durable", id)

	stored, err := mem.Get(ctx, VisitorIDKey)
	require.NoError(t, err)
	assert.Equal(t, "visitor-durable", stored)
}

func TestIdentityWithoutStore(t *testing.T) {
	ctx := context.Background()
	m := NewIdentityManager(nil, zerolog.Nop())

	id := m.EnsureVisitorID(ctx)
	require.NotEmpty(t, id)
	assert.Equal(t, id, m.EnsureVisitorID(ctx))

	m.SaveConversationHandle(ctx, "c1")
	_, ok := m.ConversationHandle(ctx)
	assert.False(t, ok)
}

func TestConversationHandleNeverMinted(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewIdentityManager(store, zerolog.Nop())

	_, ok := m.ConversationHandle(ctx)
	assert.False(t, ok)
	_, err := store.Get(ctx, ConversationIDKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	m.SaveConversationHandle(ctx, "")
	_, ok = m.ConversationHandle(ctx)
	assert.False(t, ok)

	m.SaveConversationHandle(ctx, "c1")
	handle, ok := m.ConversationHandle(ctx)
	assert.True(t, ok)
	assert.Equal(t, "c1", handle)
}
