package webchat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnichat/webchat/internal/storage"
	"github.com/omnichat/webchat/utils"
)

// Store is the client-local key/value persistence behind the widget
// identifiers. Get returns storage.ErrNotFound for absent keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// IdentityManager owns the visitor id and the persisted conversation handle.
// Storage failures never reach the caller; the identity then lives in memory
// for the lifetime of the manager.
type IdentityManager struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time

	mu        sync.Mutex
	visitorID string
}

func NewIdentityManager(store Store, logger zerolog.Logger) *IdentityManager {
	return &IdentityManager{
		store: store,
		log:   logger,
		now:   time.Now,
	}
}

func (m *IdentityManager) EnsureVisitorID(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.visitorID != "" {
		return m.visitorID
	}

	id, err := m.read(ctx, VisitorIDKey)
	if err == nil && id != "" {
		m.visitorID = id
		return id
	}

	m.visitorID = utils.NewVisitorID(m.now())
	// An unreadable store may still hold the durable id; keep the new one in memory only.
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		m.write(ctx, VisitorIDKey, m.visitorID)
	}
	return m.visitorID
}

// ConversationHandle returns the persisted handle, if any. It never mints one.
func (m *IdentityManager) ConversationHandle(ctx context.Context) (string, bool) {
	handle, err := m.read(ctx, ConversationIDKey)
	if err != nil || handle == "" {
		return "", false
	}
	return handle, true
}

func (m *IdentityManager) SaveConversationHandle(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	m.write(ctx, ConversationIDKey, handle)
}

func (m *IdentityManager) read(ctx context.Context, key string) (string, error) {
	if m.store == nil {
		return "", newError(ErrorCodeIdentityUnavailable, "", errors.New("no storage configured"))
	}
	value, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Warn().Err(newError(ErrorCodeIdentityUnavailable, "", err)).Str("key", key).Msg("identity storage read failed")
		}
		return "", err
	}
	return value, nil
}

func (m *IdentityManager) write(ctx context.Context, key, value string) {
	if m.store == nil {
		return
	}
	if err := m.store.Set(ctx, key, value); err != nil {
		m.log.Warn().Err(newError(ErrorCodeIdentityUnavailable, "", err)).Str("key", key).Msg("identity storage write failed")
	}
}
