package conversation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/omnichat/webchat/internal/model"
)

var ErrNotFound = errors.New("conversation repository: not found")

type Repository interface {
	GetVisitor(ctx context.Context, visitorID string) (model.VisitorItem, error)
	PutVisitor(ctx context.Context, visitor model.VisitorItem) error
	CreateConversation(ctx context.Context, conversation model.ConversationItem) error
	GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error)
	FindConversationByVisitor(ctx context.Context, visitorID string) (model.ConversationItem, error)
	UpdateConversationActivity(ctx context.Context, conversationID, updatedAt, lastMessageAt string) error
	CreateMessage(ctx context.Context, message model.MessageItem) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error)
}

// MemoryRepository keeps conversations in process memory. It backs the
// development server, where nothing needs to outlive a restart.
type MemoryRepository struct {
	mu            sync.RWMutex
	visitors      map[string]model.VisitorItem
	conversations map[string]model.ConversationItem
	byVisitor     map[string]string
	messages      map[string][]model.MessageItem
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		visitors:      make(map[string]model.VisitorItem),
		conversations: make(map[string]model.ConversationItem),
		byVisitor:     make(map[string]string),
		messages:      make(map[string][]model.MessageItem),
	}
}

func (m *MemoryRepository) GetVisitor(ctx context.Context, visitorID string) (model.VisitorItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	visitor, ok := m.visitors[visitorID]
	if !ok {
		return model.VisitorItem{}, ErrNotFound
	}
	return visitor, nil
}

func (m *MemoryRepository) PutVisitor(ctx context.Context, visitor model.VisitorItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visitors[visitor.VisitorID] = visitor
	return nil
}

func (m *MemoryRepository) CreateConversation(ctx context.Context, conversation model.ConversationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conversation.ConversationID] = conversation
	m.byVisitor[conversation.VisitorID] = conversation.ConversationID
	return nil
}

func (m *MemoryRepository) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	return conversation, nil
}

func (m *MemoryRepository) FindConversationByVisitor(ctx context.Context, visitorID string) (model.ConversationItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byVisitor[visitorID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	conversation, ok := m.conversations[id]
	if !ok || conversation.Status == model.ConversationStatusClosed {
		return model.ConversationItem{}, ErrNotFound
	}
	return conversation, nil
}

func (m *MemoryRepository) UpdateConversationActivity(ctx context.Context, conversationID, updatedAt, lastMessageAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conversation.UpdatedAt = updatedAt
	conversation.LastMessageAt = lastMessageAt
	m.conversations[conversationID] = conversation
	return nil
}

func (m *MemoryRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[message.ConversationID] = append(m.messages[message.ConversationID], message)
	return nil
}

// ListMessages returns messages oldest first, keeping the newest limit
// entries when limit is positive.
func (m *MemoryRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	m.mu.RLock()
	messages := append([]model.MessageItem(nil), m.messages[conversationID]...)
	m.mu.RUnlock()

	sort.SliceStable(messages, func(i, j int) bool {
		return parseTime(messages[i].CreatedAt).Before(parseTime(messages[j].CreatedAt))
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func parseTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
