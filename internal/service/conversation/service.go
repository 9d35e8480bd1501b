package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnichat/webchat/internal/model"
)

type ErrorCode string

const (
	ErrorCodeValidation ErrorCode = "validation_error"
	ErrorCodeForbidden  ErrorCode = "forbidden"
	ErrorCodeNotFound   ErrorCode = "not_found"
	ErrorCodeConflict   ErrorCode = "conflict"
	ErrorCodeInternal   ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

const (
	DefaultGuestName = "Khách Web Chat"
	historyLimit     = 200
)

type ConversationResult struct {
	Conversation model.ConversationItem
	Messages     []model.MessageItem
	Visitor      model.VisitorItem
}

type MessageResult struct {
	Conversation model.ConversationItem
	Message      model.MessageItem
}

type ProfileParams struct {
	VisitorID      string
	ConversationID string
	FullName       string
	Phone          string
	Email          string
	Address        string
}

type Service struct {
	repo      Repository
	now       func() time.Time
	guestName string
}

func NewWithRepository(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      repo,
		now:       now,
		guestName: DefaultGuestName,
	}
}

// SetGuestName changes the name given to visitors who never filled in a profile.
func (s *Service) SetGuestName(name string) {
	if name = strings.TrimSpace(name); name != "" {
		s.guestName = name
	}
}

// StartConversation returns the visitor's open conversation, creating the
// visitor and the conversation the first time they are seen.
func (s *Service) StartConversation(ctx context.Context, visitorID string) (ConversationResult, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return ConversationResult{}, newError(ErrorCodeValidation, "visitorId is required", nil)
	}

	nowStr := s.timestamp()

	visitor, err := s.repo.GetVisitor(ctx, visitorID)
	switch {
	case errors.Is(err, ErrNotFound):
		visitor = model.VisitorItem{
			VisitorID: visitorID,
			FullName:  s.guestName,
			CreatedAt: nowStr,
		}
	case err != nil:
		return ConversationResult{}, newError(ErrorCodeInternal, "failed to lookup visitor", err)
	}
	visitor.LastSeenAt = nowStr
	if err := s.repo.PutVisitor(ctx, visitor); err != nil {
		return ConversationResult{}, newError(ErrorCodeInternal, "failed to persist visitor", err)
	}

	conversation, err := s.repo.FindConversationByVisitor(ctx, visitorID)
	if errors.Is(err, ErrNotFound) {
		conversation = model.ConversationItem{
			ConversationID: uuid.NewString(),
			VisitorID:      visitorID,
			Status:         model.ConversationStatusOpen,
			CreatedAt:      nowStr,
			UpdatedAt:      nowStr,
			LastMessageAt:  nowStr,
		}
		if err := s.repo.CreateConversation(ctx, conversation); err != nil {
			return ConversationResult{}, newError(ErrorCodeInternal, "failed to create conversation", err)
		}
	} else if err != nil {
		return ConversationResult{}, newError(ErrorCodeInternal, "failed to lookup conversation", err)
	}

	messages, err := s.repo.ListMessages(ctx, conversation.ConversationID, historyLimit)
	if err != nil {
		return ConversationResult{}, newError(ErrorCodeInternal, "failed to list messages", err)
	}

	return ConversationResult{
		Conversation: conversation,
		Messages:     messages,
		Visitor:      visitor,
	}, nil
}

func (s *Service) GetConversation(ctx context.Context, conversationID string) (ConversationResult, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ConversationResult{}, newError(ErrorCodeValidation, "conversationId is required", nil)
	}

	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return ConversationResult{}, err
	}

	messages, err := s.repo.ListMessages(ctx, conversationID, historyLimit)
	if err != nil {
		return ConversationResult{}, newError(ErrorCodeInternal, "failed to list messages", err)
	}

	visitor, err := s.repo.GetVisitor(ctx, conversation.VisitorID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return ConversationResult{}, newError(ErrorCodeInternal, "failed to load visitor", err)
	}

	return ConversationResult{
		Conversation: conversation,
		Messages:     messages,
		Visitor:      visitor,
	}, nil
}

func (s *Service) PostVisitorMessage(ctx context.Context, visitorID, conversationID, body string) (MessageResult, error) {
	visitorID = strings.TrimSpace(visitorID)
	body = strings.TrimSpace(body)

	if visitorID == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "visitorId is required", nil)
	}
	if body == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "message content is required", nil)
	}

	conversation, err := s.visitorConversation(ctx, visitorID, conversationID)
	if err != nil {
		return MessageResult{}, err
	}
	if conversation.Status == model.ConversationStatusClosed {
		return MessageResult{}, newError(ErrorCodeConflict, "conversation is closed", nil)
	}

	return s.appendMessage(ctx, conversation, model.SenderCustomer, visitorID, body)
}

// PostAgentMessage stores a reply from the support side. An empty sender
// type is recorded as an agent reply.
func (s *Service) PostAgentMessage(ctx context.Context, conversationID, senderType, senderID, body string) (MessageResult, error) {
	conversationID = strings.TrimSpace(conversationID)
	body = strings.TrimSpace(body)
	senderType = strings.TrimSpace(senderType)

	if conversationID == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "conversationId is required", nil)
	}
	if body == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "message content is required", nil)
	}
	if senderType == "" {
		senderType = model.SenderAgent
	}
	if senderType == model.SenderCustomer {
		return MessageResult{}, newError(ErrorCodeValidation, "agents cannot post as the customer", nil)
	}

	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return MessageResult{}, err
	}

	return s.appendMessage(ctx, conversation, senderType, strings.TrimSpace(senderID), body)
}

// UpdateProfile merges the non-empty fields into the visitor's record.
func (s *Service) UpdateProfile(ctx context.Context, params ProfileParams) (model.VisitorItem, error) {
	visitorID := strings.TrimSpace(params.VisitorID)
	if visitorID == "" {
		return model.VisitorItem{}, newError(ErrorCodeValidation, "visitorId is required", nil)
	}

	fullName := strings.TrimSpace(params.FullName)
	phone := strings.TrimSpace(params.Phone)
	email := normalizeEmail(params.Email)
	address := strings.TrimSpace(params.Address)

	if fullName == "" && phone == "" && email == "" && address == "" {
		return model.VisitorItem{}, newError(ErrorCodeValidation, "at least one profile field is required", nil)
	}
	if email != "" && !isValidEmail(email) {
		return model.VisitorItem{}, newError(ErrorCodeValidation, "a valid email is required", nil)
	}

	if _, err := s.visitorConversation(ctx, visitorID, params.ConversationID); err != nil {
		return model.VisitorItem{}, err
	}

	nowStr := s.timestamp()
	visitor, err := s.repo.GetVisitor(ctx, visitorID)
	if errors.Is(err, ErrNotFound) {
		visitor = model.VisitorItem{VisitorID: visitorID, FullName: s.guestName, CreatedAt: nowStr}
	} else if err != nil {
		return model.VisitorItem{}, newError(ErrorCodeInternal, "failed to load visitor", err)
	}

	if fullName != "" {
		visitor.FullName = fullName
	}
	if phone != "" {
		visitor.Phone = phone
	}
	if email != "" {
		visitor.Email = email
	}
	if address != "" {
		visitor.Address = address
	}
	visitor.LastSeenAt = nowStr

	if err := s.repo.PutVisitor(ctx, visitor); err != nil {
		return model.VisitorItem{}, newError(ErrorCodeInternal, "failed to persist visitor", err)
	}
	return visitor, nil
}

// CanJoin reports whether the visitor may receive pushes for the conversation.
func (s *Service) CanJoin(ctx context.Context, visitorID, conversationID string) error {
	_, err := s.visitorConversation(ctx, visitorID, conversationID)
	return err
}

func (s *Service) visitorConversation(ctx context.Context, visitorID, conversationID string) (model.ConversationItem, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return model.ConversationItem{}, newError(ErrorCodeValidation, "conversationId is required", nil)
	}

	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return model.ConversationItem{}, err
	}
	if conversation.VisitorID != strings.TrimSpace(visitorID) {
		return model.ConversationItem{}, newError(ErrorCodeForbidden, "visitor does not match conversation", nil)
	}
	return conversation, nil
}

func (s *Service) loadConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}
	return conversation, nil
}

func (s *Service) appendMessage(ctx context.Context, conversation model.ConversationItem, senderType, senderID, body string) (MessageResult, error) {
	nowStr := s.timestamp()

	message := model.MessageItem{
		ConversationID: conversation.ConversationID,
		MessageID:      uuid.NewString(),
		SenderType:     senderType,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      nowStr,
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return MessageResult{}, newError(ErrorCodeInternal, "failed to store message", err)
	}

	if err := s.repo.UpdateConversationActivity(ctx, conversation.ConversationID, nowStr, nowStr); err != nil {
		return MessageResult{}, newError(ErrorCodeInternal, "failed to update conversation", err)
	}

	conversation.LastMessageAt = nowStr
	conversation.UpdatedAt = nowStr

	return MessageResult{
		Conversation: conversation,
		Message:      message,
	}, nil
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func normalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	return strings.ToLower(email)
}

func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	local, domain := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if local == "" || domain == "" {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	return true
}
