package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/omnichat/webchat/internal/api"
	"github.com/omnichat/webchat/internal/dto"
	"github.com/omnichat/webchat/internal/model"
	conversationservice "github.com/omnichat/webchat/internal/service/conversation"
	"github.com/omnichat/webchat/internal/websocket"
)

type HTTPError = api.HTTPError

type ApiMessageResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	return api.WriteJSON(w, status, v)
}

func MethodHandler(
	w http.ResponseWriter,
	r *http.Request,
	allowed map[string]func(http.ResponseWriter, *http.Request) error,
) error {
	if handler, ok := allowed[r.Method]; ok {
		return handler(w, r)
	}
	return &HTTPError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    "Method not allowed.",
		ErrorLog:   fmt.Errorf("method %s not allowed on %s", r.Method, r.URL.Path),
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode %s: %w", r.URL.Path, err),
		}
	}
	return nil
}

func mapConversationServiceError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *conversationservice.Error
	if !errors.As(err, &svcErr) {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("conversation service: %w", err),
		}
	}

	var logErr error
	if svcErr.Err != nil {
		logErr = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		logErr = svcErr
	}

	switch svcErr.Code {
	case conversationservice.ErrorCodeValidation:
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: svcErr.Message, ErrorLog: logErr}
	case conversationservice.ErrorCodeForbidden:
		return &HTTPError{StatusCode: http.StatusForbidden, Message: svcErr.Message, ErrorLog: logErr}
	case conversationservice.ErrorCodeNotFound:
		return &HTTPError{StatusCode: http.StatusNotFound, Message: svcErr.Message, ErrorLog: logErr}
	case conversationservice.ErrorCodeConflict:
		return &HTTPError{StatusCode: http.StatusConflict, Message: svcErr.Message, ErrorLog: logErr}
	default:
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", ErrorLog: logErr}
	}
}

// publishMessage pushes a stored message to the conversation's listeners.
// A failed push is logged; the message is already persisted.
func publishMessage(ctx context.Context, publisher websocket.Publisher, logger zerolog.Logger, message model.MessageItem) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, message.ConversationID, websocket.EventNewMessage, toMessageResponse(message)); err != nil {
		logger.Warn().Err(err).Str("conversation_id", message.ConversationID).Msg("push failed")
	}
}

func toMessageResponse(item model.MessageItem) dto.MessageResponse {
	return dto.MessageResponse{
		ID:             item.MessageID,
		ConversationID: item.ConversationID,
		Content:        item.Body,
		SenderType:     item.SenderType,
		SenderID:       item.SenderID,
		CreatedAt:      item.CreatedAt,
	}
}

func toCustomerResponse(item model.VisitorItem) *dto.CustomerResponse {
	if item.VisitorID == "" {
		return nil
	}
	return &dto.CustomerResponse{
		FullName: item.FullName,
		Phone:    item.Phone,
		Email:    item.Email,
		Address:  item.Address,
	}
}

func toConversationResponse(result conversationservice.ConversationResult) dto.ConversationResponse {
	messages := make([]dto.MessageResponse, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, toMessageResponse(m))
	}
	return dto.ConversationResponse{
		ID:             result.Conversation.ConversationID,
		ConversationID: result.Conversation.ConversationID,
		Status:         string(result.Conversation.Status),
		Messages:       messages,
		Customer:       toCustomerResponse(result.Visitor),
	}
}
