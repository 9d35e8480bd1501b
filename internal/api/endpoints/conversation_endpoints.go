package endpoints

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/omnichat/webchat/internal/dto"
	conversationservice "github.com/omnichat/webchat/internal/service/conversation"
	"github.com/omnichat/webchat/internal/websocket"
)

// ConversationEndpoints serve GET {prefix}{id} and POST {prefix}{id}/messages.
type ConversationEndpoints interface {
	Conversation(http.ResponseWriter, *http.Request) error
}

type conversationEndpoints struct {
	service   *conversationservice.Service
	publisher websocket.Publisher
	log       zerolog.Logger
	prefix    string
}

func NewConversationEndpoints(service *conversationservice.Service, publisher websocket.Publisher, logger zerolog.Logger, prefix string) ConversationEndpoints {
	return &conversationEndpoints{
		service:   service,
		publisher: publisher,
		log:       logger,
		prefix:    strings.TrimRight(prefix, "/") + "/",
	}
}

func (h *conversationEndpoints) Conversation(w http.ResponseWriter, r *http.Request) error {
	convID, action, err := h.extractPath(r.URL.Path)
	if err != nil {
		return err
	}

	switch action {
	case "":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleGetConversation(w, r, convID)
			},
		})
	case "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
				return h.handlePostAgentMessage(w, r, convID)
			},
		})
	default:
		return &HTTPError{StatusCode: http.StatusNotFound, Message: "Conversation not found", ErrorLog: fmt.Errorf("unknown conversation action %q", action)}
	}
}

func (h *conversationEndpoints) handleGetConversation(w http.ResponseWriter, r *http.Request, convID string) error {
	result, err := h.service.GetConversation(r.Context(), convID)
	if err != nil {
		return mapConversationServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toConversationResponse(result))
}

func (h *conversationEndpoints) handlePostAgentMessage(w http.ResponseWriter, r *http.Request, convID string) error {
	var req dto.PostAgentMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	result, err := h.service.PostAgentMessage(r.Context(), convID, req.SenderType, req.SenderID, req.Content)
	if err != nil {
		return mapConversationServiceError(err)
	}

	publishMessage(r.Context(), h.publisher, h.log, result.Message)

	return WriteJSON(w, http.StatusCreated, toMessageResponse(result.Message))
}

func (h *conversationEndpoints) extractPath(path string) (string, string, error) {
	trimmed := strings.TrimPrefix(path, h.prefix)
	if trimmed == path {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Conversation not found", ErrorLog: fmt.Errorf("conversation path mismatch: %s", path)}
	}
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if parts[0] == "" || len(parts) > 2 {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Conversation not found", ErrorLog: fmt.Errorf("invalid conversation path: %s", path)}
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}
