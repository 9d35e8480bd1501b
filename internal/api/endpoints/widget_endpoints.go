package endpoints

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/omnichat/webchat/internal/dto"
	conversationservice "github.com/omnichat/webchat/internal/service/conversation"
	"github.com/omnichat/webchat/internal/websocket"
)

// WidgetEndpoints serve the anonymous visitor side of the chat.
type WidgetEndpoints interface {
	Start(http.ResponseWriter, *http.Request) error
	Messages(http.ResponseWriter, *http.Request) error
	Profile(http.ResponseWriter, *http.Request) error
}

type widgetEndpoints struct {
	service   *conversationservice.Service
	publisher websocket.Publisher
	log       zerolog.Logger
}

func NewWidgetEndpoints(service *conversationservice.Service, publisher websocket.Publisher, logger zerolog.Logger) WidgetEndpoints {
	return &widgetEndpoints{
		service:   service,
		publisher: publisher,
		log:       logger,
	}
}

func (h *widgetEndpoints) Start(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleStart,
	})
}

func (h *widgetEndpoints) Messages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handlePostMessage,
	})
}

func (h *widgetEndpoints) Profile(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleUpdateProfile,
	})
}

func (h *widgetEndpoints) handleStart(w http.ResponseWriter, r *http.Request) error {
	var req dto.StartConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	result, err := h.service.StartConversation(r.Context(), req.VisitorID)
	if err != nil {
		return mapConversationServiceError(err)
	}

	return WriteJSON(w, http.StatusOK, toConversationResponse(result))
}

func (h *widgetEndpoints) handlePostMessage(w http.ResponseWriter, r *http.Request) error {
	var req dto.PostVisitorMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	result, err := h.service.PostVisitorMessage(r.Context(), req.VisitorID, req.ConversationID, req.Content)
	if err != nil {
		return mapConversationServiceError(err)
	}

	publishMessage(r.Context(), h.publisher, h.log, result.Message)

	return WriteJSON(w, http.StatusCreated, toMessageResponse(result.Message))
}

func (h *widgetEndpoints) handleUpdateProfile(w http.ResponseWriter, r *http.Request) error {
	var req dto.UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	visitor, err := h.service.UpdateProfile(r.Context(), conversationservice.ProfileParams{
		VisitorID:      req.VisitorID,
		ConversationID: req.ConversationID,
		FullName:       req.FullName,
		Phone:          req.Phone,
		Email:          req.Email,
		Address:        req.Address,
	})
	if err != nil {
		return mapConversationServiceError(err)
	}

	return WriteJSON(w, http.StatusOK, toCustomerResponse(visitor))
}
