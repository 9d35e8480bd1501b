package dto

import "encoding/json"

type CustomerResponse struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
}

type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	SenderType     string `json:"senderType"`
	SenderID       string `json:"senderId,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

// ConversationResponse carries the conversation id under both names the
// widget accepts.
type ConversationResponse struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Status         string            `json:"status"`
	Messages       []MessageResponse `json:"messages"`
	Customer       *CustomerResponse `json:"customer,omitempty"`
}

type StartConversationRequest struct {
	VisitorID string `json:"visitorId"`
}

type PostVisitorMessageRequest struct {
	VisitorID      string `json:"visitorId"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type PostAgentMessageRequest struct {
	Content    string `json:"content"`
	SenderType string `json:"senderType,omitempty"`
	SenderID   string `json:"senderId,omitempty"`
}

type UpdateProfileRequest struct {
	VisitorID      string `json:"visitorId"`
	ConversationID string `json:"conversationId"`
	FullName       string `json:"fullName,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	Address        string `json:"address,omitempty"`
}

// PushEvent is one frame on the realtime channel.
type PushEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type JoinConversationData struct {
	ConversationID string `json:"conversationId"`
}
