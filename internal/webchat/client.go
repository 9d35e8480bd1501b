package webchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxResponseBytes = 4 << 20

// Backend is the request/response side of the chat service.
type Backend interface {
	StartConversation(ctx context.Context, visitorID string) (ConversationState, error)
	FetchConversation(ctx context.Context, conversationID string) (ConversationState, error)
	PostMessage(ctx context.Context, req SendRequest) (*Message, error)
	UpdateProfile(ctx context.Context, req ProfileRequest) (*ContactProfile, error)
}

// ConversationState is a parsed start or resume response. Customer is nil
// when the backend sent no customer record.
type ConversationState struct {
	ConversationID string
	Messages       []Message
	Customer       *ContactProfile
}

type SendRequest struct {
	VisitorID      string `json:"visitorId"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type ProfileRequest struct {
	ConversationID string `json:"conversationId"`
	VisitorID      string `json:"visitorId"`
	FullName       string `json:"fullName,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	Address        string `json:"address,omitempty"`
}

type startRequest struct {
	VisitorID string `json:"visitorId"`
}

type conversationPayload struct {
	ID             flexString      `json:"id"`
	ConversationID flexString      `json:"conversationId"`
	Messages       json.RawMessage `json:"messages"`
	Customer       json.RawMessage `json:"customer"`
}

// Client talks to the chat backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// NewClient builds a Client. A nil httpClient gets one with cfg.HTTPTimeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &Client{
		baseURL: cfg.apiBase(),
		http:    httpClient,
		now:     time.Now,
	}
}

func (c *Client) StartConversation(ctx context.Context, visitorID string) (ConversationState, error) {
	data, err := c.roundTrip(ctx, http.MethodPost, "/web-chat/start", startRequest{VisitorID: visitorID})
	if err != nil {
		return ConversationState{}, newError(ErrorCodeSessionStart, msgStartFailed, fmt.Errorf("start conversation: %w", err))
	}

	var payload *conversationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ConversationState{}, newError(ErrorCodeProtocol, msgInvalidResponse, fmt.Errorf("decode start response: %w", err))
	}
	if payload == nil {
		return ConversationState{}, newError(ErrorCodeProtocol, msgInvalidResponse, errors.New("start response is empty"))
	}

	handle := firstNonEmpty(string(payload.ID), string(payload.ConversationID))
	if handle == "" {
		return ConversationState{}, newError(ErrorCodeProtocol, msgInvalidResponse, errors.New("start response has no conversation id"))
	}

	return c.state(handle, payload), nil
}

func (c *Client) FetchConversation(ctx context.Context, conversationID string) (ConversationState, error) {
	data, err := c.roundTrip(ctx, http.MethodGet, "/chat/conversations/"+url.PathEscape(conversationID), nil)
	if err != nil {
		return ConversationState{}, newError(ErrorCodeSessionResume, msgResumeFailed, fmt.Errorf("fetch conversation %s: %w", conversationID, err))
	}

	var payload *conversationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ConversationState{}, newError(ErrorCodeSessionResume, msgResumeFailed, fmt.Errorf("decode conversation %s: %w", conversationID, err))
	}
	if payload == nil {
		payload = &conversationPayload{}
	}

	return c.state(conversationID, payload), nil
}

// PostMessage returns nil when the backend answered with an empty record.
func (c *Client) PostMessage(ctx context.Context, req SendRequest) (*Message, error) {
	data, err := c.roundTrip(ctx, http.MethodPost, "/web-chat/messages", req)
	if err != nil {
		return nil, newError(ErrorCodeSend, msgSendFailed, fmt.Errorf("post message: %w", err))
	}

	msg, ok, err := decodeMessage(data, c.now())
	if err != nil {
		return nil, newError(ErrorCodeSend, msgSendFailed, fmt.Errorf("decode message: %w", err))
	}
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

// UpdateProfile returns the customer record as the backend stored it, or nil.
func (c *Client) UpdateProfile(ctx context.Context, req ProfileRequest) (*ContactProfile, error) {
	data, err := c.roundTrip(ctx, http.MethodPost, "/web-chat/profile", req)
	if err != nil {
		return nil, newError(ErrorCodeProfileSave, msgProfileSaveFailed, fmt.Errorf("update profile: %w", err))
	}
	return decodeCustomer(data), nil
}

func (c *Client) state(handle string, payload *conversationPayload) ConversationState {
	return ConversationState{
		ConversationID: handle,
		Messages:       decodeMessageList(payload.Messages, c.now()),
		Customer:       decodeCustomer(payload.Customer),
	}
}

// roundTrip performs one JSON call. Non-2xx answers become *StatusError and an
// empty body reads as JSON null.
func (c *Client) roundTrip(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("null"), nil
	}
	return data, nil
}
