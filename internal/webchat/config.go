package webchat

import (
	"strings"
	"time"
)

const (
	DefaultBaseURL   = "http://localhost:7000"
	DefaultGuestName = "Khách Web Chat"

	VisitorIDKey      = "web_chat_visitor_id_v1"
	ConversationIDKey = "web_chat_conversation_id_v1"

	defaultHTTPTimeout        = 15 * time.Second
	defaultReconnectInitial   = 500 * time.Millisecond
	defaultReconnectMax       = 30 * time.Second
	defaultKeepAlive          = 30 * time.Second
	defaultProfileSavedNotice = 3 * time.Second
)

// Config is everything a Session needs to reach the chat backend.
// Zero values fall back to local development defaults.
type Config struct {
	APIBaseURL string
	// WSBaseURL defaults to APIBaseURL.
	WSBaseURL string

	HTTPTimeout time.Duration

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	KeepAlive        time.Duration

	// GuestName is the placeholder display name the backend gives customers
	// that never introduced themselves.
	GuestName string

	ProfileSavedNotice time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		c.APIBaseURL = DefaultBaseURL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = defaultReconnectInitial
	}
	if c.ReconnectMax < c.ReconnectInitial {
		c.ReconnectMax = defaultReconnectMax
		if c.ReconnectMax < c.ReconnectInitial {
			c.ReconnectMax = c.ReconnectInitial
		}
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	if strings.TrimSpace(c.GuestName) == "" {
		c.GuestName = DefaultGuestName
	}
	if c.ProfileSavedNotice <= 0 {
		c.ProfileSavedNotice = defaultProfileSavedNotice
	}
	return c
}

func (c Config) apiBase() string {
	return strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
}

// wsBase maps the push base onto a websocket scheme.
func (c Config) wsBase() string {
	base := strings.TrimSpace(c.WSBaseURL)
	if base == "" {
		base = c.APIBaseURL
	}
	base = strings.TrimRight(base, "/")

	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
