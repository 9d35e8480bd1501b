package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultKeepAlive = 30 * time.Second

type Handler struct {
	hub       *Hub
	policy    JoinPolicy
	upgrader  websocket.Upgrader
	log       zerolog.Logger
	keepAlive time.Duration
}

// NewHandler serves visitor push connections. An empty origin list or a "*"
// entry accepts any origin.
func NewHandler(h *Hub, policy JoinPolicy, logger zerolog.Logger, allowedOrigins []string) *Handler {
	return &Handler{
		hub:    h,
		policy: policy,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log:       logger.With().Str("component", "ws").Logger(),
		keepAlive: defaultKeepAlive,
	}
}

func (h *Handler) SetKeepAlive(d time.Duration) {
	if d > 0 {
		h.keepAlive = d
	}
}

func (h *Handler) Hub() *Hub {
	return h.hub
}

// ServeVisitor upgrades GET /web-chat?visitorId=... into a push connection.
// The connection joins a room only after the visitor sends a join frame.
func (h *Handler) ServeVisitor(w http.ResponseWriter, r *http.Request) {
	visitorID := strings.TrimSpace(r.URL.Query().Get("visitorId"))
	if visitorID == "" {
		http.Error(w, "visitorId is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	id := uuid.NewString()
	cl := &WSClient{
		Conn:      conn,
		Message:   make(chan *WSMessage, 16),
		ID:        id,
		VisitorID: visitorID,
		log:       h.log.With().Str("client_id", id).Str("visitor_id", visitorID).Logger(),
		keepAlive: h.keepAlive,
		done:      make(chan struct{}),
	}

	go cl.pingLoop()
	go cl.writeMessage()
	go cl.readMessage(h.hub, h.policy)
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.hub.Snapshot()
	if rooms == nil {
		rooms = make([]RoomRes, 0)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rooms)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
