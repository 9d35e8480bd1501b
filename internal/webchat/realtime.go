package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	eventJoinConversation = "joinConversation"
	eventNewMessage       = "newMessage"

	pushReadLimit = 512 * 1024
	pushWriteWait = 10 * time.Second
)

// Dialer opens push channel connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

type pushFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	ConversationID string `json:"conversationId"`
}

var errSubscriptionClosed = errors.New("push subscription closed")

// subscription holds the push channel for one (visitor, conversation) pair.
// It reconnects with exponential backoff until closed.
type subscription struct {
	visitorID      string
	conversationID string
	url            string

	cfg     Config
	dialer  Dialer
	log     zerolog.Logger
	deliver func(*subscription, *rawMessage)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closed  bool
}

func newSubscription(cfg Config, dialer Dialer, logger zerolog.Logger, visitorID, conversationID string, deliver func(*subscription, *rawMessage)) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	return &subscription{
		visitorID:      visitorID,
		conversationID: conversationID,
		url:            cfg.wsBase() + "/web-chat?visitorId=" + url.QueryEscape(visitorID),
		cfg:            cfg,
		dialer:         dialer,
		log:            logger.With().Str("visitor_id", visitorID).Str("conversation_id", conversationID).Logger(),
		deliver:        deliver,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

func (s *subscription) matches(visitorID, conversationID string) bool {
	return s.visitorID == visitorID && s.conversationID == conversationID
}

func (s *subscription) start() {
	s.mu.Lock()
	if s.closed || s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	pushSubscriptions.Inc()
	go s.run()
}

// Close tears the channel down and waits for the background loop to exit.
// Errors raised while closing the connection are ignored.
func (s *subscription) Close() {
	s.mu.Lock()
	if s.closed {
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.done
		}
		return
	}
	s.closed = true
	started := s.started
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		closeConn(conn)
	}
	if started {
		<-s.done
	}
}

func (s *subscription) run() {
	defer close(s.done)
	defer pushSubscriptions.Dec()

	backoff := s.cfg.ReconnectInitial
	for {
		joined, err := s.connect()
		if s.ctx.Err() != nil {
			return
		}
		if joined {
			backoff = s.cfg.ReconnectInitial
		}
		s.log.Debug().Err(err).Dur("backoff", backoff).Msg("push channel dropped, reconnecting")

		timer := time.NewTimer(backoff)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		pushReconnects.Inc()
		backoff *= 2
		if backoff > s.cfg.ReconnectMax {
			backoff = s.cfg.ReconnectMax
		}
	}
}

// connect runs one connection until it drops. joined reports whether the
// join frame went out, which resets the backoff.
func (s *subscription) connect() (joined bool, err error) {
	conn, _, err := s.dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial push channel: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		closeConn(conn)
		return false, errSubscriptionClosed
	}
	s.conn = conn
	s.mu.Unlock()
	defer s.release(conn)

	conn.SetReadLimit(pushReadLimit)

	join := pushFrame{Event: eventJoinConversation}
	if join.Data, err = json.Marshal(joinPayload{ConversationID: s.conversationID}); err != nil {
		return false, fmt.Errorf("encode join frame: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
	if err := conn.WriteJSON(join); err != nil {
		return false, fmt.Errorf("join conversation: %w", err)
	}
	s.log.Debug().Msg("push channel joined")

	stop := make(chan struct{})
	defer close(stop)
	go s.keepAlive(conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var frame pushFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Debug().Err(err).Msg("ignoring malformed push frame")
			continue
		}
		if frame.Event != eventNewMessage {
			continue
		}

		var raw *rawMessage
		if err := json.Unmarshal(frame.Data, &raw); err != nil || raw == nil {
			continue
		}
		s.deliver(s, raw)
	}
}

func (s *subscription) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pushWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *subscription) release(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	closeConn(conn)
}

func closeConn(conn *websocket.Conn) {
	defer func() {
		_ = recover()
	}()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.Close()
}
