package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	readLimit = 512 * 1024
	writeWait = 10 * time.Second
)

// JoinPolicy decides whether a visitor may listen to a conversation.
type JoinPolicy interface {
	CanJoin(ctx context.Context, visitorID, conversationID string) error
}

type WSClient struct {
	Conn      *websocket.Conn
	Message   chan *WSMessage
	ID        string
	VisitorID string
	RoomID    string

	log       zerolog.Logger
	keepAlive time.Duration
	done      chan struct{}
	mu        sync.Mutex
	isClosed  bool
}

func (cl *WSClient) pingLoop() {
	ticker := time.NewTicker(cl.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			cl.mu.Unlock()

			if err != nil {
				cl.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (cl *WSClient) writeMessage() {
	defer func() {
		cl.mu.Lock()
		cl.isClosed = true
		cl.Conn.Close()
		cl.mu.Unlock()
	}()

	for {
		select {
		case <-cl.done:
			return
		case msg, ok := <-cl.Message:
			if !ok {
				return
			}

			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			_ = cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := cl.Conn.WriteMessage(websocket.TextMessage, msg.Payload)
			cl.mu.Unlock()

			if err != nil {
				cl.log.Warn().Err(err).Msg("push write failed")
				return
			}
		}
	}
}

// readMessage waits for the single join frame and then drains the
// connection until it closes. Visitors never publish through the socket.
func (cl *WSClient) readMessage(hub *Hub, policy JoinPolicy) {
	joined := false
	defer func() {
		if r := recover(); r != nil {
			cl.log.Error().Interface("panic", r).Msg("recovered in readMessage")
		}

		close(cl.done)

		if joined {
			select {
			case hub.Unregister <- cl:
			case <-hub.Done():
			}
		}
		cl.log.Debug().Str("room", cl.RoomID).Msg("visitor disconnected")
	}()

	cl.Conn.SetReadLimit(readLimit)

	for {
		_, data, err := cl.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				cl.log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		if joined {
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event != EventJoinConversation {
			continue
		}
		var join joinData
		if err := json.Unmarshal(f.Data, &join); err != nil || join.ConversationID == "" {
			continue
		}

		if policy != nil {
			if err := policy.CanJoin(context.Background(), cl.VisitorID, join.ConversationID); err != nil {
				wsJoinsRejected.Inc()
				cl.log.Warn().Err(err).Str("conversation_id", join.ConversationID).Msg("join refused")
				continue
			}
		}

		cl.RoomID = join.ConversationID
		select {
		case hub.Register <- cl:
			joined = true
		case <-hub.Done():
			return
		}
	}
}
