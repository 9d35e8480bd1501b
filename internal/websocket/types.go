package websocket

import "encoding/json"

const (
	EventJoinConversation = "joinConversation"
	EventNewMessage       = "newMessage"
)

type Room struct {
	ID      string               `json:"id"`
	Clients map[string]*WSClient `json:"clients"`
}

// WSMessage is an encoded frame addressed to every client in a room.
type WSMessage struct {
	Payload   []byte `json:"payload"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinData struct {
	ConversationID string `json:"conversationId"`
}

type RoomRes struct {
	ID      string `json:"id"`
	Clients int    `json:"clients"`
}
