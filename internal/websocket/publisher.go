package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const DefaultChannelPrefix = "webchat:room:"

// Publisher delivers an event to every visitor listening to a conversation.
type Publisher interface {
	Publish(ctx context.Context, roomID, event string, data interface{}) error
}

// EncodeEvent builds the frame pushed to visitors.
func EncodeEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("websocket publish: marshal payload: %w", err)
	}
	return json.Marshal(frame{Event: event, Data: raw})
}

// LocalPublisher hands frames straight to an in-process hub.
type LocalPublisher struct {
	hub *Hub
}

func NewLocalPublisher(hub *Hub) *LocalPublisher {
	return &LocalPublisher{hub: hub}
}

func (p *LocalPublisher) Publish(ctx context.Context, roomID, event string, data interface{}) error {
	if roomID == "" {
		return fmt.Errorf("websocket publish: roomID required")
	}
	payload, err := EncodeEvent(event, data)
	if err != nil {
		return err
	}
	return broadcast(ctx, p.hub, roomID, payload)
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher fans frames out through Redis so every server instance
// subscribed with SubscribeRedis delivers them to its own visitors.
type RedisPublisher struct {
	client redisPublisher
	prefix string
}

func NewRedisPublisher(client redisPublisher, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, roomID, event string, data interface{}) error {
	if roomID == "" {
		return fmt.Errorf("websocket publish: roomID required")
	}
	if p.client == nil {
		return fmt.Errorf("websocket publish: redis client not initialised")
	}

	payload, err := EncodeEvent(event, data)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.prefix+roomID, string(payload)).Err(); err != nil {
		return fmt.Errorf("websocket publish: redis publish: %w", err)
	}
	return nil
}

// SubscribeRedis relays every frame published under prefix into the hub
// until ctx is cancelled.
func SubscribeRedis(ctx context.Context, client *redis.Client, prefix string, hub *Hub, logger zerolog.Logger) error {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}

	sub := client.PSubscribe(ctx, prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("websocket subscribe: %w", err)
	}
	logger.Info().Str("pattern", prefix+"*").Msg("subscribed to redis fan-out")

	relay(ctx, sub.Channel(), prefix, hub, logger)
	return nil
}

func relay(ctx context.Context, ch <-chan *redis.Message, prefix string, hub *Hub, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			roomID := strings.TrimPrefix(msg.Channel, prefix)
			if roomID == "" || roomID == msg.Channel {
				continue
			}
			if err := broadcast(ctx, hub, roomID, []byte(msg.Payload)); err != nil {
				logger.Debug().Err(err).Str("room", roomID).Msg("relay stopped")
				return
			}
		}
	}
}

func broadcast(ctx context.Context, hub *Hub, roomID string, payload []byte) error {
	msg := &WSMessage{
		Payload:   payload,
		RoomID:    roomID,
		Timestamp: time.Now().Unix(),
	}
	select {
	case hub.Broadcast <- msg:
		return nil
	case <-hub.Done():
		return fmt.Errorf("websocket publish: hub stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}
