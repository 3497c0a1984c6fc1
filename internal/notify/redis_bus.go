package notify

import (
	"context"
	"encoding/json"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel shared by every API instance.
const DefaultChannel = "dm:notify"

// envelope is what travels over the bus.
type envelope struct {
	UserID  uint64          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBus fans notifications out to every instance through Redis pub/sub.
// Each instance runs Run and delivers to the users connected to its own
// hub, so the instance handling the request need not hold the socket.
type RedisBus struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
	logger  echo.Logger
}

func NewRedisBus(rdb *redis.Client, hub *Hub, logger echo.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, hub: hub, channel: DefaultChannel, logger: logger}
}

// Notify publishes msg for userID.
func (b *RedisBus) Notify(ctx context.Context, userID uint64, msg Message) error {
	body, err := encodeEnvelope(userID, msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, body).Err()
}

// Run subscribes to the bus and delivers messages until ctx ends.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			userID, payload, err := decodeEnvelope([]byte(m.Payload))
			if err != nil {
				b.logger.Warnf("notify: bad bus message: %v", err)
				continue
			}
			b.hub.Send(userID, payload)
		}
	}
}

func encodeEnvelope(userID uint64, msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{UserID: userID, Payload: payload})
}

func decodeEnvelope(b []byte) (uint64, []byte, error) {
	var e envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return 0, nil, err
	}
	return e.UserID, e.Payload, nil
}
