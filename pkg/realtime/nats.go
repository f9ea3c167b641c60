package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

const subjectPrefix = "chat.room."

// NATSFeed carries chat messages over NATS, one subject per room
type NATSFeed struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSFeed connects to a NATS server
func NewNATSFeed(url string, logger *zap.Logger) (*NATSFeed, error) {
	conn, err := nats.Connect(url,
		nats.Name("volunteer-portal"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSFeed{conn: conn, logger: logger}, nil
}

// Close drains and closes the connection
func (f *NATSFeed) Close() error {
	return f.conn.Drain()
}

// RoomSubject returns the subject messages for a room are published on
func RoomSubject(roomID string) string {
	return subjectPrefix + roomID
}

// Publish sends msg on its room's subject
func (f *NATSFeed) Publish(ctx context.Context, msg db.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := f.conn.Publish(RoomSubject(msg.RoomID), data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe listens on a room's subject
func (f *NATSFeed) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	msgs := make(chan *nats.Msg, subscriptionBuffer)
	natsSub, err := f.conn.ChanSubscribe(RoomSubject(roomID), msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", RoomSubject(roomID), err)
	}

	return NewSubscription(ctx, roomID, func(ctx context.Context, out chan<- db.Message) {
		defer natsSub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case raw := <-msgs:
				var msg db.Message
				if err := json.Unmarshal(raw.Data, &msg); err != nil {
					f.logger.Warn("Discarding malformed chat message",
						zap.String("subject", raw.Subject), zap.Error(err))
					continue
				}
				if !deliver(ctx, out, msg) {
					return
				}
			}
		}
	}), nil
}
