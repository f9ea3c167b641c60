package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/realtime"
)

const notifyChannel = "chat_messages"

// Feed is a realtime.Feed over PostgreSQL LISTEN/NOTIFY. Every subscription
// holds one pooled connection for its lifetime.
type Feed struct {
	db *DB
}

// Feed returns the LISTEN/NOTIFY push channel backed by this database
func (d *DB) Feed() *Feed {
	return &Feed{db: d}
}

// Publish notifies listeners of a newly inserted message
func (f *Feed) Publish(ctx context.Context, msg db.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err := f.db.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

// Subscribe listens for messages of one room
func (f *Feed) Subscribe(ctx context.Context, roomID string) (*realtime.Subscription, error) {
	conn, err := f.db.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	logger := f.db.logger.With(zap.String("room_id", roomID))

	return realtime.NewSubscription(ctx, roomID, func(ctx context.Context, out chan<- db.Message) {
		defer func() {
			// A connection still in LISTEN state must not return to the pool
			// usable; UNLISTEN on a fresh context, or drop it on failure.
			if _, err := conn.Exec(context.Background(), "UNLISTEN "+notifyChannel); err != nil {
				conn.Conn().Close(context.Background())
			}
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					logger.Error("Listen connection failed", zap.Error(err))
				}
				return
			}

			var msg db.Message
			if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil {
				logger.Warn("Discarding malformed notification", zap.Error(err))
				continue
			}
			if msg.RoomID != roomID {
				continue
			}

			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}), nil
}
