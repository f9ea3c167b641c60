package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

// MemoryFeed is an in-process Feed for tests and single-process development
type MemoryFeed struct {
	mu     sync.Mutex
	rooms  map[string]map[chan db.Message]struct{}
	logger *zap.Logger
}

// NewMemoryFeed creates an empty in-process feed
func NewMemoryFeed(logger *zap.Logger) *MemoryFeed {
	return &MemoryFeed{
		rooms:  make(map[string]map[chan db.Message]struct{}),
		logger: logger,
	}
}

// Publish hands msg to every current subscriber of its room. A subscriber
// whose buffer is full misses the message.
func (f *MemoryFeed) Publish(ctx context.Context, msg db.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for in := range f.rooms[msg.RoomID] {
		select {
		case in <- msg:
		default:
			f.logger.Warn("Dropping message for slow subscriber",
				zap.String("room_id", msg.RoomID),
				zap.String("message_id", msg.ID))
		}
	}
	return nil
}

// Subscribe registers a listener on a room
func (f *MemoryFeed) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	in := make(chan db.Message, subscriptionBuffer)

	f.mu.Lock()
	if f.rooms[roomID] == nil {
		f.rooms[roomID] = make(map[chan db.Message]struct{})
	}
	f.rooms[roomID][in] = struct{}{}
	f.mu.Unlock()

	return NewSubscription(ctx, roomID, func(ctx context.Context, out chan<- db.Message) {
		defer f.unsubscribe(roomID, in)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-in:
				if !deliver(ctx, out, msg) {
					return
				}
			}
		}
	}), nil
}

// Subscribers returns how many listeners a room currently has
func (f *MemoryFeed) Subscribers(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rooms[roomID])
}

func (f *MemoryFeed) unsubscribe(roomID string, in chan db.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.rooms[roomID], in)
	if len(f.rooms[roomID]) == 0 {
		delete(f.rooms, roomID)
	}
}
