// Package realtime delivers newly inserted chat messages to listening clients.
package realtime

import (
	"context"
	"sync"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

const subscriptionBuffer = 64

// Feed is a push channel scoped to a chat room
type Feed interface {
	Publish(ctx context.Context, msg db.Message) error
	Subscribe(ctx context.Context, roomID string) (*Subscription, error)
}

// Subscription delivers messages for one room on C until Close is called or
// the context passed to Subscribe is cancelled. C is closed afterwards.
type Subscription struct {
	C      <-chan db.Message
	RoomID string

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSubscription starts run in its own goroutine. run must return once ctx
// is done; the channel it writes to is closed when it returns.
func NewSubscription(ctx context.Context, roomID string, run func(ctx context.Context, out chan<- db.Message)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan db.Message, subscriptionBuffer)
	sub := &Subscription{
		C:      out,
		RoomID: roomID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(out)
		run(ctx, out)
	}()

	return sub
}

// Close stops delivery and waits for the delivering goroutine to exit
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Done is closed once the subscription has stopped delivering
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// deliver forwards msg to out unless ctx is done first
func deliver(ctx context.Context, out chan<- db.Message, msg db.Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
