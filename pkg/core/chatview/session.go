package chatview

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/realtime"
)

// HistoryLoader fetches the recent messages of a room, oldest first
type HistoryLoader func(ctx context.Context, roomID string) ([]db.Message, error)

// Session follows one open room at a time. Opening another room closes the
// previous room's subscription before the next one starts.
type Session struct {
	feed   realtime.Feed
	load   HistoryLoader
	logger *zap.Logger
	window int
	unread *UnreadCounter

	// OnMessage, when set, is called for every push delivery that was new,
	// in arrival order; Messages gives display order. It may read the
	// session but must not call SwitchRoom or Close.
	OnMessage func(db.Message)

	// switchMu serializes SwitchRoom and Close; mu guards the fields below
	// and is never held while waiting on the pump.
	switchMu sync.Mutex
	mu       sync.Mutex
	roomID   string
	sub      *realtime.Subscription
	timeline *Timeline
	pumpDone chan struct{}
}

// NewSession creates a session for the profile selfID with no room open
func NewSession(feed realtime.Feed, load HistoryLoader, selfID string, window int, logger *zap.Logger) *Session {
	return &Session{
		feed:     feed,
		load:     load,
		logger:   logger,
		window:   window,
		unread:   NewUnreadCounter(selfID),
		timeline: NewTimeline(window),
	}
}

// SwitchRoom opens roomID. The subscription is established before history is
// loaded so nothing inserted in between is missed; overlap is removed by id.
func (s *Session) SwitchRoom(ctx context.Context, roomID string) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.closeCurrent()

	sub, err := s.feed.Subscribe(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to room %s: %w", roomID, err)
	}

	history, err := s.load(ctx, roomID)
	if err != nil {
		sub.Close()
		return fmt.Errorf("failed to load history of room %s: %w", roomID, err)
	}

	timeline := NewTimeline(s.window)
	timeline.Load(history)
	done := make(chan struct{})

	s.mu.Lock()
	s.roomID = roomID
	s.sub = sub
	s.timeline = timeline
	s.pumpDone = done
	s.mu.Unlock()

	go s.pump(sub, timeline, done)

	s.logger.Debug("Opened chat room", zap.String("room_id", roomID), zap.Int("history", len(history)))
	return nil
}

func (s *Session) pump(sub *realtime.Subscription, timeline *Timeline, done chan struct{}) {
	defer close(done)
	for msg := range sub.C {
		if !timeline.Apply(msg) {
			continue
		}
		s.unread.Observe(msg)
		if s.OnMessage != nil {
			s.OnMessage(msg)
		}
	}
}

// ApplySent adds the result of the caller's own send. A later push of the
// same message is dropped.
func (s *Session) ApplySent(msg db.Message) bool {
	s.mu.Lock()
	timeline, roomID := s.timeline, s.roomID
	s.mu.Unlock()

	if msg.RoomID != roomID {
		return false
	}
	return timeline.Apply(msg)
}

// ApplyDeleted removes a message from the open room
func (s *Session) ApplyDeleted(messageID string) bool {
	s.mu.Lock()
	timeline := s.timeline
	s.mu.Unlock()
	return timeline.Remove(messageID)
}

// Messages returns the open room's messages in order
func (s *Session) Messages() []db.Message {
	s.mu.Lock()
	timeline := s.timeline
	s.mu.Unlock()
	return timeline.Messages()
}

// RoomID returns the open room, or "" when none is open
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Unread returns the session's unread counter
func (s *Session) Unread() *UnreadCounter {
	return s.unread
}

// Close tears down the open room's subscription
func (s *Session) Close() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	s.closeCurrent()
}

// closeCurrent detaches the open room under mu, then stops its pump without
// holding mu so an OnMessage callback reading the session can finish.
func (s *Session) closeCurrent() {
	s.mu.Lock()
	sub, done, roomID := s.sub, s.pumpDone, s.roomID
	s.sub = nil
	s.pumpDone = nil
	s.roomID = ""
	s.timeline = NewTimeline(s.window)
	s.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	<-done
	s.logger.Debug("Closed chat room", zap.String("room_id", roomID))
}
