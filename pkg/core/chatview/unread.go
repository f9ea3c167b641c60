package chatview

import (
	"sync"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

// UnreadCounter counts inbound messages from other people while the chat
// surface is not the active view
type UnreadCounter struct {
	mu     sync.Mutex
	selfID string
	active bool
	count  int
}

// NewUnreadCounter creates a counter for the profile selfID
func NewUnreadCounter(selfID string) *UnreadCounter {
	return &UnreadCounter{selfID: selfID}
}

// Observe records an inbound push delivery
func (u *UnreadCounter) Observe(msg db.Message) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.active || msg.SenderID == u.selfID {
		return
	}
	u.count++
}

// Open marks the chat surface active and clears the count
func (u *UnreadCounter) Open() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.active = true
	u.count = 0
}

// Leave marks the chat surface inactive
func (u *UnreadCounter) Leave() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.active = false
}

func (u *UnreadCounter) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}
