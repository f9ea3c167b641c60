// Package chatview keeps a client's view of a chat room consistent while
// messages arrive both from direct calls and from the push feed.
package chatview

import (
	"sort"
	"sync"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

// DefaultWindow is how many messages a timeline holds when no limit is given
const DefaultWindow = 200

// Timeline is a bounded list of messages ordered by (CreatedAt, ID). Each id
// appears at most once; ids are forgotten once their message falls out of the
// window, and anything older than the window is ignored. Removed messages
// leave a tombstone so a late push of them is not shown again.
type Timeline struct {
	mu         sync.RWMutex
	limit      int
	messages   []db.Message
	seen       map[string]struct{}
	tombstones map[string]db.Message
}

// NewTimeline creates an empty timeline holding at most limit messages
func NewTimeline(limit int) *Timeline {
	if limit <= 0 {
		limit = DefaultWindow
	}
	return &Timeline{limit: limit, seen: make(map[string]struct{}), tombstones: make(map[string]db.Message)}
}

// Before reports whether a sorts ahead of b in a timeline
func Before(a, b db.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Apply inserts msg in order. It returns false when the message is already
// present or older than everything the full window holds.
func (t *Timeline) Apply(msg db.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.apply(msg)
}

func (t *Timeline) apply(msg db.Message) bool {
	if _, dup := t.seen[msg.ID]; dup {
		return false
	}
	if len(t.messages) >= t.limit && Before(msg, t.messages[0]) {
		return false
	}

	i := sort.Search(len(t.messages), func(i int) bool { return Before(msg, t.messages[i]) })
	t.messages = append(t.messages, db.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = msg
	t.seen[msg.ID] = struct{}{}

	t.trim()
	return true
}

// trim drops the oldest messages beyond the window and forgets their ids,
// along with tombstones that are now older than the window
func (t *Timeline) trim() {
	excess := len(t.messages) - t.limit
	if excess <= 0 {
		return
	}
	for _, old := range t.messages[:excess] {
		delete(t.seen, old.ID)
	}
	t.messages = append([]db.Message(nil), t.messages[excess:]...)

	oldest := t.messages[0]
	for id, dead := range t.tombstones {
		if Before(dead, oldest) {
			delete(t.tombstones, id)
			delete(t.seen, id)
		}
	}
}

// pruneTombstones keeps at most limit tombstones, dropping the oldest
func (t *Timeline) pruneTombstones() {
	for len(t.tombstones) > t.limit {
		var oldest *db.Message
		for _, dead := range t.tombstones {
			if oldest == nil || Before(dead, *oldest) {
				oldest = &dead
			}
		}
		delete(t.tombstones, oldest.ID)
		delete(t.seen, oldest.ID)
	}
}

// Load replaces the contents with a history page
func (t *Timeline) Load(history []db.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = nil
	t.seen = make(map[string]struct{}, len(history))
	t.tombstones = make(map[string]db.Message)
	for _, msg := range history {
		t.apply(msg)
	}
}

// Remove drops a message, e.g. after its sender deleted it. The id stays
// known until the window moves past it.
func (t *Timeline) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, msg := range t.messages {
		if msg.ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			t.tombstones[id] = msg
			t.pruneTombstones()
			return true
		}
	}
	return false
}

// Messages returns a copy of the ordered messages
func (t *Timeline) Messages() []db.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]db.Message(nil), t.messages...)
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
