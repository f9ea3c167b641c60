package chatview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/realtime"
)

var t0 = time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC)

func msg(id string, offset int, sender string) db.Message {
	return db.Message{ID: id, RoomID: "room-1", SenderID: sender, Content: id, CreatedAt: t0.Add(time.Duration(offset) * time.Second)}
}

func ids(msgs []db.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestTimeline_OrdersOutOfOrderArrivals(t *testing.T) {
	tl := NewTimeline(10)

	assert.True(t, tl.Apply(msg("t2", 2, "a")))
	assert.True(t, tl.Apply(msg("t1", 1, "a")))
	assert.True(t, tl.Apply(msg("t3", 3, "a")))

	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(tl.Messages()))
}

func TestTimeline_TiesBreakByID(t *testing.T) {
	tl := NewTimeline(10)
	tl.Apply(msg("b", 1, "a"))
	tl.Apply(msg("a", 1, "a"))

	assert.Equal(t, []string{"a", "b"}, ids(tl.Messages()))
}

func TestTimeline_DropsDuplicatePush(t *testing.T) {
	tl := NewTimeline(10)
	tl.Apply(msg("m1", 1, "a"))

	sent := msg("m2", 2, "me")
	assert.True(t, tl.Apply(sent))
	assert.False(t, tl.Apply(sent))
	assert.True(t, tl.Apply(msg("m3", 3, "a")))

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(tl.Messages()))
}

func TestTimeline_BoundedRetention(t *testing.T) {
	tl := NewTimeline(3)
	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		tl.Apply(msg(id, i+1, "a"))
	}

	assert.Equal(t, []string{"m2", "m3", "m4"}, ids(tl.Messages()))

	// m1 fell out of the window; a late copy of it is older than everything held
	assert.False(t, tl.Apply(msg("m1", 1, "a")))
	assert.Equal(t, 3, tl.Len())

	tl.mu.RLock()
	_, remembered := tl.seen["m1"]
	tl.mu.RUnlock()
	assert.False(t, remembered)
}

func TestTimeline_LoadAndRemove(t *testing.T) {
	tl := NewTimeline(10)
	tl.Apply(msg("stale", 0, "a"))

	tl.Load([]db.Message{msg("h1", 1, "a"), msg("h2", 2, "a")})
	assert.Equal(t, []string{"h1", "h2"}, ids(tl.Messages()))

	assert.True(t, tl.Remove("h1"))
	assert.False(t, tl.Remove("h1"))
	assert.Equal(t, []string{"h2"}, ids(tl.Messages()))
}

func TestUnreadCounter(t *testing.T) {
	u := NewUnreadCounter("me")

	u.Observe(msg("m1", 1, "someone"))
	u.Observe(msg("m2", 2, "me"))
	u.Observe(msg("m3", 3, "someone"))
	assert.Equal(t, 2, u.Count())

	u.Open()
	assert.Equal(t, 0, u.Count())
	u.Observe(msg("m4", 4, "someone"))
	assert.Equal(t, 0, u.Count())

	u.Leave()
	u.Observe(msg("m5", 5, "someone"))
	assert.Equal(t, 1, u.Count())
}

type historyStub struct {
	mu      sync.Mutex
	byRoom  map[string][]db.Message
	callLog []string
}

func (h *historyStub) load(ctx context.Context, roomID string) ([]db.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callLog = append(h.callLog, roomID)
	return h.byRoom[roomID], nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestSession_SentThenPushedAppearsOnce(t *testing.T) {
	feed := realtime.NewMemoryFeed(zap.NewNop())
	history := &historyStub{byRoom: map[string][]db.Message{"room-1": {msg("h1", 1, "other")}}}
	s := NewSession(feed, history.load, "me", 50, zap.NewNop())
	defer s.Close()

	require.NoError(t, s.SwitchRoom(context.Background(), "room-1"))

	sent := msg("mine", 2, "me")
	assert.True(t, s.ApplySent(sent))
	require.NoError(t, feed.Publish(context.Background(), sent))

	later := msg("later", 3, "other")
	require.NoError(t, feed.Publish(context.Background(), later))

	waitFor(t, func() bool { return len(s.Messages()) == 3 })
	assert.Equal(t, []string{"h1", "mine", "later"}, ids(s.Messages()))
	assert.Equal(t, 1, s.Unread().Count())
}

func TestSession_OrdersPushesByServerTime(t *testing.T) {
	feed := realtime.NewMemoryFeed(zap.NewNop())
	history := &historyStub{byRoom: map[string][]db.Message{}}
	s := NewSession(feed, history.load, "me", 50, zap.NewNop())
	defer s.Close()

	var delivered []string
	var mu sync.Mutex
	s.OnMessage = func(m db.Message) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, m.ID)
	}

	require.NoError(t, s.SwitchRoom(context.Background(), "room-1"))
	for _, m := range []db.Message{msg("t2", 2, "x"), msg("t1", 1, "x"), msg("t3", 3, "x")} {
		require.NoError(t, feed.Publish(context.Background(), m))
	}

	waitFor(t, func() bool { return len(s.Messages()) == 3 })
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(s.Messages()))

	mu.Lock()
	assert.Equal(t, []string{"t2", "t1", "t3"}, delivered)
	mu.Unlock()
}

func TestSession_SwitchRoomKeepsOneSubscription(t *testing.T) {
	feed := realtime.NewMemoryFeed(zap.NewNop())
	history := &historyStub{byRoom: map[string][]db.Message{
		"room-1": {msg("a1", 1, "x")},
		"room-2": {{ID: "b1", RoomID: "room-2", CreatedAt: t0}},
	}}
	s := NewSession(feed, history.load, "me", 50, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.SwitchRoom(ctx, "room-1"))
	waitFor(t, func() bool { return feed.Subscribers("room-1") == 1 })

	require.NoError(t, s.SwitchRoom(ctx, "room-2"))
	waitFor(t, func() bool { return feed.Subscribers("room-1") == 0 })
	assert.Equal(t, 1, feed.Subscribers("room-2"))
	assert.Equal(t, "room-2", s.RoomID())
	assert.Equal(t, []string{"b1"}, ids(s.Messages()))

	// A push to the room we left does not leak into the open one
	require.NoError(t, feed.Publish(ctx, msg("late", 5, "x")))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"b1"}, ids(s.Messages()))

	s.Close()
	waitFor(t, func() bool { return feed.Subscribers("room-2") == 0 })
	assert.Equal(t, "", s.RoomID())
}

func TestSession_ApplySentIgnoresOtherRooms(t *testing.T) {
	feed := realtime.NewMemoryFeed(zap.NewNop())
	history := &historyStub{byRoom: map[string][]db.Message{}}
	s := NewSession(feed, history.load, "me", 50, zap.NewNop())
	defer s.Close()

	require.NoError(t, s.SwitchRoom(context.Background(), "room-2"))
	assert.False(t, s.ApplySent(msg("m1", 1, "me")))
	assert.Empty(t, s.Messages())
}

func TestSession_CloseWhileCallbackReadsSession(t *testing.T) {
	feed := realtime.NewMemoryFeed(zap.NewNop())
	history := &historyStub{byRoom: map[string][]db.Message{}}
	s := NewSession(feed, history.load, "me", 50, zap.NewNop())

	entered := make(chan struct{})
	release := make(chan struct{})
	s.OnMessage = func(m db.Message) {
		close(entered)
		<-release
		_ = s.Messages()
		_ = s.RoomID()
	}

	require.NoError(t, s.SwitchRoom(context.Background(), "room-1"))
	require.NoError(t, feed.Publish(context.Background(), msg("m1", 1, "x")))
	<-entered

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	// Close is now waiting on the pump; let the callback touch the session
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while the callback read the session")
	}
	assert.Equal(t, "", s.RoomID())
	assert.Zero(t, feed.Subscribers("room-1"))
}

func TestTimeline_RemovedMessageStaysRemoved(t *testing.T) {
	tl := NewTimeline(3)
	tl.Apply(msg("m1", 1, "a"))
	tl.Apply(msg("m2", 2, "a"))

	require.True(t, tl.Remove("m2"))
	assert.False(t, tl.Apply(msg("m2", 2, "a")), "late push of a deleted message")
	assert.Equal(t, []string{"m1"}, ids(tl.Messages()))

	// once the window has moved past it the tombstone is forgotten
	for i, id := range []string{"m3", "m4", "m5"} {
		tl.Apply(msg(id, i+3, "a"))
	}
	assert.Equal(t, []string{"m3", "m4", "m5"}, ids(tl.Messages()))
	tl.mu.RLock()
	_, kept := tl.tombstones["m2"]
	_, remembered := tl.seen["m2"]
	tl.mu.RUnlock()
	assert.False(t, kept)
	assert.False(t, remembered)
}

func TestSession_ApplyDeletedIgnoresLatePush(t *testing.T) {
	feed := realtime.NewMemoryFeed(zap.NewNop())
	history := &historyStub{byRoom: map[string][]db.Message{"room-1": {msg("h1", 1, "x"), msg("h2", 2, "x")}}}
	s := NewSession(feed, history.load, "me", 50, zap.NewNop())
	defer s.Close()

	require.NoError(t, s.SwitchRoom(context.Background(), "room-1"))
	require.True(t, s.ApplyDeleted("h2"))

	require.NoError(t, feed.Publish(context.Background(), msg("h2", 2, "x")))
	require.NoError(t, feed.Publish(context.Background(), msg("h3", 3, "x")))

	waitFor(t, func() bool { return len(s.Messages()) == 2 })
	assert.Equal(t, []string{"h1", "h3"}, ids(s.Messages()))
}
