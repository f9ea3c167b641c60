package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/db/memdb"
	"github.com/freestylevancouver/volunteer-portal/pkg/realtime"
)

type failingFeed struct{}

func (failingFeed) Publish(ctx context.Context, msg db.Message) error {
	return errors.New("feed down")
}

func (failingFeed) Subscribe(ctx context.Context, roomID string) (*realtime.Subscription, error) {
	return nil, errors.New("feed down")
}

func setupTeamRoom(t *testing.T, store *memdb.Store) (*db.ChatRoom, *db.Profile, *db.Profile) {
	t.Helper()
	register(t, store, admin, "Ada")
	vol := register(t, store, volunteer, "Vera")
	oth := register(t, store, other, "Otto")

	room, err := CreateTeamRoom(context.Background(), store, zap.NewNop(), admin, TeamRoomInput{
		Name:      "Race crew",
		MemberIDs: []string{vol.ID},
	})
	require.NoError(t, err)
	return room, vol, oth
}

func TestSendMessage_PublishesToFeed(t *testing.T) {
	store := memdb.New()
	feed := realtime.NewMemoryFeed(zap.NewNop())
	room, vol, _ := setupTeamRoom(t, store)

	sub, err := feed.Subscribe(context.Background(), room.ID)
	require.NoError(t, err)
	defer sub.Close()

	msg, err := SendMessage(context.Background(), store, feed, zap.NewNop(), volunteer, DefaultChatLimits(), room.ID, "  see you <b>there</b> ")
	require.NoError(t, err)
	assert.Equal(t, "see you there", msg.Content)
	assert.Equal(t, vol.ID, msg.SenderID)
	assert.Equal(t, "Vera Tester", msg.SenderName)

	select {
	case pushed := <-sub.C:
		assert.Equal(t, msg.ID, pushed.ID)
	case <-time.After(time.Second):
		t.Fatal("message was not published")
	}
}

func TestSendMessage_Rejections(t *testing.T) {
	store := memdb.New()
	room, _, _ := setupTeamRoom(t, store)
	ctx := context.Background()
	limits := DefaultChatLimits()

	_, err := SendMessage(ctx, store, nil, zap.NewNop(), volunteer, limits, room.ID, "   ")
	assert.ErrorIs(t, err, db.ErrEmptyMessage)

	_, err = SendMessage(ctx, store, nil, zap.NewNop(), volunteer, limits, room.ID, "<script>x</script>")
	assert.ErrorIs(t, err, db.ErrEmptyMessage)

	_, err = SendMessage(ctx, store, nil, zap.NewNop(), other, limits, room.ID, "hello")
	assert.ErrorIs(t, err, db.ErrNotAMember)

	_, err = SendMessage(ctx, store, nil, zap.NewNop(), volunteer, limits, db.BroadcastRoomID, "hello all")
	assert.ErrorIs(t, err, db.ErrForbidden)

	_, err = SendMessage(ctx, store, nil, zap.NewNop(), admin, limits, db.BroadcastRoomID, "Season starts Saturday")
	assert.NoError(t, err)
}

func TestSendMessage_CapsLength(t *testing.T) {
	store := memdb.New()
	room, _, _ := setupTeamRoom(t, store)

	msg, err := SendMessage(context.Background(), store, nil, zap.NewNop(), volunteer, DefaultChatLimits(), room.ID, strings.Repeat("a", 1500))
	require.NoError(t, err)
	assert.Len(t, msg.Content, MaxMessageLength)

	msg, err = SendMessage(context.Background(), store, nil, zap.NewNop(), volunteer, ChatLimits{MaxMessageLength: 10}, room.ID, strings.Repeat("b", 50))
	require.NoError(t, err)
	assert.Len(t, msg.Content, 10)
}

func TestSendMessage_PublishFailureStillSends(t *testing.T) {
	store := memdb.New()
	room, _, _ := setupTeamRoom(t, store)

	msg, err := SendMessage(context.Background(), store, failingFeed{}, zap.NewNop(), volunteer, DefaultChatLimits(), room.ID, "hello")
	require.NoError(t, err)

	stored, err := store.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Content)
}

func TestHistory(t *testing.T) {
	store := memdb.New()
	room, _, _ := setupTeamRoom(t, store)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := SendMessage(ctx, store, nil, zap.NewNop(), volunteer, DefaultChatLimits(), room.ID, text)
		require.NoError(t, err)
	}

	msgs, err := History(ctx, store, zap.NewNop(), volunteer, DefaultChatLimits(), room.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Content)
	assert.Equal(t, "four", msgs[1].Content)

	msgs, err = History(ctx, store, zap.NewNop(), volunteer, ChatLimits{HistoryLimit: 3}, room.ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	_, err = History(ctx, store, zap.NewNop(), other, DefaultChatLimits(), room.ID, 0)
	assert.ErrorIs(t, err, db.ErrNotAMember)
}

func TestDeleteOwnMessage_OnlySender(t *testing.T) {
	store := memdb.New()
	room, _, _ := setupTeamRoom(t, store)
	ctx := context.Background()

	msg, err := SendMessage(ctx, store, nil, zap.NewNop(), volunteer, DefaultChatLimits(), room.ID, "mine")
	require.NoError(t, err)

	err = DeleteOwnMessage(ctx, store, zap.NewNop(), admin, msg.ID)
	assert.ErrorIs(t, err, db.ErrNotSender)

	msgs, err := History(ctx, store, zap.NewNop(), admin, DefaultChatLimits(), room.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)

	require.NoError(t, DeleteOwnMessage(ctx, store, zap.NewNop(), volunteer, msg.ID))

	err = DeleteOwnMessage(ctx, store, zap.NewNop(), volunteer, msg.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestCreateTeamRoom(t *testing.T) {
	store := memdb.New()
	adminProfile := register(t, store, admin, "Ada")
	vol := register(t, store, volunteer, "Vera")
	ctx := context.Background()

	room, err := CreateTeamRoom(ctx, store, zap.NewNop(), admin, TeamRoomInput{
		Name:        "Coaches",
		Description: "Weekend coordination",
		MemberIDs:   []string{vol.ID, vol.ID, adminProfile.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, db.RoomKindTeam, room.Kind)
	assert.Equal(t, adminProfile.ID, room.CreatedBy)

	rooms, err := ListRooms(ctx, store, volunteer)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, db.BroadcastRoomID, rooms[0].ID)
	assert.Equal(t, room.ID, rooms[1].ID)
}

func TestCreateTeamRoom_AllOrNothing(t *testing.T) {
	store := memdb.New()
	register(t, store, admin, "Ada")
	ctx := context.Background()

	_, err := CreateTeamRoom(ctx, store, zap.NewNop(), admin, TeamRoomInput{Name: "Ghosts", MemberIDs: []string{"no-such-profile"}})
	require.Error(t, err)

	rooms, err := ListRooms(ctx, store, admin)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestCreateTeamRoom_Validation(t *testing.T) {
	store := memdb.New()

	_, err := CreateTeamRoom(context.Background(), store, zap.NewNop(), volunteer, TeamRoomInput{Name: "x"})
	assert.ErrorIs(t, err, db.ErrForbidden)

	_, err = CreateTeamRoom(context.Background(), store, zap.NewNop(), admin, TeamRoomInput{Name: "  "})
	assert.True(t, db.IsValidation(err))
}

func TestAddRoomMember(t *testing.T) {
	store := memdb.New()
	room, _, oth := setupTeamRoom(t, store)
	ctx := context.Background()

	require.NoError(t, AddRoomMember(ctx, store, zap.NewNop(), admin, room.ID, oth.ID, ""))

	_, err := SendMessage(ctx, store, nil, zap.NewNop(), other, DefaultChatLimits(), room.ID, "joined")
	assert.NoError(t, err)

	assert.ErrorIs(t, AddRoomMember(ctx, store, zap.NewNop(), admin, "missing", oth.ID, ""), db.ErrNotFound)
	assert.True(t, db.IsValidation(AddRoomMember(ctx, store, zap.NewNop(), admin, room.ID, oth.ID, "guest")))
	assert.ErrorIs(t, AddRoomMember(ctx, store, zap.NewNop(), volunteer, room.ID, oth.ID, ""), db.ErrForbidden)
}

func TestWatchRoom(t *testing.T) {
	store := memdb.New()
	feed := realtime.NewMemoryFeed(zap.NewNop())
	room, _, _ := setupTeamRoom(t, store)

	_, err := WatchRoom(context.Background(), store, feed, zap.NewNop(), other, room.ID)
	assert.ErrorIs(t, err, db.ErrNotAMember)
	assert.Equal(t, 0, feed.Subscribers(room.ID))

	sub, err := WatchRoom(context.Background(), store, feed, zap.NewNop(), volunteer, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Subscribers(room.ID))

	sub.Close()
	assert.Equal(t, 0, feed.Subscribers(room.ID))
}
