package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
	"github.com/freestylevancouver/volunteer-portal/pkg/metrics"
	"github.com/freestylevancouver/volunteer-portal/pkg/realtime"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// ChatStore is what the chat operations need from the database
type ChatStore interface {
	db.ProfileStore
	db.ChatStore
}

// ChatLimits bounds history reads and message size
type ChatLimits struct {
	HistoryLimit     int
	MaxMessageLength int
}

// DefaultChatLimits returns the limits used when none are configured
func DefaultChatLimits() ChatLimits {
	return ChatLimits{HistoryLimit: DefaultHistoryLimit, MaxMessageLength: MaxMessageLength}
}

func (l ChatLimits) normalized() ChatLimits {
	if l.HistoryLimit <= 0 || l.HistoryLimit > MaxHistoryLimit {
		l.HistoryLimit = DefaultHistoryLimit
	}
	if l.MaxMessageLength <= 0 || l.MaxMessageLength > MaxMessageLength {
		l.MaxMessageLength = MaxMessageLength
	}
	return l
}

// ListRooms returns the rooms the caller belongs to
func ListRooms(ctx context.Context, store ChatStore, caller *identity.Identity) ([]db.ChatRoom, error) {
	profile, err := resolveProfile(ctx, store, caller)
	if err != nil {
		return nil, err
	}

	rooms, err := store.ListRoomsForProfile(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat rooms: %w", err)
	}
	return rooms, nil
}

// History returns the most recent messages of a room, oldest first. A
// non-positive limit uses the configured default.
func History(ctx context.Context, store ChatStore, logger *zap.Logger, caller *identity.Identity, limits ChatLimits, roomID string, limit int) ([]db.Message, error) {
	profile, err := resolveProfile(ctx, store, caller)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, store, roomID, profile.ID); err != nil {
		return nil, err
	}

	limits = limits.normalized()
	if limit <= 0 {
		limit = limits.HistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	messages, err := store.RecentMessages(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for %s: %w", roomID, err)
	}

	logger.Debug("Loaded chat history", zap.String("room_id", roomID), zap.Int("count", len(messages)))
	return messages, nil
}

// SendMessage stores a message from the caller and publishes it on the feed.
// Only admins may post to the broadcast room. A publish failure is logged and
// does not fail the send; listeners recover the message from history.
func SendMessage(ctx context.Context, store ChatStore, feed realtime.Feed, logger *zap.Logger, caller *identity.Identity, limits ChatLimits, roomID, content string) (msg *db.Message, err error) {
	defer func() { metrics.RecordMessage(err) }()

	profile, err := resolveProfile(ctx, store, caller)
	if err != nil {
		return nil, err
	}

	limits = limits.normalized()
	content = SanitizeText(content, limits.MaxMessageLength)
	if content == "" {
		return nil, db.ErrEmptyMessage
	}

	if err := requireMember(ctx, store, roomID, profile.ID); err != nil {
		return nil, err
	}

	room, err := store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", roomID, err)
	}
	if room.Kind == db.RoomKindBroadcast && !caller.Admin {
		return nil, db.ErrForbidden
	}

	msg, err = store.InsertMessage(ctx, &db.Message{
		ID:       uuid.New().String(),
		RoomID:   roomID,
		SenderID: profile.ID,
		Content:  content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	logger.Debug("Message sent", zap.String("room_id", roomID), zap.String("message_id", msg.ID))

	if feed != nil {
		if err := feed.Publish(ctx, *msg); err != nil {
			logger.Warn("Failed to publish message", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	return msg, nil
}

// DeleteOwnMessage deletes a message the caller sent
func DeleteOwnMessage(ctx context.Context, store ChatStore, logger *zap.Logger, caller *identity.Identity, messageID string) error {
	profile, err := resolveProfile(ctx, store, caller)
	if err != nil {
		return err
	}

	msg, err := store.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load message %s: %w", messageID, err)
	}
	if msg.SenderID != profile.ID {
		return db.ErrNotSender
	}

	if err := store.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}

	logger.Info("Message deleted", zap.String("room_id", msg.RoomID), zap.String("message_id", messageID))
	return nil
}

// TeamRoomInput describes a new team room
type TeamRoomInput struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	MemberIDs   []string `json:"member_ids"`
}

// CreateTeamRoom creates a team room and its memberships in one step. The
// creator joins as owner when they have a profile. Admin only.
func CreateTeamRoom(ctx context.Context, store ChatStore, logger *zap.Logger, caller *identity.Identity, input TeamRoomInput) (*db.ChatRoom, error) {
	if err := identity.RequireAdmin(caller); err != nil {
		return nil, err
	}

	input.Name = SanitizeText(input.Name, MaxFieldLength)
	input.Description = SanitizeText(input.Description, MaxFieldLength)
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	room := &db.ChatRoom{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Kind:        db.RoomKindTeam,
		Description: input.Description,
	}

	var members []db.ChatRoomMember
	seen := make(map[string]bool)

	creator, err := resolveProfile(ctx, store, caller)
	switch {
	case err == nil:
		room.CreatedBy = creator.ID
		members = append(members, db.ChatRoomMember{ProfileID: creator.ID, Role: db.MemberRoleOwner})
		seen[creator.ID] = true
	case !errors.Is(err, db.ErrNoProfile):
		return nil, err
	}

	for _, id := range input.MemberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, db.ChatRoomMember{ProfileID: id, Role: db.MemberRoleMember})
	}
	for i := range members {
		members[i].RoomID = room.ID
	}

	saved, err := store.CreateRoomWithMembers(ctx, room, members)
	if err != nil {
		return nil, fmt.Errorf("failed to create team room: %w", err)
	}

	logger.Info("Team room created",
		zap.String("room_id", saved.ID),
		zap.String("name", saved.Name),
		zap.Int("members", len(members)))
	return saved, nil
}

// AddRoomMember adds a profile to an existing room. Admin only.
func AddRoomMember(ctx context.Context, store ChatStore, logger *zap.Logger, caller *identity.Identity, roomID, profileID string, role db.MemberRole) error {
	if err := identity.RequireAdmin(caller); err != nil {
		return err
	}
	if role == "" {
		role = db.MemberRoleMember
	}
	if role != db.MemberRoleMember && role != db.MemberRoleOwner {
		return db.NewValidationError("role", "must be one of owner, member")
	}

	if _, err := store.GetRoom(ctx, roomID); err != nil {
		return fmt.Errorf("failed to load room %s: %w", roomID, err)
	}

	if err := store.AddMember(ctx, db.ChatRoomMember{RoomID: roomID, ProfileID: profileID, Role: role}); err != nil {
		return fmt.Errorf("failed to add member to %s: %w", roomID, err)
	}

	logger.Info("Room member added", zap.String("room_id", roomID), zap.String("profile_id", profileID))
	return nil
}

// WatchRoom subscribes the caller to a room's live messages. The
// subscription ends when ctx is done or it is closed.
func WatchRoom(ctx context.Context, store ChatStore, feed realtime.Feed, logger *zap.Logger, caller *identity.Identity, roomID string) (*realtime.Subscription, error) {
	profile, err := resolveProfile(ctx, store, caller)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, store, roomID, profile.ID); err != nil {
		return nil, fmt.Errorf("failed to watch room %s: %w", roomID, err)
	}

	sub, err := feed.Subscribe(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", roomID, err)
	}

	logger.Debug("Watching room", zap.String("room_id", roomID), zap.String("profile_id", profile.ID))
	return sub, nil
}

func requireMember(ctx context.Context, store db.ChatStore, roomID, profileID string) error {
	member, err := store.IsMember(ctx, roomID, profileID)
	if err != nil {
		return fmt.Errorf("failed to check membership of %s: %w", roomID, err)
	}
	if !member {
		return db.ErrNotAMember
	}
	return nil
}
