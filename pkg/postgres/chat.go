package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

const roomColumns = `r.id, r.name, r.kind, r.description, COALESCE(r.created_by, ''), r.created_at`

func scanRoom(row pgx.Row) (*db.ChatRoom, error) {
	var r db.ChatRoom
	var kind string
	if err := row.Scan(&r.ID, &r.Name, &kind, &r.Description, &r.CreatedBy, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Kind = db.RoomKind(kind)
	return &r, nil
}

const messageColumns = `m.id, m.room_id, m.sender_id, COALESCE(NULLIF(trim(p.first_name || ' ' || p.last_name), ''), 'Unknown'), m.content, m.created_at`

func scanMessage(row pgx.Row) (*db.Message, error) {
	var m db.Message
	if err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListRoomsForProfile retrieves the rooms a profile is a member of, broadcast room first
func (d *DB) ListRoomsForProfile(ctx context.Context, profileID string) ([]db.ChatRoom, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+roomColumns+`
		FROM chat_rooms r
		JOIN chat_room_members m ON m.room_id = r.id
		WHERE m.profile_id = $1
		ORDER BY (r.kind = 'club_notifications') DESC, r.name
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat rooms: %w", err)
	}
	defer rows.Close()

	var rooms []db.ChatRoom
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat room: %w", err)
		}
		rooms = append(rooms, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rooms: %w", err)
	}

	return rooms, nil
}

// GetRoom retrieves one room by id
func (d *DB) GetRoom(ctx context.Context, roomID string) (*db.ChatRoom, error) {
	r, err := scanRoom(d.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM chat_rooms r WHERE r.id = $1`, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chat room: %w", err)
	}
	return r, nil
}

// IsMember reports whether a profile belongs to a room
func (d *DB) IsMember(ctx context.Context, roomID, profileID string) (bool, error) {
	var member bool
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM chat_room_members WHERE room_id = $1 AND profile_id = $2)
	`, roomID, profileID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return member, nil
}

// CreateRoomWithMembers creates a room and all of its memberships in one transaction
func (d *DB) CreateRoomWithMembers(ctx context.Context, room *db.ChatRoom, members []db.ChatRoomMember) (*db.ChatRoom, error) {
	id := room.ID
	if id == "" {
		id = uuid.New().String()
	}

	var saved *db.ChatRoom
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		var err error
		saved, err = scanRoom(tx.QueryRow(ctx, `
			INSERT INTO chat_rooms AS r (id, name, kind, description, created_by)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''))
			RETURNING `+roomColumns,
			id, room.Name, string(room.Kind), room.Description, room.CreatedBy))
		if err != nil {
			return fmt.Errorf("failed to insert chat room: %w", err)
		}

		batch := &pgx.Batch{}
		for _, m := range members {
			batch.Queue(`
				INSERT INTO chat_room_members (room_id, profile_id, role)
				VALUES ($1, $2, $3)
				ON CONFLICT (room_id, profile_id) DO NOTHING
			`, saved.ID, m.ProfileID, string(m.Role))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chat room members: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

// AddMember adds a profile to an existing room
func (d *DB) AddMember(ctx context.Context, member db.ChatRoomMember) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO chat_room_members (room_id, profile_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, profile_id) DO UPDATE SET role = EXCLUDED.role
	`, member.RoomID, member.ProfileID, string(member.Role))
	if err != nil {
		return fmt.Errorf("failed to add chat room member: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent limit messages of a room, oldest first
func (d *DB) RecentMessages(ctx context.Context, roomID string, limit int) ([]db.Message, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+`
			FROM messages m
			JOIN profiles p ON p.id = m.sender_id
			WHERE m.room_id = $1
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]db.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// InsertMessage stores a message; created_at is assigned by the database
func (d *DB) InsertMessage(ctx context.Context, msg *db.Message) (*db.Message, error) {
	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}

	saved, err := scanMessage(d.pool.QueryRow(ctx, `
		WITH m AS (
			INSERT INTO messages (id, room_id, sender_id, content)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		)
		SELECT `+messageColumns+`
		FROM m
		JOIN profiles p ON p.id = m.sender_id
	`, id, msg.RoomID, msg.SenderID, msg.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return saved, nil
}

// GetMessage retrieves one message by id
func (d *DB) GetMessage(ctx context.Context, messageID string) (*db.Message, error) {
	m, err := scanMessage(d.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN profiles p ON p.id = m.sender_id
		WHERE m.id = $1
	`, messageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return m, nil
}

// DeleteMessage deletes a message by id
func (d *DB) DeleteMessage(ctx context.Context, messageID string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}
