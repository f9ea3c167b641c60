package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

const profileColumns = `id, identity_ref, first_name, last_name, email, mobile, home_location, skiing_ability, status, created_at`

func scanProfile(row pgx.Row) (*db.Profile, error) {
	var p db.Profile
	var status string
	if err := row.Scan(&p.ID, &p.IdentityRef, &p.FirstName, &p.LastName, &p.Email, &p.Mobile,
		&p.HomeLocation, &p.SkiingAbility, &status, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Status = db.ProfileStatus(status)
	return &p, nil
}

// GetProfileByIdentity returns the profile owned by an identity, or db.ErrNoProfile
func (d *DB) GetProfileByIdentity(ctx context.Context, identityRef string) (*db.Profile, error) {
	p, err := scanProfile(d.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE identity_ref = $1`, identityRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return p, nil
}

// UpsertProfile inserts a profile or updates the one already owned by the identity.
// New profiles are also joined to the broadcast room.
func (d *DB) UpsertProfile(ctx context.Context, profile *db.Profile) (*db.Profile, error) {
	id := profile.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := profile.Status
	if status == "" {
		status = db.ProfileStatusPending
	}

	var saved *db.Profile
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		var err error
		saved, err = scanProfile(tx.QueryRow(ctx, `
			INSERT INTO profiles (id, identity_ref, first_name, last_name, email, mobile, home_location, skiing_ability, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (identity_ref) DO UPDATE SET
				first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				email = EXCLUDED.email,
				mobile = EXCLUDED.mobile,
				home_location = EXCLUDED.home_location,
				skiing_ability = EXCLUDED.skiing_ability
			RETURNING `+profileColumns,
			id, profile.IdentityRef, profile.FirstName, profile.LastName, profile.Email, profile.Mobile,
			profile.HomeLocation, profile.SkiingAbility, string(status)))
		if err != nil {
			return fmt.Errorf("failed to upsert profile: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO chat_room_members (room_id, profile_id, role)
			SELECT id, $2, 'member' FROM chat_rooms WHERE id = $1
			ON CONFLICT DO NOTHING
		`, db.BroadcastRoomID, saved.ID)
		if err != nil {
			return fmt.Errorf("failed to join broadcast room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

// ListProfiles retrieves all profiles, newest first
func (d *DB) ListProfiles(ctx context.Context) ([]db.Profile, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []db.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return profiles, nil
}

// SetProfileStatus updates the admin-managed status of a profile
func (d *DB) SetProfileStatus(ctx context.Context, profileID string, status db.ProfileStatus) (*db.Profile, error) {
	p, err := scanProfile(d.pool.QueryRow(ctx,
		`UPDATE profiles SET status = $2 WHERE id = $1 RETURNING `+profileColumns, profileID, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set profile status: %w", err)
	}
	return p, nil
}
