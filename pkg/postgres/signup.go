package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

// InsertSignupIfCapacity creates a signup in a single transaction. The
// opportunity row is locked first so concurrent signups for the same
// opportunity serialize on it; the duplicate and capacity checks then see
// every committed signup.
func (d *DB) InsertSignupIfCapacity(ctx context.Context, opportunityID, profileID string) (*db.Signup, error) {
	var signup *db.Signup
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		var capacity int
		err := tx.QueryRow(ctx, `SELECT capacity FROM opportunities WHERE id = $1 FOR UPDATE`, opportunityID).Scan(&capacity)
		if errors.Is(err, pgx.ErrNoRows) {
			return db.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock opportunity: %w", err)
		}

		var exists bool
		var taken int
		err = tx.QueryRow(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM signups WHERE opportunity_id = $1 AND profile_id = $2),
				(SELECT count(*) FROM signups WHERE opportunity_id = $1)
		`, opportunityID, profileID).Scan(&exists, &taken)
		if err != nil {
			return fmt.Errorf("failed to count signups: %w", err)
		}
		if exists {
			return db.ErrAlreadySignedUp
		}
		if taken >= capacity {
			return db.ErrFull
		}

		s := db.Signup{ID: uuid.New().String(), OpportunityID: opportunityID, ProfileID: profileID}
		err = tx.QueryRow(ctx, `
			INSERT INTO signups (id, opportunity_id, profile_id)
			VALUES ($1, $2, $3)
			RETURNING signed_up_at
		`, s.ID, s.OpportunityID, s.ProfileID).Scan(&s.SignedUpAt)
		if isUniqueViolation(err) {
			return db.ErrAlreadySignedUp
		}
		if err != nil {
			return fmt.Errorf("failed to insert signup: %w", err)
		}
		signup = &s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return signup, nil
}

// DeleteSignup removes the profile's signup for an opportunity. Removing a
// signup that does not exist is not an error.
func (d *DB) DeleteSignup(ctx context.Context, opportunityID, profileID string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM signups WHERE opportunity_id = $1 AND profile_id = $2`, opportunityID, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete signup: %w", err)
	}
	return nil
}

// GetSignup returns the profile's signup for an opportunity, or db.ErrNotFound
func (d *DB) GetSignup(ctx context.Context, opportunityID, profileID string) (*db.Signup, error) {
	var s db.Signup
	err := d.pool.QueryRow(ctx, `
		SELECT id, opportunity_id, profile_id, signed_up_at
		FROM signups WHERE opportunity_id = $1 AND profile_id = $2
	`, opportunityID, profileID).Scan(&s.ID, &s.OpportunityID, &s.ProfileID, &s.SignedUpAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query signup: %w", err)
	}
	return &s, nil
}

// ListSignupsForProfile retrieves a profile's signups with their opportunities, newest first
func (d *DB) ListSignupsForProfile(ctx context.Context, profileID string) ([]db.SignupWithOpportunity, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT s.id, s.opportunity_id, s.profile_id, s.signed_up_at, `+opportunityColumns+`
		FROM signups s
		JOIN opportunities o ON o.id = s.opportunity_id
		WHERE s.profile_id = $1
		ORDER BY s.signed_up_at DESC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signups: %w", err)
	}
	defer rows.Close()

	var signups []db.SignupWithOpportunity
	for rows.Next() {
		var s db.SignupWithOpportunity
		var date time.Time
		var category string
		o := &s.Opportunity
		if err := rows.Scan(&s.ID, &s.OpportunityID, &s.ProfileID, &s.SignedUpAt,
			&o.ID, &date, &o.StartTime, &o.EndTime, &o.Title, &o.Description,
			&o.Location, &category, &o.Capacity, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signup: %w", err)
		}
		o.Date = date.Format("2006-01-02")
		o.Category = db.Category(category)
		signups = append(signups, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signups: %w", err)
	}

	return signups, nil
}

// GetReminderDetails loads the volunteer and opportunity behind a signup
func (d *DB) GetReminderDetails(ctx context.Context, signupID string) (*db.ReminderDetails, error) {
	var details db.ReminderDetails
	var date time.Time
	var category, status string
	o := &details.Opportunity
	p := &details.Profile
	err := d.pool.QueryRow(ctx, `
		SELECT s.id, `+opportunityColumns+`,
			p.id, p.identity_ref, p.first_name, p.last_name, p.email, p.mobile, p.home_location, p.skiing_ability, p.status, p.created_at
		FROM signups s
		JOIN opportunities o ON o.id = s.opportunity_id
		JOIN profiles p ON p.id = s.profile_id
		WHERE s.id = $1
	`, signupID).Scan(&details.SignupID,
		&o.ID, &date, &o.StartTime, &o.EndTime, &o.Title, &o.Description,
		&o.Location, &category, &o.Capacity, &o.CreatedBy, &o.CreatedAt,
		&p.ID, &p.IdentityRef, &p.FirstName, &p.LastName, &p.Email, &p.Mobile,
		&p.HomeLocation, &p.SkiingAbility, &status, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reminder details: %w", err)
	}
	o.Date = date.Format("2006-01-02")
	o.Category = db.Category(category)
	p.Status = db.ProfileStatus(status)

	return &details, nil
}
