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

const opportunityColumns = `o.id, o.date, to_char(o.start_time, 'HH24:MI'), to_char(o.end_time, 'HH24:MI'),
	o.title, o.description, o.location, o.category, o.capacity, o.created_by, o.created_at`

func scanOpportunity(row pgx.Row) (*db.Opportunity, error) {
	var o db.Opportunity
	var date time.Time
	var category string
	if err := row.Scan(&o.ID, &date, &o.StartTime, &o.EndTime, &o.Title, &o.Description,
		&o.Location, &category, &o.Capacity, &o.CreatedBy, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Date = date.Format("2006-01-02")
	o.Category = db.Category(category)
	return &o, nil
}

// InsertOpportunity inserts a new opportunity record
func (d *DB) InsertOpportunity(ctx context.Context, opp *db.Opportunity) (*db.Opportunity, error) {
	id := opp.ID
	if id == "" {
		id = uuid.New().String()
	}

	saved, err := scanOpportunity(d.pool.QueryRow(ctx, `
		INSERT INTO opportunities AS o (id, date, start_time, end_time, title, description, location, category, capacity, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+opportunityColumns,
		id, opp.Date, opp.StartTime, opp.EndTime, opp.Title, opp.Description, opp.Location,
		string(opp.Category), opp.Capacity, opp.CreatedBy))
	if err != nil {
		return nil, fmt.Errorf("failed to insert opportunity: %w", err)
	}
	return saved, nil
}

// GetOpportunity retrieves one opportunity by id
func (d *DB) GetOpportunity(ctx context.Context, id string) (*db.Opportunity, error) {
	o, err := scanOpportunity(d.pool.QueryRow(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities o WHERE o.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunity: %w", err)
	}
	return o, nil
}

// UpdateOpportunity overwrites the editable fields of an opportunity
func (d *DB) UpdateOpportunity(ctx context.Context, opp *db.Opportunity) (*db.Opportunity, error) {
	saved, err := scanOpportunity(d.pool.QueryRow(ctx, `
		UPDATE opportunities AS o SET
			date = $2, start_time = $3, end_time = $4, title = $5, description = $6,
			location = $7, category = $8, capacity = $9
		WHERE o.id = $1
		RETURNING `+opportunityColumns,
		opp.ID, opp.Date, opp.StartTime, opp.EndTime, opp.Title, opp.Description, opp.Location,
		string(opp.Category), opp.Capacity))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update opportunity: %w", err)
	}
	return saved, nil
}

// DeleteOpportunity deletes an opportunity; its signups cascade
func (d *DB) DeleteOpportunity(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM opportunities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete opportunity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// ListOpportunitiesWithSignups retrieves every opportunity inside the date range
// together with its signups and the profiles behind them
func (d *DB) ListOpportunitiesWithSignups(ctx context.Context, dateRange db.DateRange) ([]db.OpportunityWithSignups, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+opportunityColumns+`
		FROM opportunities o
		WHERE o.date BETWEEN $1 AND $2
		ORDER BY o.date, o.start_time, o.id
	`, dateRange.Start, dateRange.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer rows.Close()

	result := make([]db.OpportunityWithSignups, 0)
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		index[o.ID] = len(result)
		ids = append(ids, o.ID)
		result = append(result, db.OpportunityWithSignups{Opportunity: *o, Signups: []db.SignupWithProfile{}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opportunities: %w", err)
	}

	if len(ids) == 0 {
		return result, nil
	}

	signupRows, err := d.pool.Query(ctx, `
		SELECT s.id, s.opportunity_id, s.profile_id, s.signed_up_at,
			p.id, p.identity_ref, p.first_name, p.last_name, p.email, p.mobile, p.home_location, p.skiing_ability, p.status, p.created_at
		FROM signups s
		JOIN profiles p ON p.id = s.profile_id
		WHERE s.opportunity_id = ANY($1)
		ORDER BY s.signed_up_at, s.id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query signups: %w", err)
	}
	defer signupRows.Close()

	for signupRows.Next() {
		var s db.SignupWithProfile
		var status string
		if err := signupRows.Scan(&s.ID, &s.OpportunityID, &s.ProfileID, &s.SignedUpAt,
			&s.Profile.ID, &s.Profile.IdentityRef, &s.Profile.FirstName, &s.Profile.LastName, &s.Profile.Email,
			&s.Profile.Mobile, &s.Profile.HomeLocation, &s.Profile.SkiingAbility, &status, &s.Profile.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signup: %w", err)
		}
		s.Profile.Status = db.ProfileStatus(status)
		i := index[s.OpportunityID]
		result[i].Signups = append(result[i].Signups, s)
	}
	if err := signupRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signups: %w", err)
	}

	return result, nil
}
