package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/calendar"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
)

// DefaultLoadWindowMonths is how many months either side of the current one
// a default listing covers
const DefaultLoadWindowMonths = 2

// OpportunityInput is the admin-supplied content of an opportunity
type OpportunityInput struct {
	Date        string      `json:"date" validate:"required,datekey"`
	StartTime   string      `json:"start_time" validate:"required,clock"`
	EndTime     *string     `json:"end_time,omitempty" validate:"omitempty,clock"`
	Title       string      `json:"title" validate:"required"`
	Description string      `json:"description" validate:"required"`
	Location    string      `json:"location" validate:"required"`
	Category    db.Category `json:"category" validate:"required,oneof=on-snow off-snow other"`
	Capacity    int         `json:"capacity" validate:"required,min=1"`
}

// OpportunityPatch is a partial update; nil fields are left untouched
type OpportunityPatch struct {
	Date         *string      `json:"date,omitempty"`
	StartTime    *string      `json:"start_time,omitempty"`
	EndTime      *string      `json:"end_time,omitempty"`
	ClearEndTime bool         `json:"clear_end_time,omitempty"`
	Title        *string      `json:"title,omitempty"`
	Description  *string      `json:"description,omitempty"`
	Location     *string      `json:"location,omitempty"`
	Category     *db.Category `json:"category,omitempty"`
	Capacity     *int         `json:"capacity,omitempty"`
}

func (in OpportunityInput) sanitized() OpportunityInput {
	out := in
	out.Date = strings.TrimSpace(in.Date)
	out.StartTime = strings.TrimSpace(in.StartTime)
	if in.EndTime != nil {
		end := strings.TrimSpace(*in.EndTime)
		if end == "" {
			out.EndTime = nil
		} else {
			out.EndTime = &end
		}
	}
	out.Title = SanitizeText(in.Title, MaxFieldLength)
	out.Description = SanitizeText(in.Description, MaxFieldLength)
	out.Location = SanitizeText(in.Location, MaxFieldLength)
	out.Category = db.Category(strings.TrimSpace(string(in.Category)))
	return out
}

// Validate reports the problems with the input as a single *db.ValidationError
func (in OpportunityInput) Validate() error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if in.EndTime != nil && *in.EndTime <= in.StartTime {
		return db.NewValidationError("end_time", "must be after start_time")
	}
	return nil
}

func (in OpportunityInput) toOpportunity() *db.Opportunity {
	return &db.Opportunity{
		Date:        in.Date,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Category:    in.Category,
		Capacity:    in.Capacity,
	}
}

func inputFromOpportunity(o *db.Opportunity) OpportunityInput {
	return OpportunityInput{
		Date:        o.Date,
		StartTime:   o.StartTime,
		EndTime:     o.EndTime,
		Title:       o.Title,
		Description: o.Description,
		Location:    o.Location,
		Category:    o.Category,
		Capacity:    o.Capacity,
	}
}

func (p OpportunityPatch) applyTo(in OpportunityInput) OpportunityInput {
	if p.Date != nil {
		in.Date = *p.Date
	}
	if p.StartTime != nil {
		in.StartTime = *p.StartTime
	}
	if p.ClearEndTime {
		in.EndTime = nil
	} else if p.EndTime != nil {
		in.EndTime = p.EndTime
	}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Location != nil {
		in.Location = *p.Location
	}
	if p.Category != nil {
		in.Category = *p.Category
	}
	if p.Capacity != nil {
		in.Capacity = *p.Capacity
	}
	return in
}

// CreateOpportunity validates and stores a new opportunity. The caller must be
// an admin and is recorded as the creator.
func CreateOpportunity(ctx context.Context, store db.OpportunityStore, logger *zap.Logger, caller *identity.Identity, input OpportunityInput) (*db.Opportunity, error) {
	if err := identity.RequireAdmin(caller); err != nil {
		return nil, err
	}

	input = input.sanitized()
	if err := input.Validate(); err != nil {
		logger.Debug("Rejected opportunity input", zap.Error(err))
		return nil, err
	}

	opp := input.toOpportunity()
	opp.ID = uuid.New().String()
	opp.CreatedBy = caller.UserID

	logger.Debug("Creating opportunity",
		zap.String("id", opp.ID),
		zap.String("date", opp.Date),
		zap.String("title", opp.Title))

	saved, err := store.InsertOpportunity(ctx, opp)
	if err != nil {
		return nil, fmt.Errorf("failed to create opportunity: %w", err)
	}

	logger.Info("Opportunity created",
		zap.String("id", saved.ID),
		zap.String("date", saved.Date),
		zap.Int("capacity", saved.Capacity))

	return saved, nil
}

// UpdateOpportunity applies a partial update to an existing opportunity
func UpdateOpportunity(ctx context.Context, store db.OpportunityStore, logger *zap.Logger, caller *identity.Identity, id string, patch OpportunityPatch) (*db.Opportunity, error) {
	if err := identity.RequireAdmin(caller); err != nil {
		return nil, err
	}

	existing, err := store.GetOpportunity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load opportunity %s: %w", id, err)
	}

	merged := patch.applyTo(inputFromOpportunity(existing)).sanitized()
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	opp := merged.toOpportunity()
	opp.ID = existing.ID
	opp.CreatedBy = existing.CreatedBy
	opp.CreatedAt = existing.CreatedAt

	saved, err := store.UpdateOpportunity(ctx, opp)
	if err != nil {
		return nil, fmt.Errorf("failed to update opportunity %s: %w", id, err)
	}

	logger.Info("Opportunity updated", zap.String("id", saved.ID))
	return saved, nil
}

// DeleteOpportunity removes an opportunity and, by cascade, its signups
func DeleteOpportunity(ctx context.Context, store db.OpportunityStore, logger *zap.Logger, caller *identity.Identity, id string) error {
	if err := identity.RequireAdmin(caller); err != nil {
		return err
	}

	if err := store.DeleteOpportunity(ctx, id); err != nil {
		return fmt.Errorf("failed to delete opportunity %s: %w", id, err)
	}

	logger.Info("Opportunity deleted", zap.String("id", id))
	return nil
}

// ListWithSignups loads every opportunity inside the range with its signups.
// Opportunities outside the range are not returned.
func ListWithSignups(ctx context.Context, store db.OpportunityStore, logger *zap.Logger, dateRange db.DateRange) ([]db.OpportunityWithSignups, error) {
	if err := validateRange(dateRange); err != nil {
		return nil, err
	}

	logger.Debug("Loading opportunities",
		zap.String("start", dateRange.Start),
		zap.String("end", dateRange.End))

	opps, err := store.ListOpportunitiesWithSignups(ctx, dateRange)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}

	logger.Debug("Loaded opportunities", zap.Int("count", len(opps)))
	return opps, nil
}

// DefaultRange covers the first day of the month `months` before now through
// the last day of the month `months` after it, on now's local calendar
func DefaultRange(now time.Time, months int) db.DateRange {
	if months < 0 {
		months = DefaultLoadWindowMonths
	}
	y, m, _ := now.Date()
	start := time.Date(y, m-time.Month(months), 1, 0, 0, 0, 0, now.Location())
	end := time.Date(y, m+time.Month(months)+1, 0, 0, 0, 0, 0, now.Location())
	return db.DateRange{Start: calendar.DateKey(start), End: calendar.DateKey(end)}
}

// WidenRange extends r so that it covers the given month
func WidenRange(r db.DateRange, year int, month time.Month) db.DateRange {
	m := calendar.MonthRange(year, month)
	if m.Start < r.Start {
		r.Start = m.Start
	}
	if m.End > r.End {
		r.End = m.End
	}
	return r
}

func validateRange(r db.DateRange) error {
	verr := &db.ValidationError{Fields: map[string]string{}}
	if _, err := time.Parse(dateLayout, r.Start); err != nil {
		verr.Fields["start"] = "must be a date (YYYY-MM-DD)"
	}
	if _, err := time.Parse(dateLayout, r.End); err != nil {
		verr.Fields["end"] = "must be a date (YYYY-MM-DD)"
	}
	if len(verr.Fields) == 0 && r.End < r.Start {
		verr.Fields["end"] = "must not be before start"
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
