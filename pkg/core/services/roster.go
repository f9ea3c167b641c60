package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
)

// RosterRow is one opportunity in a published roster
type RosterRow struct {
	Date       string // Format: "Mon Jan 02 2006"
	Time       string
	Title      string
	Location   string
	Filled     int
	Capacity   int
	Volunteers []string
}

// Roster is a roster covering a date range
type Roster struct {
	Range db.DateRange
	Rows  []RosterRow
}

// RosterPublisher writes a roster somewhere admins can read it
type RosterPublisher interface {
	PublishRoster(roster *Roster) error
}

// BuildRoster turns an opportunity snapshot into roster rows, keeping the
// snapshot's order
func BuildRoster(dateRange db.DateRange, snapshot []db.OpportunityWithSignups) *Roster {
	rows := make([]RosterRow, 0, len(snapshot))
	for _, opp := range snapshot {
		date := opp.Date
		if t, err := time.Parse(dateLayout, opp.Date); err == nil {
			date = t.Format("Mon Jan 02 2006")
		}
		when := opp.StartTime
		if opp.EndTime != nil {
			when += "-" + *opp.EndTime
		}

		names := make([]string, 0, len(opp.Signups))
		for _, s := range opp.Signups {
			names = append(names, s.Profile.DisplayName())
		}

		rows = append(rows, RosterRow{
			Date:       date,
			Time:       when,
			Title:      opp.Title,
			Location:   opp.Location,
			Filled:     len(opp.Signups),
			Capacity:   opp.Capacity,
			Volunteers: names,
		})
	}
	return &Roster{Range: dateRange, Rows: rows}
}

// PublishRoster loads the range and hands its roster to the publisher. Admin only.
func PublishRoster(ctx context.Context, store db.OpportunityStore, publisher RosterPublisher, logger *zap.Logger, caller *identity.Identity, dateRange db.DateRange) (*Roster, error) {
	if err := identity.RequireAdmin(caller); err != nil {
		return nil, err
	}

	snapshot, err := ListWithSignups(ctx, store, logger, dateRange)
	if err != nil {
		return nil, err
	}

	roster := BuildRoster(dateRange, snapshot)
	if err := publisher.PublishRoster(roster); err != nil {
		return nil, fmt.Errorf("failed to publish roster: %w", err)
	}

	logger.Info("Roster published",
		zap.String("start", dateRange.Start),
		zap.String("end", dateRange.End),
		zap.Int("opportunities", len(roster.Rows)))
	return roster, nil
}
