package services

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/calendar"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
	"github.com/freestylevancouver/volunteer-portal/pkg/metrics"
)

// StepFailure records one week that could not be created
type StepFailure struct {
	Date string
	Err  error
}

// RecurrenceResult reports the outcome of a recurring creation
type RecurrenceResult struct {
	Attempted int
	Created   []db.Opportunity
	Failures  []StepFailure
}

// Summary describes the outcome for the person who requested it
func (r *RecurrenceResult) Summary() string {
	return fmt.Sprintf("Created %d of %d opportunities", len(r.Created), r.Attempted)
}

// WeeklyDates returns the date keys from start through until inclusive, one
// week apart, on the local calendar of loc
func WeeklyDates(start, until string, loc *time.Location) ([]string, error) {
	verr := &db.ValidationError{Fields: map[string]string{}}

	dtstart, err := calendar.ParseDateKey(start, loc)
	if err != nil {
		verr.Fields["date"] = "must be a date (YYYY-MM-DD)"
	}
	end, err := calendar.ParseDateKey(until, loc)
	if err != nil {
		verr.Fields["repeat_until"] = "must be a date (YYYY-MM-DD)"
	}
	if len(verr.Fields) == 0 && end.Before(dtstart) {
		verr.Fields["repeat_until"] = "must not be before the first date"
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.WEEKLY,
		Interval: 1,
		Dtstart:  dtstart,
		Until:    end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build weekly rule: %w", err)
	}

	occurrences := rule.All()
	dates := make([]string, 0, len(occurrences))
	for _, t := range occurrences {
		dates = append(dates, calendar.DateKey(t.In(loc)))
	}
	return dates, nil
}

// CreateRecurring creates the template once per week from its date through
// until. Weeks are created one at a time in date order; a failed week is
// recorded and the rest still run.
func CreateRecurring(ctx context.Context, store db.OpportunityStore, logger *zap.Logger, caller *identity.Identity, template OpportunityInput, until string, loc *time.Location) (*RecurrenceResult, error) {
	if err := identity.RequireAdmin(caller); err != nil {
		return nil, err
	}

	template = template.sanitized()
	if err := template.Validate(); err != nil {
		return nil, err
	}

	dates, err := WeeklyDates(template.Date, until, loc)
	if err != nil {
		return nil, err
	}

	logger.Debug("Creating recurring opportunity",
		zap.String("title", template.Title),
		zap.String("first", dates[0]),
		zap.String("until", until),
		zap.Int("weeks", len(dates)))

	result := &RecurrenceResult{Attempted: len(dates)}
	for _, date := range dates {
		step := template
		step.Date = date

		opp, err := CreateOpportunity(ctx, store, logger, caller, step)
		metrics.RecordRecurrenceStep(err)
		if err != nil {
			logger.Warn("Failed to create recurring opportunity",
				zap.String("date", date),
				zap.Error(err))
			result.Failures = append(result.Failures, StepFailure{Date: date, Err: err})
			continue
		}
		result.Created = append(result.Created, *opp)
	}

	logger.Info("Recurring opportunity created",
		zap.String("title", template.Title),
		zap.Int("attempted", result.Attempted),
		zap.Int("created", len(result.Created)))

	return result, nil
}
