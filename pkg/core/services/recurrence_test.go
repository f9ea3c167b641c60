package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/db/memdb"
)

func TestWeeklyDates(t *testing.T) {
	tests := []struct {
		name  string
		start string
		until string
		want  []string
	}{
		{"same day", "2024-01-06", "2024-01-06", []string{"2024-01-06"}},
		{"three weeks", "2024-01-06", "2024-01-27", []string{"2024-01-06", "2024-01-13", "2024-01-20", "2024-01-27"}},
		{"partial last week", "2024-01-06", "2024-01-25", []string{"2024-01-06", "2024-01-13", "2024-01-20"}},
		{"month boundary", "2024-01-27", "2024-02-10", []string{"2024-01-27", "2024-02-03", "2024-02-10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates, err := WeeklyDates(tt.start, tt.until, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dates)
		})
	}
}

func TestWeeklyDates_AcrossDaylightSaving(t *testing.T) {
	loc, err := time.LoadLocation("America/Vancouver")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// Clocks go forward on 2024-03-10
	dates, err := WeeklyDates("2024-03-02", "2024-03-16", loc)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-02", "2024-03-09", "2024-03-16"}, dates)
}

func TestWeeklyDates_Rejects(t *testing.T) {
	for name, pair := range map[string][2]string{
		"until before start": {"2024-01-06", "2024-01-05"},
		"bad until":          {"2024-01-06", "soon"},
		"bad start":          {"", "2024-01-06"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := WeeklyDates(pair[0], pair[1], time.UTC)
			assert.True(t, db.IsValidation(err))
		})
	}
}

func TestCreateRecurring_Counts(t *testing.T) {
	tests := []struct {
		until string
		calls int
	}{
		{"2024-02-10", 1},
		{"2024-03-02", 4},
	}

	for _, tt := range tests {
		t.Run(tt.until, func(t *testing.T) {
			store := memdb.New()
			var inserted []string
			store.OnInsertOpportunity = func(opp *db.Opportunity) error {
				inserted = append(inserted, opp.Date)
				return nil
			}

			result, err := CreateRecurring(context.Background(), store, zap.NewNop(), admin, validInput(), tt.until, time.UTC)
			require.NoError(t, err)

			assert.Len(t, inserted, tt.calls)
			assert.Equal(t, tt.calls, result.Attempted)
			assert.Len(t, result.Created, tt.calls)
			assert.Empty(t, result.Failures)
		})
	}
}

func TestCreateRecurring_ContinuesPastFailures(t *testing.T) {
	store := memdb.New()
	var attempts []string
	store.OnInsertOpportunity = func(opp *db.Opportunity) error {
		attempts = append(attempts, opp.Date)
		if opp.Date == "2024-02-17" {
			return errors.New("connection reset")
		}
		return nil
	}

	result, err := CreateRecurring(context.Background(), store, zap.NewNop(), admin, validInput(), "2024-03-02", time.UTC)
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-02-10", "2024-02-17", "2024-02-24", "2024-03-02"}, attempts)
	assert.Equal(t, 4, result.Attempted)
	assert.Len(t, result.Created, 3)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "2024-02-17", result.Failures[0].Date)
	assert.Equal(t, "Created 3 of 4 opportunities", result.Summary())
}

func TestCreateRecurring_RejectsBeforeAnyCreation(t *testing.T) {
	store := memdb.New()
	store.OnInsertOpportunity = func(*db.Opportunity) error {
		t.Fatal("nothing may be created")
		return nil
	}

	_, err := CreateRecurring(context.Background(), store, zap.NewNop(), admin, validInput(), "2024-02-09", time.UTC)
	assert.True(t, db.IsValidation(err))

	bad := validInput()
	bad.Title = ""
	_, err = CreateRecurring(context.Background(), store, zap.NewNop(), admin, bad, "2024-03-02", time.UTC)
	assert.True(t, db.IsValidation(err))

	_, err = CreateRecurring(context.Background(), store, zap.NewNop(), volunteer, validInput(), "2024-03-02", time.UTC)
	assert.ErrorIs(t, err, db.ErrForbidden)
}
