// Package calendar projects the opportunity snapshot onto month grids and day
// agendas. Every date key is taken from the local wall calendar of the value
// it describes; nothing here converts through UTC.
package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

// Layout is the date key format
const Layout = "2006-01-02"

// GridSize is the number of cells in a month grid: six Sunday-first weeks
const GridSize = 42

// Cell is one day of a month grid
type Cell struct {
	Date           time.Time                   `json:"-"`
	Key            string                      `json:"date"`
	IsCurrentMonth bool                        `json:"is_current_month"`
	Opportunities  []db.OpportunityWithSignups `json:"opportunities"`
}

// DateKey formats the calendar date of t as seen in t's own location
func DateKey(t time.Time) string {
	y, m, d := t.Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

// ParseDateKey returns local midnight of the date named by key
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", key, err)
	}
	return t, nil
}

// Midnight truncates t to the start of its calendar day in its own location
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CellsForMonth returns the 42-cell grid for a month, starting on the Sunday
// on or before the 1st, each cell carrying that day's opportunities ordered
// by start time
func CellsForMonth(year int, month time.Month, snapshot []db.OpportunityWithSignups, loc *time.Location) []Cell {
	byDay := groupByDate(snapshot)

	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := int(first.Weekday())

	cells := make([]Cell, GridSize)
	for i := range cells {
		// time.Date normalises day overflow, so this stays on local midnight across DST changes
		day := time.Date(year, month, 1-offset+i, 0, 0, 0, 0, loc)
		key := DateKey(day)
		cells[i] = Cell{
			Date:           day,
			Key:            key,
			IsCurrentMonth: day.Month() == month && day.Year() == year,
			Opportunities:  byDay[key],
		}
	}
	return cells
}

// AgendaForDay returns the opportunities on one date, ordered by start time
func AgendaForDay(dateKey string, snapshot []db.OpportunityWithSignups) []db.OpportunityWithSignups {
	return groupByDate(snapshot)[dateKey]
}

// ShiftMonth moves to the first day of the month delta months away
func ShiftMonth(t time.Time, delta int) time.Time {
	return time.Date(t.Year(), t.Month()+time.Month(delta), 1, 0, 0, 0, 0, t.Location())
}

// MonthRange returns the first and last date of a month
func MonthRange(year int, month time.Month) db.DateRange {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	return db.DateRange{Start: DateKey(first), End: DateKey(last)}
}

// NeedsWiderRange reports whether some day of the month lies outside the
// loaded range, in which case its opportunities are silently missing until
// the caller reloads with a wider range
func NeedsWiderRange(year int, month time.Month, loaded db.DateRange) bool {
	r := MonthRange(year, month)
	return !loaded.Contains(r.Start) || !loaded.Contains(r.End)
}

func groupByDate(snapshot []db.OpportunityWithSignups) map[string][]db.OpportunityWithSignups {
	byDay := make(map[string][]db.OpportunityWithSignups)
	for _, opp := range snapshot {
		byDay[opp.Date] = append(byDay[opp.Date], opp)
	}
	for _, opps := range byDay {
		sort.SliceStable(opps, func(i, j int) bool {
			if opps[i].StartTime != opps[j].StartTime {
				return opps[i].StartTime < opps[j].StartTime
			}
			return opps[i].Title < opps[j].Title
		})
	}
	return byDay
}
