package sheetsclient

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
)

// RosterPublisher writes rosters to one tab per date range of a spreadsheet.
// Publishing the same range again overwrites its tab.
type RosterPublisher struct {
	client        *Client
	spreadsheetID string
	logger        *zap.Logger
}

func NewRosterPublisher(client *Client, spreadsheetID string, logger *zap.Logger) *RosterPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterPublisher{client: client, spreadsheetID: spreadsheetID, logger: logger}
}

var _ services.RosterPublisher = (*RosterPublisher)(nil)

func (p *RosterPublisher) PublishRoster(roster *services.Roster) error {
	title, err := TabTitle(roster.Range.Start, roster.Range.End)
	if err != nil {
		return fmt.Errorf("failed to generate tab title: %w", err)
	}

	exists, err := p.client.SheetExists(p.spreadsheetID, title)
	if err != nil {
		return err
	}

	if exists {
		p.logger.Debug("Overwriting roster tab", zap.String("tab", title))
		if err := p.client.ClearValues(p.spreadsheetID, title+"!A1:ZZ"); err != nil {
			return err
		}
	} else {
		p.logger.Debug("Creating roster tab", zap.String("tab", title))
		if _, err := p.client.CreateSheet(p.spreadsheetID, title); err != nil {
			return err
		}
	}

	if err := p.client.UpdateValues(p.spreadsheetID, title+"!A1", RosterValues(roster)); err != nil {
		return fmt.Errorf("failed to write roster: %w", err)
	}

	p.logger.Info("Roster written to sheet",
		zap.String("tab", title),
		zap.Int("rows", len(roster.Rows)))
	return nil
}

// TabTitle names a roster tab after its range, e.g. "Mon Jan 01 2024 - Wed Jan 31 2024"
func TabTitle(start, end string) (string, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return "", fmt.Errorf("invalid start date: %w", err)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return "", fmt.Errorf("invalid end date: %w", err)
	}
	return fmt.Sprintf("%s - %s", s.Format("Mon Jan 02 2006"), e.Format("Mon Jan 02 2006")), nil
}

// RosterValues lays a roster out as a header row plus one row per
// opportunity, with a column per volunteer up to the fullest opportunity
func RosterValues(roster *services.Roster) [][]interface{} {
	maxVolunteers := 0
	for _, row := range roster.Rows {
		maxVolunteers = max(maxVolunteers, len(row.Volunteers))
	}

	header := []interface{}{"Date", "Time", "Opportunity", "Location", "Filled"}
	for i := 0; i < maxVolunteers; i++ {
		header = append(header, fmt.Sprintf("Volunteer %d", i+1))
	}

	values := make([][]interface{}, 0, len(roster.Rows)+1)
	values = append(values, header)
	for _, row := range roster.Rows {
		sheetRow := []interface{}{
			row.Date,
			row.Time,
			row.Title,
			row.Location,
			fmt.Sprintf("%d/%d", row.Filled, row.Capacity),
		}
		for i := 0; i < maxVolunteers; i++ {
			if i < len(row.Volunteers) {
				sheetRow = append(sheetRow, row.Volunteers[i])
			} else {
				sheetRow = append(sheetRow, "")
			}
		}
		values = append(values, sheetRow)
	}
	return values
}
