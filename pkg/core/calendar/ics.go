package calendar

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

const (
	icsProductID    = "-//Freestyle Vancouver//Volunteer Portal//EN"
	icsLocalLayout  = "20060102T150405"
	icsUTCLayout    = "20060102T150405Z"
	DefaultDuration = 2 * time.Hour
)

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)

// ICS renders opportunities as an iCalendar file, one VEVENT each. Start and
// end are floating local times; events without an end time last two hours.
func ICS(opps []db.Opportunity, now time.Time, domain string) ([]byte, error) {
	var buf bytes.Buffer
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&buf, format, args...)
		buf.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:%s", icsProductID)
	line("CALSCALE:GREGORIAN")
	line("METHOD:PUBLISH")

	stamp := now.UTC().Format(icsUTCLayout)
	for _, opp := range opps {
		start, end, err := eventBounds(opp)
		if err != nil {
			return nil, err
		}

		line("BEGIN:VEVENT")
		line("UID:%s@%s", opp.ID, domain)
		line("DTSTAMP:%s", stamp)
		line("DTSTART:%s", start.Format(icsLocalLayout))
		line("DTEND:%s", end.Format(icsLocalLayout))
		line("SUMMARY:%s", icsEscaper.Replace(opp.Title))
		if opp.Description != "" {
			line("DESCRIPTION:%s", icsEscaper.Replace(opp.Description))
		}
		if opp.Location != "" {
			line("LOCATION:%s", icsEscaper.Replace(opp.Location))
		}
		line("CATEGORIES:%s", icsEscaper.Replace(string(opp.Category)))
		line("END:VEVENT")
	}

	line("END:VCALENDAR")
	return buf.Bytes(), nil
}

// eventBounds computes wall-clock start and end. UTC is used only as a
// zone-free carrier for the arithmetic; the values are written without a zone.
func eventBounds(opp db.Opportunity) (time.Time, time.Time, error) {
	start, err := time.Parse(Layout+" 15:04", opp.Date+" "+opp.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to parse start of opportunity %s: %w", opp.ID, err)
	}

	if opp.EndTime == nil || *opp.EndTime == "" {
		return start, start.Add(DefaultDuration), nil
	}

	end, err := time.Parse(Layout+" 15:04", opp.Date+" "+*opp.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to parse end of opportunity %s: %w", opp.ID, err)
	}
	if !end.After(start) {
		end = start.Add(DefaultDuration)
	}
	return start, end, nil
}
