package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/calendar"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	mineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
)

const cellWidth = 11

func timeRange(opp db.Opportunity) string {
	if opp.EndTime != nil && *opp.EndTime != "" {
		return opp.StartTime + "-" + *opp.EndTime
	}
	return opp.StartTime
}

// opportunityLine renders one opportunity of an agenda. selfID marks the
// caller's own signups.
func opportunityLine(opp db.OpportunityWithSignups, selfID string) string {
	spots := fmt.Sprintf("%d/%d", len(opp.Signups), opp.Capacity)
	switch {
	case opp.IsFull():
		spots = warnStyle.Render(spots + " full")
	default:
		spots = okStyle.Render(fmt.Sprintf("%s (%d left)", spots, opp.SpotsLeft()))
	}

	line := fmt.Sprintf("%s  %-11s %s @ %s  %s  %s",
		opp.Date, timeRange(opp.Opportunity), headingStyle.Render(opp.Title), opp.Location, spots,
		mutedStyle.Render(opp.ID))
	if selfID != "" && opp.HasProfile(selfID) {
		line += " " + mineStyle.Render("[signed up]")
	}
	return line
}

func printAgenda(app *AppContext, opps []db.OpportunityWithSignups, selfID string) {
	if len(opps) == 0 {
		app.printf("%s\n", mutedStyle.Render("No opportunities."))
		return
	}
	for _, opp := range opps {
		app.printf("%s\n", opportunityLine(opp, selfID))
		for _, s := range opp.Signups {
			app.printf("    - %s\n", s.Profile.DisplayName())
		}
	}
}

// monthGrid lays the 42 cells out as six weeks of seven columns, Sunday first
func monthGrid(month time.Time, cells []calendar.Cell, selected, selfID string) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render(month.Format("January 2006")))
	b.WriteString("\n")

	header := make([]string, 0, 7)
	for _, d := range []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"} {
		header = append(header, lipgloss.NewStyle().Width(cellWidth).Render(d))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header...))
	b.WriteString("\n")

	for week := 0; week < len(cells)/7; week++ {
		row := make([]string, 0, 7)
		for _, cell := range cells[week*7 : week*7+7] {
			row = append(row, renderCell(cell, selected, selfID))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
		b.WriteString("\n")
	}
	return b.String()
}

func renderCell(cell calendar.Cell, selected, selfID string) string {
	label := fmt.Sprintf("%2d", cell.Date.Day())
	if n := len(cell.Opportunities); n > 0 {
		label += fmt.Sprintf(" •%d", n)
		for _, opp := range cell.Opportunities {
			if selfID != "" && opp.HasProfile(selfID) {
				label += "*"
				break
			}
		}
	}
	if cell.Key == selected {
		label = "[" + label + "]"
	}

	style := lipgloss.NewStyle().Width(cellWidth)
	if !cell.IsCurrentMonth {
		style = style.Inherit(mutedStyle)
	}
	return style.Render(label)
}

func printNotice(app *AppContext) {
	if notice := app.View.State().Notice; notice != "" {
		app.printf("%s\n", errStyle.Render(notice))
		app.View.Notify("")
	}
}

func selfID(app *AppContext) string {
	if p := app.View.State().Profile; p != nil {
		return p.ID
	}
	return ""
}

var genericMessage = services.UserMessage(errors.New("unclassified"))

// DescribeError prefers the friendly message for known failures and falls
// back to the raw error for everything else, such as flag parsing
func DescribeError(err error) string {
	if msg := services.UserMessage(err); msg != genericMessage {
		return msg
	}
	return err.Error()
}
