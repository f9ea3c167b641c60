package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/metrics"
)

// Mailer sends a plain-text email
type Mailer interface {
	SendEmail(to, subject, body string) error
}

// RenderReminder builds the subject and body of a shift reminder
func RenderReminder(details *db.ReminderDetails) (string, string) {
	opp := details.Opportunity

	date := opp.Date
	if t, err := time.Parse(dateLayout, opp.Date); err == nil {
		date = t.Format("Monday, January 2, 2006")
	}
	when := opp.StartTime
	if opp.EndTime != nil && *opp.EndTime != "" {
		when += " - " + *opp.EndTime
	}

	subject := fmt.Sprintf("Reminder: %s on %s", opp.Title, date)

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", details.Profile.FirstName)
	b.WriteString("This is a reminder that you are signed up for the following volunteer opportunity:\n\n")
	fmt.Fprintf(&b, "Opportunity: %s\n", opp.Title)
	fmt.Fprintf(&b, "Date: %s\n", date)
	fmt.Fprintf(&b, "Time: %s\n", when)
	fmt.Fprintf(&b, "Location: %s\n", opp.Location)
	if opp.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", opp.Description)
	}
	b.WriteString("\nIf you can no longer attend, please remove your signup in the volunteer portal so someone else can take your spot.\n\n")
	b.WriteString("Thank you for volunteering!\n")

	return subject, b.String()
}

// SendReminder emails the volunteer behind a signup about their upcoming shift
func SendReminder(ctx context.Context, store db.SignupStore, mailer Mailer, logger *zap.Logger, signupID string) (err error) {
	defer func() { metrics.RecordReminder(err) }()

	details, err := store.GetReminderDetails(ctx, signupID)
	if err != nil {
		return fmt.Errorf("failed to load signup %s: %w", signupID, err)
	}
	if details.Profile.Email == "" {
		return db.NewValidationError("email", "volunteer has no email address")
	}

	subject, body := RenderReminder(details)

	logger.Debug("Sending reminder",
		zap.String("signup_id", signupID),
		zap.String("to", details.Profile.Email))

	if err := mailer.SendEmail(details.Profile.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send reminder for %s: %w", signupID, err)
	}

	logger.Info("Reminder sent",
		zap.String("signup_id", signupID),
		zap.String("opportunity_id", details.Opportunity.ID))
	return nil
}
