package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
)

// SendReminderCmd emails the volunteer behind a signup
func SendReminderCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "send-reminder <signup_id>",
		Short: "Email a shift reminder to a volunteer (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := identity.RequireAdmin(app.Caller()); err != nil {
				return err
			}
			if err := app.Google(); err != nil {
				return err
			}
			if app.Mailer == nil {
				return ErrGoogleUnavailable
			}

			ctx, cancel := app.OpContext()
			defer cancel()

			if err := services.SendReminder(ctx, app.Database, app.Mailer, app.Logger, args[0]); err != nil {
				return err
			}
			app.printf("%s Reminder sent\n", okStyle.Render("✓"))
			return nil
		},
	}
}

// PublishRosterCmd writes the roster for a date range to the roster spreadsheet
func PublishRosterCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish-roster",
		Short: "Publish the roster to the roster spreadsheet (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dateRange := services.DefaultRange(app.now(), app.Cfg.LoadWindowMonths)
			if from, _ := cmd.Flags().GetString("from"); from != "" {
				dateRange.Start = from
			}
			if to, _ := cmd.Flags().GetString("to"); to != "" {
				dateRange.End = to
			}

			if err := identity.RequireAdmin(app.Caller()); err != nil {
				return err
			}
			if err := app.Google(); err != nil {
				return err
			}
			if app.Roster == nil {
				return ErrGoogleUnavailable
			}

			ctx, cancel := app.OpContext()
			defer cancel()

			roster, err := services.PublishRoster(ctx, app.Database, app.Roster, app.Logger, app.Caller(), dateRange)
			if err != nil {
				return err
			}

			app.Logger.Debug("Roster command finished", zap.Int("rows", len(roster.Rows)))
			app.printf("\n%s Published %d opportunities for %s to %s\n\n",
				okStyle.Render("✓"), len(roster.Rows), roster.Range.Start, roster.Range.End)
			return nil
		},
	}

	cmd.Flags().String("from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last date (YYYY-MM-DD)")
	return cmd
}
