package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/calendar"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/viewstate"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

// focusOpportunity shows the opportunity's day and refreshes the view store
// so an intent can be declared against current data
func focusOpportunity(ctx context.Context, app *AppContext, opportunityID string) error {
	if err := app.syncView(ctx); err != nil {
		return err
	}

	opp, err := app.Database.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return fmt.Errorf("failed to load opportunity %s: %w", opportunityID, err)
	}

	if _, err := app.View.Focus(opp.Date); err != nil {
		return err
	}
	return viewstate.Reload(ctx, app.View, app.backend())
}

// SignUpCmd signs the caller up, showing the result optimistically
func SignUpCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sign-up <opportunity_id>",
		Short: "Sign up for an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			if err := focusOpportunity(ctx, app, args[0]); err != nil {
				return err
			}

			if err := viewstate.OptimisticSignUp(ctx, app.View, app.backend(), app.Logger, args[0]); err != nil {
				printNotice(app)
				return err
			}

			app.printf("\n%s Signed up\n", okStyle.Render("✓"))
			printAgenda(app, viewstate.Agenda(app.View.State()), selfID(app))
			app.printf("\n")
			return nil
		},
	}
}

// RemoveSignupCmd withdraws the caller's signup
func RemoveSignupCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-signup <opportunity_id>",
		Short: "Withdraw from an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			if err := focusOpportunity(ctx, app, args[0]); err != nil {
				return err
			}

			if err := viewstate.OptimisticRemove(ctx, app.View, app.backend(), app.Logger, args[0]); err != nil {
				printNotice(app)
				return err
			}

			app.printf("\n%s Signup removed\n", okStyle.Render("✓"))
			printAgenda(app, viewstate.Agenda(app.View.State()), selfID(app))
			app.printf("\n")
			return nil
		},
	}
}

// SignupStatusCmd reports whether the caller is signed up
func SignupStatusCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "signup-status <opportunity_id>",
		Short: "Check whether you are signed up for an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			signedUp, err := services.IsSignedUp(ctx, app.Database, app.Caller(), args[0])
			if err != nil {
				return err
			}
			if signedUp {
				app.printf("%s\n", mineStyle.Render("You are signed up."))
			} else {
				app.printf("%s\n", mutedStyle.Render("You are not signed up."))
			}
			return nil
		},
	}
}

// MySignupsCmd lists the caller's signups
func MySignupsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "my-signups",
		Short: "List your signups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			signups, err := services.MySignups(ctx, app.Database, app.Logger, app.Caller())
			if err != nil {
				return err
			}

			app.printf("\n%s\n", headingStyle.Render(fmt.Sprintf("You have %d signups", len(signups))))
			for _, s := range signups {
				app.printf("  %s  %-11s %s @ %s  %s\n",
					s.Opportunity.Date, timeRange(s.Opportunity), s.Opportunity.Title, s.Opportunity.Location,
					mutedStyle.Render("signup "+s.ID))
			}
			app.printf("\n")
			return nil
		},
	}
}

// ExportICSCmd writes the caller's signups as an iCalendar file
func ExportICSCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-ics",
		Short: "Export your signups as an .ics calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			signups, err := services.MySignups(ctx, app.Database, app.Logger, app.Caller())
			if err != nil {
				return err
			}

			opps := make([]db.Opportunity, 0, len(signups))
			for _, s := range signups {
				opps = append(opps, s.Opportunity)
			}

			domain := app.Cfg.ICSDomain
			if domain == "" {
				domain = "volunteer-portal"
			}
			data, err := calendar.ICS(opps, app.now(), domain)
			if err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			if output == "" || output == "-" {
				_, err := app.out().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			app.Logger.Info("Exported signups", zap.String("file", output), zap.Int("events", len(opps)))
			app.printf("%s Wrote %d events to %s\n", okStyle.Render("✓"), len(opps), output)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "File to write (default stdout)")
	return cmd
}
