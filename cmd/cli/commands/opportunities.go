package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/calendar"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/viewstate"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

func addOpportunityFlags(flags *pflag.FlagSet) {
	flags.String("date", "", "Date (YYYY-MM-DD)")
	flags.String("start", "", "Start time (HH:MM)")
	flags.String("end", "", "End time (HH:MM)")
	flags.String("title", "", "Title")
	flags.String("description", "", "Description")
	flags.String("location", "", "Location")
	flags.String("category", string(db.CategoryOnSnow), "Category (on-snow, off-snow, other)")
	flags.Int("capacity", 0, "Number of volunteers needed")
}

// CreateOpportunityCmd creates one opportunity, or a weekly series with --repeat-until
func CreateOpportunityCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-opportunity",
		Short: "Create a volunteer opportunity (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			input := services.OpportunityInput{}
			input.Date, _ = flags.GetString("date")
			input.StartTime, _ = flags.GetString("start")
			input.Title, _ = flags.GetString("title")
			input.Description, _ = flags.GetString("description")
			input.Location, _ = flags.GetString("location")
			input.Capacity, _ = flags.GetInt("capacity")
			category, _ := flags.GetString("category")
			input.Category = db.Category(category)
			if end, _ := flags.GetString("end"); end != "" {
				input.EndTime = &end
			}
			until, _ := flags.GetString("repeat-until")

			ctx, cancel := app.OpContext()
			defer cancel()

			if until == "" {
				opp, err := services.CreateOpportunity(ctx, app.Database, app.Logger, app.Caller(), input)
				if err != nil {
					return err
				}
				app.printf("\n%s Opportunity created: %s on %s at %s (%s)\n\n",
					okStyle.Render("✓"), opp.Title, opp.Date, timeRange(*opp), opp.ID)
				return nil
			}

			result, err := services.CreateRecurring(ctx, app.Database, app.Logger, app.Caller(), input, until, app.Cfg.Location())
			if err != nil {
				return err
			}

			app.printf("\n%s %s\n", okStyle.Render("✓"), result.Summary())
			for _, opp := range result.Created {
				app.printf("  %s %s\n", opp.Date, mutedStyle.Render(opp.ID))
			}
			if len(result.Failures) > 0 {
				app.printf("\n%s\n", warnStyle.Render(fmt.Sprintf("Failed to create %d:", len(result.Failures))))
				for _, f := range result.Failures {
					app.printf("  ✗ %s: %v\n", f.Date, f.Err)
				}
			}
			app.printf("\n")
			return nil
		},
	}

	addOpportunityFlags(cmd.Flags())
	cmd.Flags().String("repeat-until", "", "Repeat weekly through this date (YYYY-MM-DD)")
	return cmd
}

// UpdateOpportunityCmd patches the fields given as flags
func UpdateOpportunityCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-opportunity <id>",
		Short: "Update fields of an opportunity (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			patch := services.OpportunityPatch{}

			str := func(name string) *string {
				if !flags.Changed(name) {
					return nil
				}
				v, _ := flags.GetString(name)
				return &v
			}
			patch.Date = str("date")
			patch.StartTime = str("start")
			patch.EndTime = str("end")
			patch.Title = str("title")
			patch.Description = str("description")
			patch.Location = str("location")
			if c := str("category"); c != nil {
				category := db.Category(*c)
				patch.Category = &category
			}
			if flags.Changed("capacity") {
				capacity, _ := flags.GetInt("capacity")
				patch.Capacity = &capacity
			}
			patch.ClearEndTime, _ = flags.GetBool("clear-end")

			ctx, cancel := app.OpContext()
			defer cancel()

			opp, err := services.UpdateOpportunity(ctx, app.Database, app.Logger, app.Caller(), args[0], patch)
			if err != nil {
				return err
			}
			app.printf("\n%s Opportunity updated: %s on %s at %s, capacity %d\n\n",
				okStyle.Render("✓"), opp.Title, opp.Date, timeRange(*opp), opp.Capacity)
			return nil
		},
	}

	addOpportunityFlags(cmd.Flags())
	cmd.Flags().Bool("clear-end", false, "Remove the end time")
	return cmd
}

// DeleteOpportunityCmd deletes an opportunity and its signups
func DeleteOpportunityCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-opportunity <id>",
		Short: "Delete an opportunity and its signups (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			if err := services.DeleteOpportunity(ctx, app.Database, app.Logger, app.Caller(), args[0]); err != nil {
				return err
			}
			app.printf("\n%s Opportunity %s deleted\n\n", okStyle.Render("✓"), args[0])
			return nil
		},
	}
}

// ListCmd prints every opportunity in a date range with its signups
func ListCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List opportunities with their signups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dateRange := services.DefaultRange(app.now(), app.Cfg.LoadWindowMonths)
			if from, _ := cmd.Flags().GetString("from"); from != "" {
				dateRange.Start = from
			}
			if to, _ := cmd.Flags().GetString("to"); to != "" {
				dateRange.End = to
			}

			ctx, cancel := app.OpContext()
			defer cancel()

			if err := app.syncView(ctx); err != nil {
				return err
			}
			snapshot, err := services.ListWithSignups(ctx, app.Database, app.Logger, dateRange)
			if err != nil {
				return err
			}
			app.View.Loaded(snapshot, dateRange)

			app.printf("\n%s\n", headingStyle.Render(fmt.Sprintf("Opportunities %s to %s", dateRange.Start, dateRange.End)))
			printAgenda(app, snapshot, selfID(app))
			app.printf("\n")
			return nil
		},
	}

	cmd.Flags().String("from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last date (YYYY-MM-DD)")
	return cmd
}

// CalendarCmd prints a month grid. With no argument it shows the month the
// session is on; --shift moves from there.
func CalendarCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar [YYYY-MM]",
		Short: "Show a month of opportunities as a calendar",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			if err := app.syncView(ctx); err != nil {
				return err
			}

			reload := app.View.State().Range.Start == ""
			if len(args) == 1 {
				widen, err := app.View.Focus(args[0] + "-01")
				if err != nil {
					return db.NewValidationError("month", "must be YYYY-MM")
				}
				reload = reload || widen
			}
			if shift, _ := cmd.Flags().GetInt("shift"); shift != 0 {
				reload = app.View.ShowMonth(shift) || reload
			}

			if reload {
				if err := viewstate.Reload(ctx, app.View, app.backend()); err != nil {
					return err
				}
			}

			st := app.View.State()
			app.printf("\n%s\n", monthGrid(st.Month, viewstate.Month(st), st.SelectedDate, selfID(app)))
			return nil
		},
	}

	cmd.Flags().Int("shift", 0, "Months to move from the shown month (negative for earlier)")
	return cmd
}

// AgendaCmd prints the opportunities of one day
func AgendaCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "agenda [YYYY-MM-DD]",
		Short: "Show the opportunities of a day (defaults to the selected day)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			if err := app.syncView(ctx); err != nil {
				return err
			}

			dateKey := app.View.State().SelectedDate
			if len(args) == 1 {
				dateKey = args[0]
			}
			widen, err := app.View.Focus(dateKey)
			if err != nil {
				return err
			}
			if widen {
				if err := viewstate.Reload(ctx, app.View, app.backend()); err != nil {
					return err
				}
			}

			st := app.View.State()
			day, _ := calendar.ParseDateKey(st.SelectedDate, app.Cfg.Location())
			app.printf("\n%s\n", headingStyle.Render(day.Format("Monday, January 2, 2006")))
			printAgenda(app, viewstate.Agenda(st), selfID(app))
			app.printf("\n")
			return nil
		},
	}
}
