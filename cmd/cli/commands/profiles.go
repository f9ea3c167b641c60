package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

func addProfileFlags(flags *pflag.FlagSet) {
	flags.String("first-name", "", "First name")
	flags.String("last-name", "", "Last name")
	flags.String("email", "", "Email (defaults to the signed-in email)")
	flags.String("mobile", "", "Mobile number")
	flags.String("home", "", "Home mountain or area")
	flags.String("ability", "", "Skiing ability")
}

func profileInput(flags *pflag.FlagSet) services.ProfileInput {
	input := services.ProfileInput{}
	input.FirstName, _ = flags.GetString("first-name")
	input.LastName, _ = flags.GetString("last-name")
	input.Email, _ = flags.GetString("email")
	input.Mobile, _ = flags.GetString("mobile")
	input.HomeLocation, _ = flags.GetString("home")
	input.SkiingAbility, _ = flags.GetString("ability")
	return input
}

func printProfile(app *AppContext, p *db.Profile) {
	app.printf("  %s <%s>  %s  %s  %s\n", headingStyle.Render(p.DisplayName()), p.Email, p.Mobile, p.Status, mutedStyle.Render(p.ID))
}

// RegisterCmd creates the caller's volunteer profile
func RegisterCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create your volunteer profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			profile, err := services.RegisterProfile(ctx, app.Database, app.Logger, app.Caller(), profileInput(cmd.Flags()))
			if err != nil {
				return err
			}
			app.View.SetProfile(profile)

			app.printf("\n%s Registered\n", okStyle.Render("✓"))
			printProfile(app, profile)
			app.printf("\n")
			return nil
		},
	}
	addProfileFlags(cmd.Flags())
	return cmd
}

// UpdateProfileCmd replaces the caller's profile fields
func UpdateProfileCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-profile",
		Short: "Update your volunteer profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			profile, err := services.UpdateOwnProfile(ctx, app.Database, app.Logger, app.Caller(), profileInput(cmd.Flags()))
			if err != nil {
				return err
			}
			app.View.SetProfile(profile)

			app.printf("\n%s Profile updated\n", okStyle.Render("✓"))
			printProfile(app, profile)
			app.printf("\n")
			return nil
		},
	}
	addProfileFlags(cmd.Flags())
	return cmd
}

// WhoAmICmd prints the signed-in identity and profile
func WhoAmICmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity and profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller := app.Caller()
			if caller == nil {
				app.printf("%s\n", mutedStyle.Render("Not signed in."))
				return nil
			}

			role := "volunteer"
			if caller.Admin {
				role = "admin"
			}
			app.printf("\nSigned in as %s (%s, %s)\n", caller.Email, caller.UserID, role)

			ctx, cancel := app.OpContext()
			defer cancel()

			profile, err := services.CurrentProfile(ctx, app.Database, caller)
			if err != nil {
				app.printf("%s\n\n", warnStyle.Render(services.UserMessage(err)))
				return nil
			}
			printProfile(app, profile)
			app.printf("\n")
			return nil
		},
	}
}

// ProfilesCmd lists every volunteer profile
func ProfilesCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List volunteer profiles (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			profiles, err := services.ListProfiles(ctx, app.Database, app.Caller())
			if err != nil {
				return err
			}

			app.printf("\nFound %d profiles:\n\n", len(profiles))
			for i := range profiles {
				printProfile(app, &profiles[i])
			}
			app.printf("\n")
			return nil
		},
	}
}

// SetStatusCmd changes a volunteer's status
func SetStatusCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <profile_id> <pending|active|inactive>",
		Short: "Change a volunteer's status (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.OpContext()
			defer cancel()

			profile, err := services.SetProfileStatus(ctx, app.Database, app.Logger, app.Caller(), args[0], db.ProfileStatus(args[1]))
			if err != nil {
				return err
			}
			app.printf("\n%s Status changed\n", okStyle.Render("✓"))
			printProfile(app, profile)
			app.printf("\n")
			return nil
		},
	}
}
