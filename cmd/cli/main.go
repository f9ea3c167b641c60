package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/cmd/cli/commands"
	"github.com/freestylevancouver/volunteer-portal/internal/config"
	"github.com/freestylevancouver/volunteer-portal/pkg/clients/gmailclient"
	"github.com/freestylevancouver/volunteer-portal/pkg/clients/sheetsclient"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/viewstate"
	"github.com/freestylevancouver/volunteer-portal/pkg/db/memdb"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
	"github.com/freestylevancouver/volunteer-portal/pkg/postgres"
	"github.com/freestylevancouver/volunteer-portal/pkg/realtime"
	"github.com/freestylevancouver/volunteer-portal/pkg/utils"
	"github.com/freestylevancouver/volunteer-portal/pkg/utils/logging"
)

// EnvToken carries an access token when --token is not given
const EnvToken = "PORTAL_TOKEN"

var (
	env     string
	token   string
	verbose bool
	app     = &commands.AppContext{}
	closers []func()
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "portal",
		Short:         "Freestyle volunteer portal - opportunities, signups and team chat",
		Long:          `A CLI for the volunteer portal: manage opportunities and signups, follow team chat and run the HTTP API.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			shutdown()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: dev, prod, etc.)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Access token (default $"+EnvToken+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to the console")
	rootCmd.MarkPersistentFlagRequired("env")

	rootCmd.AddCommand(
		commands.ServeCmd(app),
		commands.MigrateCmd(app),
		commands.IssueTokenCmd(app),
		commands.LoginCmd(app),
		commands.LogoutCmd(app),
		commands.WhoAmICmd(app),

		commands.RegisterCmd(app),
		commands.UpdateProfileCmd(app),
		commands.ProfilesCmd(app),
		commands.SetStatusCmd(app),

		commands.CreateOpportunityCmd(app),
		commands.UpdateOpportunityCmd(app),
		commands.DeleteOpportunityCmd(app),
		commands.ListCmd(app),
		commands.CalendarCmd(app),
		commands.AgendaCmd(app),

		commands.SignUpCmd(app),
		commands.RemoveSignupCmd(app),
		commands.SignupStatusCmd(app),
		commands.MySignupsCmd(app),
		commands.ExportICSCmd(app),

		commands.RoomsCmd(app),
		commands.HistoryCmd(app),
		commands.SendCmd(app),
		commands.DeleteMessageCmd(app),
		commands.CreateTeamRoomCmd(app),
		commands.AddMemberCmd(app),
		commands.WatchCmd(app),

		commands.SendReminderCmd(app),
		commands.PublishRosterCmd(app),

		commands.InteractiveCmd(app),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+commands.DescribeError(err))
		shutdown()
		os.Exit(1)
	}
}

// initApp sets up the logger, config, database, feed and session
func initApp() error {
	var err error
	app.Env = env
	app.Ctx = context.Background()

	app.Logger, err = logging.InitLogger(env, logging.Verbose(verbose))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger.Debug("Starting application")

	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded", zap.String("timezone", app.Cfg.Timezone))

	if err := initDatabase(); err != nil {
		return err
	}

	app.Verifier = identity.NewVerifier(app.Cfg.JWTSecret, app.Cfg.AdminRole)
	app.Session = identity.NewSession(app.Verifier, app.Logger)
	app.Session.OnAuthEvent(func(event identity.Event, id *identity.Identity) {
		fields := []zap.Field{zap.String("event", string(event))}
		if id != nil {
			fields = append(fields, zap.String("user_id", id.UserID))
		}
		app.Logger.Debug("Auth event", fields...)
	})

	if token == "" {
		token = os.Getenv(EnvToken)
	}
	if token != "" {
		if _, err := app.Session.SignIn(token); err != nil {
			return fmt.Errorf("failed to sign in: %w", err)
		}
	}

	app.View = viewstate.NewStore(time.Now().In(app.Cfg.Location()))
	app.ConnectGoogle = connectGoogle
	return nil
}

// initDatabase picks the store and the realtime feed. A databaseURL of
// "memory" keeps everything in process, which is handy for trying the CLI.
func initDatabase() error {
	if app.Cfg.DatabaseURL == "memory" {
		app.Logger.Warn("Using the in-memory database, nothing will be persisted")
		app.Database = memdb.New()
		if app.Cfg.Realtime.Driver == config.DriverPostgres {
			app.Feed = realtime.NewMemoryFeed(app.Logger)
			return nil
		}
		return initFeed(nil)
	}

	app.Logger.Info("Connecting to database")
	pg, err := postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	closers = append(closers, pg.Close)
	app.Database = pg
	app.Migrator = pg

	return initFeed(pg)
}

func initFeed(pg *postgres.DB) error {
	switch app.Cfg.Realtime.Driver {
	case config.DriverPostgres:
		app.Feed = pg.Feed()
	case config.DriverNATS:
		feed, err := realtime.NewNATSFeed(app.Cfg.Realtime.NATSURL, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		closers = append(closers, func() { _ = feed.Close() })
		app.Feed = feed
	default:
		app.Feed = realtime.NewMemoryFeed(app.Logger)
	}
	app.Logger.Debug("Realtime feed ready", zap.String("driver", app.Cfg.Realtime.Driver))
	return nil
}

// connectGoogle runs the OAuth flow and builds the Gmail and Sheets clients
func connectGoogle(a *commands.AppContext) error {
	if a.Cfg.GmailSender == "" && a.Cfg.RosterSheetID == "" {
		return commands.ErrGoogleUnavailable
	}

	a.Logger.Info("Loading OAuth client configuration")
	oauthCfg, err := config.LoadOAuthClientWithEnv(a.Env)
	if err != nil {
		return fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return err
	}
	tok, err := utils.GetTokenWithFlow(a.Ctx, oauthConfig, a.Env, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to get OAuth token: %w", err)
	}

	if a.Cfg.GmailSender != "" {
		gmail, err := gmailclient.NewClient(a.Ctx, oauthCfg, tok, a.Cfg.GmailSender, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create gmail client: %w", err)
		}
		a.Mailer = gmail
		a.Logger.Debug("Gmail client initialized")
	}

	if a.Cfg.RosterSheetID != "" {
		sheets, err := sheetsclient.NewClient(a.Ctx, oauthCfg, tok)
		if err != nil {
			return fmt.Errorf("failed to create sheets client: %w", err)
		}
		a.Roster = sheetsclient.NewRosterPublisher(sheets, a.Cfg.RosterSheetID, a.Logger)
		a.Logger.Debug("Sheets client initialized")
	}
	return nil
}

func shutdown() {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	closers = nil
	if app.Logger != nil {
		_ = app.Logger.Sync()
	}
}
