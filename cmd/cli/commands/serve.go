package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/httpapi"
	"github.com/freestylevancouver/volunteer-portal/pkg/metrics"
	"github.com/freestylevancouver/volunteer-portal/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd runs the HTTP API until interrupted
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Cfg.HTTP.Addr
			}

			// Gmail and Sheets are optional for the API; their routes answer
			// 503 without them
			if err := app.Google(); err != nil {
				app.Logger.Warn("Google integration unavailable, reminder and roster routes disabled", zap.Error(err))
			}

			api := httpapi.New(httpapi.Options{
				DB:               app.Database,
				Feed:             app.Feed,
				Verifier:         app.Verifier,
				Logger:           app.Logger,
				Location:         app.Cfg.Location(),
				ChatLimits:       app.ChatLimits(),
				LoadWindowMonths: app.Cfg.LoadWindowMonths,
				RequestTimeout:   app.Cfg.RequestTimeout,
				AllowedOrigins:   app.Cfg.HTTP.AllowedOrigins,
				ICSDomain:        app.Cfg.ICSDomain,
				Mailer:           app.Mailer,
				Roster:           app.Roster,
			})

			ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			servers := []*http.Server{newHTTPServer(addr, api.Router())}
			if app.Cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				servers = append(servers, newHTTPServer(app.Cfg.MetricsAddr, mux))
			}

			errs := make(chan error, len(servers))
			for _, srv := range servers {
				go func(srv *http.Server) {
					app.Logger.Info("Listening", zap.String("addr", srv.Addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errs <- fmt.Errorf("failed to serve on %s: %w", srv.Addr, err)
					}
				}(srv)
			}

			var serveErr error
			select {
			case <-ctx.Done():
				app.Logger.Info("Shutting down")
			case serveErr = <-errs:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			for _, srv := range servers {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					app.Logger.Warn("Server did not shut down cleanly", zap.String("addr", srv.Addr), zap.Error(err))
				}
			}
			return serveErr
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config)")
	return cmd
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// MigrateCmd applies pending database migrations
func MigrateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Migrator == nil {
				return errors.New("the configured database has no migrations")
			}

			applied, err := app.Migrator.RunMigrations(app.Ctx)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				app.printf("%s\n", mutedStyle.Render("Database is up to date."))
				return nil
			}
			app.printf("\n%s Applied %d migrations:\n", okStyle.Render("✓"), len(applied))
			for _, name := range applied {
				app.printf("  %s\n", name)
			}
			app.printf("\n")
			return nil
		},
	}
}

// IssueTokenCmd signs an access token. It is meant for local setups where no
// external identity provider issues tokens.
func IssueTokenCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue-token <user_id> <email>",
		Short: "Sign an access token for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			token, err := app.Verifier.Issue(args[0], args[1], role, ttl)
			if err != nil {
				return err
			}
			app.Logger.Info("Issued token", zap.String("user_id", args[0]), zap.String("role", role), zap.Duration("ttl", ttl))
			app.printf("%s\n", token)
			return nil
		},
	}

	cmd.Flags().String("role", "", "Role claim (use the configured admin role for admins)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

// LoginCmd signs the session in with an access token. Without an argument
// the token is read from the terminal with echo disabled.
func LoginCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "login [token]",
		Short: "Sign in with an access token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				read, err := readToken()
				if err != nil {
					return err
				}
				token = read
			}

			id, err := app.Session.SignIn(token)
			if err != nil {
				return err
			}

			ctx, cancel := app.OpContext()
			defer cancel()
			if err := app.syncView(ctx); err != nil {
				return err
			}

			app.printf("%s Signed in as %s\n", okStyle.Render("✓"), id.Email)
			if app.View.State().Profile == nil {
				app.printf("%s\n", warnStyle.Render(services.UserMessage(db.ErrNoProfile)))
			}
			return nil
		},
	}
}

func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for the token prompt, pass the token as an argument")
	}

	fmt.Fprint(os.Stderr, "Token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// LogoutCmd signs the session out
func LogoutCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Session.SignOut()

			ctx, cancel := app.OpContext()
			defer cancel()
			if err := app.syncView(ctx); err != nil {
				return err
			}
			app.printf("%s Signed out\n", okStyle.Render("✓"))

			if google, _ := cmd.Flags().GetBool("google"); google {
				if err := utils.ClearToken(app.Env); err != nil {
					return fmt.Errorf("failed to clear Google token: %w", err)
				}
				app.Mailer = nil
				app.Roster = nil
				app.printf("%s Google authorization cleared\n", okStyle.Render("✓"))
			}
			return nil
		},
	}

	cmd.Flags().Bool("google", false, "Also forget the cached Google authorization for this environment")
	return cmd
}
