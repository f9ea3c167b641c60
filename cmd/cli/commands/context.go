package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/internal/config"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/viewstate"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
	"github.com/freestylevancouver/volunteer-portal/pkg/realtime"
)

// ErrGoogleUnavailable is returned by commands that need Gmail or Sheets when
// no Google connection could be made
var ErrGoogleUnavailable = errors.New("google integration is not configured")

// Migrator applies pending schema migrations
type Migrator interface {
	RunMigrations(ctx context.Context) ([]string, error)
}

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Env      string
	Cfg      *config.Config
	Database db.Database
	Migrator Migrator
	Feed     realtime.Feed
	Verifier *identity.Verifier
	Session  *identity.Session
	View     *viewstate.Store
	Logger   *zap.Logger
	Ctx      context.Context
	In       io.Reader
	Out      io.Writer
	Now      func() time.Time

	// Mailer and Roster are filled in by ConnectGoogle on first use so that
	// commands which never touch Google do not start the OAuth flow
	Mailer        services.Mailer
	Roster        services.RosterPublisher
	ConnectGoogle func(app *AppContext) error
}

// Caller returns the signed-in identity, or nil
func (a *AppContext) Caller() *identity.Identity {
	if a.Session == nil {
		return nil
	}
	return a.Session.Current()
}

// OpContext bounds one operation by the configured request timeout
func (a *AppContext) OpContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(a.Ctx, a.Cfg.RequestTimeout)
}

func (a *AppContext) ChatLimits() services.ChatLimits {
	return services.ChatLimits{
		HistoryLimit:     a.Cfg.Chat.HistoryLimit,
		MaxMessageLength: a.Cfg.Chat.MaxMessageLength,
	}
}

func (a *AppContext) now() time.Time {
	if a.Now != nil {
		return a.Now().In(a.Cfg.Location())
	}
	return time.Now().In(a.Cfg.Location())
}

func (a *AppContext) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *AppContext) in() io.Reader {
	if a.In == nil {
		return os.Stdin
	}
	return a.In
}

func (a *AppContext) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out(), format, args...)
}

// Google makes sure the Gmail and Sheets clients exist
func (a *AppContext) Google() error {
	if a.Mailer != nil || a.Roster != nil {
		return nil
	}
	if a.ConnectGoogle == nil {
		return ErrGoogleUnavailable
	}
	return a.ConnectGoogle(a)
}

// backend binds the view store to the signed-in caller
func (a *AppContext) backend() *viewstate.ServiceBackend {
	return &viewstate.ServiceBackend{Store: a.Database, Logger: a.Logger, Caller: a.Caller()}
}

// syncView points the view store at the caller's role and profile
func (a *AppContext) syncView(ctx context.Context) error {
	caller := a.Caller()
	role := viewstate.RoleVolunteer
	if caller != nil && caller.Admin {
		role = viewstate.RoleAdmin
	}
	if err := a.View.SetRole(role); err != nil {
		return err
	}

	if caller == nil {
		a.View.SetProfile(nil)
		return nil
	}

	profile, err := services.CurrentProfile(ctx, a.Database, caller)
	if errors.Is(err, db.ErrNoProfile) {
		a.View.SetProfile(nil)
		return nil
	}
	if err != nil {
		return err
	}
	a.View.SetProfile(profile)
	return nil
}
