package viewstate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/calendar"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
)

// Backend is the network side of a signup mutation
type Backend interface {
	SignUp(ctx context.Context, opportunityID string) error
	RemoveSignup(ctx context.Context, opportunityID string) error
	Load(ctx context.Context, dateRange db.DateRange) ([]db.OpportunityWithSignups, error)
}

// OptimisticSignUp declares a signup locally, commits it to the backend and
// reconciles. On rejection the synthetic entry is rolled back and the error
// is returned; on success the range is reloaded.
func OptimisticSignUp(ctx context.Context, store *Store, backend Backend, logger *zap.Logger, opportunityID string) error {
	intentID, err := store.BeginSignup(opportunityID)
	if err != nil {
		store.Notify(services.UserMessage(err))
		return err
	}
	logger.Debug("Declared signup", zap.String("intent", intentID), zap.String("opportunity_id", opportunityID))

	return settle(ctx, store, backend, logger, intentID, backend.SignUp(ctx, opportunityID))
}

// OptimisticRemove is OptimisticSignUp for withdrawing a signup
func OptimisticRemove(ctx context.Context, store *Store, backend Backend, logger *zap.Logger, opportunityID string) error {
	intentID, err := store.BeginRemove(opportunityID)
	if err != nil {
		store.Notify(services.UserMessage(err))
		return err
	}
	logger.Debug("Declared signup removal", zap.String("intent", intentID), zap.String("opportunity_id", opportunityID))

	return settle(ctx, store, backend, logger, intentID, backend.RemoveSignup(ctx, opportunityID))
}

func settle(ctx context.Context, store *Store, backend Backend, logger *zap.Logger, intentID string, commitErr error) error {
	if commitErr != nil {
		if err := store.Rollback(intentID); err != nil {
			logger.Error("Failed to roll back intent", zap.String("intent", intentID), zap.Error(err))
		}
		store.Notify(services.UserMessage(commitErr))
		logger.Info("Rolled back optimistic change", zap.String("intent", intentID), zap.Error(commitErr))
		return commitErr
	}

	if err := store.Commit(intentID); err != nil {
		return fmt.Errorf("failed to commit intent: %w", err)
	}

	// The mutation stands even if the reload fails; the committed entry stays
	// visible until the next successful load.
	if err := Reload(ctx, store, backend); err != nil {
		logger.Warn("Failed to reload after mutation", zap.Error(err))
	}
	return nil
}

// Reload fetches the store's current range and replaces the snapshot. An
// empty range is replaced by the range around the shown month.
func Reload(ctx context.Context, store *Store, backend Backend) error {
	st := store.State()
	dateRange := st.Range
	if dateRange.Start == "" {
		dateRange = services.DefaultRange(st.Month, services.DefaultLoadWindowMonths)
	} else if calendar.NeedsWiderRange(st.Month.Year(), st.Month.Month(), dateRange) {
		dateRange = services.WidenRange(dateRange, st.Month.Year(), st.Month.Month())
	}

	snapshot, err := backend.Load(ctx, dateRange)
	if err != nil {
		return fmt.Errorf("failed to load opportunities: %w", err)
	}
	store.Loaded(snapshot, dateRange)
	return nil
}

// Agenda returns the opportunities of the selected date
func Agenda(st State) []db.OpportunityWithSignups {
	return calendar.AgendaForDay(st.SelectedDate, st.Snapshot)
}

// Month returns the 42 cells of the shown month
func Month(st State) []calendar.Cell {
	return calendar.CellsForMonth(st.Month.Year(), st.Month.Month(), st.Snapshot, st.Month.Location())
}

// ServiceBackend binds the service layer to one caller
type ServiceBackend struct {
	Store  db.Database
	Logger *zap.Logger
	Caller *identity.Identity
}

func (b *ServiceBackend) SignUp(ctx context.Context, opportunityID string) error {
	_, err := services.SignUp(ctx, b.Store, b.Logger, b.Caller, opportunityID)
	return err
}

func (b *ServiceBackend) RemoveSignup(ctx context.Context, opportunityID string) error {
	return services.RemoveSignup(ctx, b.Store, b.Logger, b.Caller, opportunityID)
}

func (b *ServiceBackend) Load(ctx context.Context, dateRange db.DateRange) ([]db.OpportunityWithSignups, error) {
	return services.ListWithSignups(ctx, b.Store, b.Logger, dateRange)
}
