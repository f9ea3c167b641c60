package viewstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/db/memdb"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
)

var (
	admin     = &identity.Identity{UserID: "admin-user", Role: "admin", Admin: true}
	volunteer = &identity.Identity{UserID: "vol-user", Email: "vol@example.com"}
	other     = &identity.Identity{UserID: "other-user", Email: "other@example.com"}

	feb = time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	db      *memdb.Store
	store   *Store
	backend *ServiceBackend
	profile *db.Profile
	opp     *db.Opportunity
}

func register(t *testing.T, store *memdb.Store, caller *identity.Identity, first string) *db.Profile {
	t.Helper()
	p, err := services.RegisterProfile(context.Background(), store, zap.NewNop(), caller, services.ProfileInput{
		FirstName:    first,
		LastName:     "Tester",
		Mobile:       "604-555-0100",
		HomeLocation: "Grouse",
	})
	require.NoError(t, err)
	return p
}

func setup(t *testing.T, capacity int) *fixture {
	t.Helper()
	mem := memdb.New()
	profile := register(t, mem, volunteer, "Vee")

	opp, err := services.CreateOpportunity(context.Background(), mem, zap.NewNop(), admin, services.OpportunityInput{
		Date:        "2024-02-10",
		StartTime:   "09:00",
		Title:       "Race crew",
		Description: "Set gates for the slalom",
		Location:    "Cypress",
		Category:    db.CategoryOnSnow,
		Capacity:    capacity,
	})
	require.NoError(t, err)

	store := NewStore(feb)
	store.SetProfile(profile)
	backend := &ServiceBackend{Store: mem, Logger: zap.NewNop(), Caller: volunteer}
	require.NoError(t, Reload(context.Background(), store, backend))

	return &fixture{db: mem, store: store, backend: backend, profile: profile, opp: opp}
}

func findOpp(t *testing.T, st State, id string) db.OpportunityWithSignups {
	t.Helper()
	for _, o := range st.Snapshot {
		if o.ID == id {
			return o
		}
	}
	t.Fatalf("opportunity %s not in snapshot", id)
	return db.OpportunityWithSignups{}
}

// observingBackend lets a test look at the view while the commit is in flight
type observingBackend struct {
	*ServiceBackend
	duringSignUp func()
}

func (b *observingBackend) SignUp(ctx context.Context, opportunityID string) error {
	if b.duringSignUp != nil {
		b.duringSignUp()
	}
	return b.ServiceBackend.SignUp(ctx, opportunityID)
}

func TestOptimisticSignUp_RollsBackRejectedSignup(t *testing.T) {
	f := setup(t, 1)

	// Someone else takes the last spot after our snapshot was loaded
	register(t, f.db, other, "Otto")
	_, err := services.SignUp(context.Background(), f.db, zap.NewNop(), other, f.opp.ID)
	require.NoError(t, err)

	var shownDuringCommit bool
	backend := &observingBackend{ServiceBackend: f.backend, duringSignUp: func() {
		shownDuringCommit = findOpp(t, f.store.State(), f.opp.ID).HasProfile(f.profile.ID)
	}}

	err = OptimisticSignUp(context.Background(), f.store, backend, zap.NewNop(), f.opp.ID)
	require.ErrorIs(t, err, db.ErrFull)

	assert.True(t, shownDuringCommit)
	st := f.store.State()
	opp := findOpp(t, st, f.opp.ID)
	assert.False(t, opp.HasProfile(f.profile.ID))
	assert.Empty(t, opp.Signups)
	assert.Equal(t, "Sorry, this opportunity is already full.", st.Notice)
	assert.Equal(t, 1, f.db.SignupCount(f.opp.ID))
}

func TestOptimisticSignUp_ReloadsOnSuccess(t *testing.T) {
	f := setup(t, 2)

	require.NoError(t, OptimisticSignUp(context.Background(), f.store, f.backend, zap.NewNop(), f.opp.ID))

	opp := findOpp(t, f.store.State(), f.opp.ID)
	require.Len(t, opp.Signups, 1)
	assert.True(t, opp.HasProfile(f.profile.ID))
	// the reload replaced the synthetic entry with the stored one
	assert.NotContains(t, opp.Signups[0].ID, "pending-")
}

func TestOptimisticRemove(t *testing.T) {
	f := setup(t, 2)
	require.NoError(t, OptimisticSignUp(context.Background(), f.store, f.backend, zap.NewNop(), f.opp.ID))

	require.NoError(t, OptimisticRemove(context.Background(), f.store, f.backend, zap.NewNop(), f.opp.ID))

	assert.False(t, findOpp(t, f.store.State(), f.opp.ID).HasProfile(f.profile.ID))
	assert.Equal(t, 0, f.db.SignupCount(f.opp.ID))
}

func TestOptimisticRemove_RollsBackOnFailure(t *testing.T) {
	f := setup(t, 2)
	require.NoError(t, OptimisticSignUp(context.Background(), f.store, f.backend, zap.NewNop(), f.opp.ID))

	f.db.Errors["DeleteSignup"] = errors.New("connection reset")
	err := OptimisticRemove(context.Background(), f.store, f.backend, zap.NewNop(), f.opp.ID)
	require.Error(t, err)

	st := f.store.State()
	assert.True(t, findOpp(t, st, f.opp.ID).HasProfile(f.profile.ID))
	assert.Equal(t, "Something went wrong. Please try again.", st.Notice)
}

func TestIntentTransitions(t *testing.T) {
	f := setup(t, 2)

	id, err := f.store.BeginSignup(f.opp.ID)
	require.NoError(t, err)
	in, ok := f.store.Intent(id)
	require.True(t, ok)
	assert.Equal(t, StatusPending, in.Status)
	assert.True(t, findOpp(t, f.store.State(), f.opp.ID).HasProfile(f.profile.ID))

	require.NoError(t, f.store.Rollback(id))
	in, _ = f.store.Intent(id)
	assert.Equal(t, StatusRolledBack, in.Status)
	assert.False(t, findOpp(t, f.store.State(), f.opp.ID).HasProfile(f.profile.ID))

	// settled intents cannot move again
	assert.Error(t, f.store.Commit(id))
	assert.Error(t, f.store.Rollback(id))
	assert.ErrorIs(t, f.store.Commit("missing"), db.ErrNotFound)
}

func TestBeginSignup_Rejections(t *testing.T) {
	f := setup(t, 2)

	_, err := f.store.BeginSignup("not-loaded")
	assert.ErrorIs(t, err, db.ErrNotFound)

	id, err := f.store.BeginSignup(f.opp.ID)
	require.NoError(t, err)
	_, err = f.store.BeginSignup(f.opp.ID)
	assert.ErrorIs(t, err, db.ErrAlreadySignedUp)
	require.NoError(t, f.store.Rollback(id))

	_, err = f.store.BeginRemove(f.opp.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	f.store.SetProfile(nil)
	_, err = f.store.BeginSignup(f.opp.ID)
	assert.ErrorIs(t, err, db.ErrNoProfile)
}

func TestLoaded_KeepsPendingIntentsVisible(t *testing.T) {
	f := setup(t, 2)

	_, err := f.store.BeginSignup(f.opp.ID)
	require.NoError(t, err)

	// a reload lands before the commit resolves
	require.NoError(t, Reload(context.Background(), f.store, f.backend))

	opp := findOpp(t, f.store.State(), f.opp.ID)
	assert.True(t, opp.HasProfile(f.profile.ID))
	assert.Len(t, opp.Signups, 1)
}

func TestState_IsACopy(t *testing.T) {
	f := setup(t, 2)

	st := f.store.State()
	st.Snapshot[0].Signups = append(st.Snapshot[0].Signups, db.SignupWithProfile{})
	st.Profile.FirstName = "Changed"

	fresh := f.store.State()
	assert.Empty(t, fresh.Snapshot[0].Signups)
	assert.Equal(t, "Vee", fresh.Profile.FirstName)
}

func TestSimpleTransitions(t *testing.T) {
	store := NewStore(feb)
	var seen []State
	store.Watch(func(st State) { seen = append(seen, st) })

	assert.Equal(t, "2024-02-05", store.State().SelectedDate)

	require.NoError(t, store.SelectDate("2024-02-10"))
	assert.Error(t, store.SelectDate("10/02/2024"))
	require.NoError(t, store.SetRole(RoleAdmin))
	assert.Error(t, store.SetRole("owner"))

	st := store.State()
	assert.Equal(t, "2024-02-10", st.SelectedDate)
	assert.Equal(t, RoleAdmin, st.Role)
	assert.Len(t, seen, 2)

	store.Loaded(nil, services.DefaultRange(feb, 0))
	assert.False(t, store.ShowMonth(0))
	assert.True(t, store.ShowMonth(1))
	assert.Equal(t, time.March, store.State().Month.Month())
}

func TestAgendaAndMonth(t *testing.T) {
	f := setup(t, 2)
	require.NoError(t, f.store.SelectDate("2024-02-10"))

	st := f.store.State()
	agenda := Agenda(st)
	require.Len(t, agenda, 1)
	assert.Equal(t, f.opp.ID, agenda[0].ID)

	cells := Month(st)
	assert.Len(t, cells, 42)
}

func TestFocus(t *testing.T) {
	f := setup(t, 2)

	widen, err := f.store.Focus("2024-02-20")
	require.NoError(t, err)
	assert.False(t, widen)
	st := f.store.State()
	assert.Equal(t, "2024-02-20", st.SelectedDate)
	assert.Equal(t, time.February, st.Month.Month())

	widen, err = f.store.Focus("2024-09-03")
	require.NoError(t, err)
	assert.True(t, widen)
	assert.Equal(t, time.September, f.store.State().Month.Month())

	require.NoError(t, Reload(context.Background(), f.store, f.backend))
	assert.True(t, f.store.State().Range.Contains("2024-09-30"))

	_, err = f.store.Focus("09/03/2024")
	assert.True(t, db.IsValidation(err))
}
