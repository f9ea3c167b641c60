// Package viewstate holds the shell's view of the calendar as a store with
// named transitions. Signups and removals are applied optimistically as
// intents that are later committed or rolled back.
package viewstate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/calendar"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

// Role selects which capabilities the shell offers
type Role string

const (
	RoleVolunteer Role = "volunteer"
	RoleAdmin     Role = "admin"
)

// IntentKind is the mutation an intent stands for
type IntentKind string

const (
	IntentSignup IntentKind = "signup"
	IntentRemove IntentKind = "remove"
)

// IntentStatus moves Pending -> Committed or Pending -> RolledBack, never back
type IntentStatus string

const (
	StatusPending    IntentStatus = "pending"
	StatusCommitted  IntentStatus = "committed"
	StatusRolledBack IntentStatus = "rolled_back"
)

// Intent is one optimistic mutation of the snapshot
type Intent struct {
	ID            string
	Kind          IntentKind
	OpportunityID string
	Status        IntentStatus

	// entry is the synthetic signup for IntentSignup, or the removed signup
	// for IntentRemove
	entry db.SignupWithProfile
}

// State is an immutable copy of the store's contents
type State struct {
	Role         Role
	Profile      *db.Profile
	SelectedDate string
	Month        time.Time
	Range        db.DateRange
	Snapshot     []db.OpportunityWithSignups
	Notice       string
}

// Store owns the snapshot. The optimistic apply/rollback pair is the only
// local mutation path; everything else replaces the snapshot wholesale.
type Store struct {
	mu       sync.Mutex
	state    State
	intents  map[string]*Intent
	watchers []func(State)
	now      func() time.Time
}

// NewStore creates a store showing the month containing now
func NewStore(now time.Time) *Store {
	return &Store{
		state: State{
			Role:         RoleVolunteer,
			SelectedDate: calendar.DateKey(now),
			Month:        time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()),
		},
		intents: make(map[string]*Intent),
		now:     time.Now,
	}
}

// Watch registers fn to be called with the new state after every transition
func (s *Store) Watch(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// State returns a copy of the current state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyState()
}

// Intent returns a copy of an intent
func (s *Store) Intent(id string) (Intent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	if !ok {
		return Intent{}, false
	}
	return *in, true
}

func (s *Store) copyState() State {
	st := s.state
	st.Snapshot = cloneSnapshot(s.state.Snapshot)
	if s.state.Profile != nil {
		p := *s.state.Profile
		st.Profile = &p
	}
	return st
}

// commit runs fn under the lock and notifies watchers afterwards
func (s *Store) commit(fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	st := s.copyState()
	watchers := append([]func(State){}, s.watchers...)
	s.mu.Unlock()

	for _, w := range watchers {
		w(st)
	}
	return nil
}

func (s *Store) SetRole(role Role) error {
	if role != RoleVolunteer && role != RoleAdmin {
		return db.NewValidationError("role", "must be volunteer or admin")
	}
	return s.commit(func() error {
		s.state.Role = role
		return nil
	})
}

// SetProfile records whose signups the view highlights. nil clears it.
func (s *Store) SetProfile(profile *db.Profile) {
	_ = s.commit(func() error {
		if profile == nil {
			s.state.Profile = nil
			return nil
		}
		p := *profile
		s.state.Profile = &p
		return nil
	})
}

// SelectDate focuses the agenda on one local date
func (s *Store) SelectDate(dateKey string) error {
	if _, err := time.Parse(calendar.Layout, dateKey); err != nil {
		return db.NewValidationError("date", "must be a YYYY-MM-DD date")
	}
	return s.commit(func() error {
		s.state.SelectedDate = dateKey
		return nil
	})
}

// ShowMonth moves the calendar by delta months. It reports whether the new
// month lies outside the loaded range and needs a reload.
func (s *Store) ShowMonth(delta int) bool {
	var widen bool
	_ = s.commit(func() error {
		s.state.Month = calendar.ShiftMonth(s.state.Month, delta)
		widen = calendar.NeedsWiderRange(s.state.Month.Year(), s.state.Month.Month(), s.state.Range)
		return nil
	})
	return widen
}

// Focus selects dateKey and shows its month. It reports whether that month
// lies outside the loaded range.
func (s *Store) Focus(dateKey string) (bool, error) {
	day, err := time.Parse(calendar.Layout, dateKey)
	if err != nil {
		return false, db.NewValidationError("date", "must be a YYYY-MM-DD date")
	}

	var widen bool
	err = s.commit(func() error {
		s.state.SelectedDate = dateKey
		s.state.Month = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, s.state.Month.Location())
		widen = s.state.Range.Start == "" ||
			calendar.NeedsWiderRange(day.Year(), day.Month(), s.state.Range)
		return nil
	})
	return widen, err
}

// Notify sets the user-visible notice, "" clears it
func (s *Store) Notify(notice string) {
	_ = s.commit(func() error {
		s.state.Notice = notice
		return nil
	})
}

// Loaded replaces the snapshot with a fresh read of dateRange. Pending
// intents are laid over the new snapshot so in-flight mutations stay visible;
// settled intents are forgotten.
func (s *Store) Loaded(snapshot []db.OpportunityWithSignups, dateRange db.DateRange) {
	_ = s.commit(func() error {
		s.state.Snapshot = cloneSnapshot(snapshot)
		s.state.Range = dateRange

		for id, in := range s.intents {
			if in.Status != StatusPending {
				delete(s.intents, id)
				continue
			}
			s.overlay(in)
		}
		return nil
	})
}

// overlay applies a pending intent to the snapshot if it is not already
// reflected there
func (s *Store) overlay(in *Intent) {
	i := s.indexOf(in.OpportunityID)
	if i < 0 {
		return
	}
	has := s.state.Snapshot[i].HasProfile(in.entry.ProfileID)
	switch {
	case in.Kind == IntentSignup && !has:
		s.state.Snapshot[i].Signups = append(s.state.Snapshot[i].Signups, in.entry)
	case in.Kind == IntentRemove && has:
		s.state.Snapshot[i].Signups = withoutProfile(s.state.Snapshot[i].Signups, in.entry.ProfileID)
	}
}

func (s *Store) indexOf(opportunityID string) int {
	for i, o := range s.state.Snapshot {
		if o.ID == opportunityID {
			return i
		}
	}
	return -1
}

// BeginSignup adds a synthetic signup for the current profile and returns
// the pending intent's id
func (s *Store) BeginSignup(opportunityID string) (string, error) {
	var id string
	err := s.commit(func() error {
		if s.state.Profile == nil {
			return db.ErrNoProfile
		}
		i := s.indexOf(opportunityID)
		if i < 0 {
			return fmt.Errorf("opportunity %s is not loaded: %w", opportunityID, db.ErrNotFound)
		}
		if s.state.Snapshot[i].HasProfile(s.state.Profile.ID) {
			return db.ErrAlreadySignedUp
		}

		in := &Intent{
			ID:            uuid.NewString(),
			Kind:          IntentSignup,
			OpportunityID: opportunityID,
			Status:        StatusPending,
			entry: db.SignupWithProfile{
				Signup: db.Signup{
					ID:            "pending-" + uuid.NewString(),
					OpportunityID: opportunityID,
					ProfileID:     s.state.Profile.ID,
					SignedUpAt:    s.now(),
				},
				Profile: *s.state.Profile,
			},
		}
		s.intents[in.ID] = in
		s.state.Snapshot[i].Signups = append(s.state.Snapshot[i].Signups, in.entry)
		id = in.ID
		return nil
	})
	return id, err
}

// BeginRemove hides the current profile's signup and returns the pending
// intent's id
func (s *Store) BeginRemove(opportunityID string) (string, error) {
	var id string
	err := s.commit(func() error {
		if s.state.Profile == nil {
			return db.ErrNoProfile
		}
		i := s.indexOf(opportunityID)
		if i < 0 {
			return fmt.Errorf("opportunity %s is not loaded: %w", opportunityID, db.ErrNotFound)
		}

		var removed *db.SignupWithProfile
		for _, su := range s.state.Snapshot[i].Signups {
			if su.ProfileID == s.state.Profile.ID {
				su := su
				removed = &su
				break
			}
		}
		if removed == nil {
			return fmt.Errorf("not signed up for %s: %w", opportunityID, db.ErrNotFound)
		}

		in := &Intent{
			ID:            uuid.NewString(),
			Kind:          IntentRemove,
			OpportunityID: opportunityID,
			Status:        StatusPending,
			entry:         *removed,
		}
		s.intents[in.ID] = in
		s.state.Snapshot[i].Signups = withoutProfile(s.state.Snapshot[i].Signups, removed.ProfileID)
		id = in.ID
		return nil
	})
	return id, err
}

// Commit marks an intent as accepted by the backend. The snapshot keeps the
// optimistic change until the next Loaded.
func (s *Store) Commit(intentID string) error {
	return s.commit(func() error {
		in, err := s.pending(intentID)
		if err != nil {
			return err
		}
		in.Status = StatusCommitted
		return nil
	})
}

// Rollback reverts an intent's change to the snapshot
func (s *Store) Rollback(intentID string) error {
	return s.commit(func() error {
		in, err := s.pending(intentID)
		if err != nil {
			return err
		}
		in.Status = StatusRolledBack

		i := s.indexOf(in.OpportunityID)
		if i < 0 {
			return nil
		}
		switch in.Kind {
		case IntentSignup:
			s.state.Snapshot[i].Signups = withoutSignup(s.state.Snapshot[i].Signups, in.entry.ID)
		case IntentRemove:
			if !s.state.Snapshot[i].HasProfile(in.entry.ProfileID) {
				s.state.Snapshot[i].Signups = append(s.state.Snapshot[i].Signups, in.entry)
			}
		}
		return nil
	})
}

func (s *Store) pending(intentID string) (*Intent, error) {
	in, ok := s.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("intent %s: %w", intentID, db.ErrNotFound)
	}
	if in.Status != StatusPending {
		return nil, fmt.Errorf("intent %s is already %s", intentID, in.Status)
	}
	return in, nil
}

func withoutProfile(signups []db.SignupWithProfile, profileID string) []db.SignupWithProfile {
	out := make([]db.SignupWithProfile, 0, len(signups))
	for _, su := range signups {
		if su.ProfileID != profileID {
			out = append(out, su)
		}
	}
	return out
}

func withoutSignup(signups []db.SignupWithProfile, signupID string) []db.SignupWithProfile {
	out := make([]db.SignupWithProfile, 0, len(signups))
	for _, su := range signups {
		if su.ID != signupID {
			out = append(out, su)
		}
	}
	return out
}

func cloneSnapshot(snapshot []db.OpportunityWithSignups) []db.OpportunityWithSignups {
	if snapshot == nil {
		return nil
	}
	out := make([]db.OpportunityWithSignups, len(snapshot))
	for i, o := range snapshot {
		out[i] = o
		out[i].Signups = append([]db.SignupWithProfile(nil), o.Signups...)
	}
	return out
}
