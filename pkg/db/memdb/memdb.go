// Package memdb is an in-memory db.Database with the same rules as the
// PostgreSQL store. It backs unit tests and local experiments.
package memdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

var _ db.Database = (*Store)(nil)

// Store holds every collection in maps guarded by one mutex
type Store struct {
	mu sync.Mutex

	profiles      map[string]db.Profile // by id
	opportunities map[string]db.Opportunity
	signups       map[string]db.Signup
	rooms         map[string]db.ChatRoom
	members       map[string]map[string]db.MemberRole // room id -> profile id -> role
	messages      map[string]db.Message

	last time.Time

	// Errors forces the named method to fail with the given error
	Errors map[string]error
	// OnInsertOpportunity, when set, can reject individual inserts
	OnInsertOpportunity func(opp *db.Opportunity) error
}

// New creates an empty store with the broadcast room provisioned
func New() *Store {
	s := &Store{
		profiles:      make(map[string]db.Profile),
		opportunities: make(map[string]db.Opportunity),
		signups:       make(map[string]db.Signup),
		rooms:         make(map[string]db.ChatRoom),
		members:       make(map[string]map[string]db.MemberRole),
		messages:      make(map[string]db.Message),
		Errors:        make(map[string]error),
	}
	s.rooms[db.BroadcastRoomID] = db.ChatRoom{
		ID:          db.BroadcastRoomID,
		Name:        "Club Notifications",
		Kind:        db.RoomKindBroadcast,
		Description: "Announcements for all volunteers",
		CreatedAt:   s.tick(),
	}
	s.members[db.BroadcastRoomID] = make(map[string]db.MemberRole)
	return s
}

// tick returns a strictly increasing timestamp so insertion order is total
func (s *Store) tick() time.Time {
	now := time.Now()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

func (s *Store) fail(method string) error {
	return s.Errors[method]
}

func newID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

// Profiles

func (s *Store) GetProfileByIdentity(ctx context.Context, identityRef string) (*db.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetProfileByIdentity"); err != nil {
		return nil, err
	}
	for _, p := range s.profiles {
		if p.IdentityRef == identityRef {
			return &p, nil
		}
	}
	return nil, db.ErrNoProfile
}

func (s *Store) UpsertProfile(ctx context.Context, profile *db.Profile) (*db.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertProfile"); err != nil {
		return nil, err
	}

	saved := *profile
	for _, p := range s.profiles {
		if p.IdentityRef == profile.IdentityRef {
			saved.ID = p.ID
			saved.Status = p.Status
			saved.CreatedAt = p.CreatedAt
			s.profiles[p.ID] = saved
			return &saved, nil
		}
	}

	saved.ID = newID(profile.ID)
	if saved.Status == "" {
		saved.Status = db.ProfileStatusPending
	}
	saved.CreatedAt = s.tick()
	s.profiles[saved.ID] = saved
	s.members[db.BroadcastRoomID][saved.ID] = db.MemberRoleMember
	return &saved, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]db.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListProfiles"); err != nil {
		return nil, err
	}
	profiles := make([]db.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].CreatedAt.After(profiles[j].CreatedAt) })
	return profiles, nil
}

func (s *Store) SetProfileStatus(ctx context.Context, profileID string, status db.ProfileStatus) (*db.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetProfileStatus"); err != nil {
		return nil, err
	}
	p, ok := s.profiles[profileID]
	if !ok {
		return nil, db.ErrNotFound
	}
	p.Status = status
	s.profiles[profileID] = p
	return &p, nil
}

// Opportunities

func (s *Store) InsertOpportunity(ctx context.Context, opp *db.Opportunity) (*db.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertOpportunity"); err != nil {
		return nil, err
	}
	if s.OnInsertOpportunity != nil {
		if err := s.OnInsertOpportunity(opp); err != nil {
			return nil, err
		}
	}
	saved := *opp
	saved.ID = newID(opp.ID)
	saved.CreatedAt = s.tick()
	s.opportunities[saved.ID] = saved
	return &saved, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id string) (*db.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetOpportunity"); err != nil {
		return nil, err
	}
	o, ok := s.opportunities[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &o, nil
}

func (s *Store) UpdateOpportunity(ctx context.Context, opp *db.Opportunity) (*db.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateOpportunity"); err != nil {
		return nil, err
	}
	existing, ok := s.opportunities[opp.ID]
	if !ok {
		return nil, db.ErrNotFound
	}
	saved := *opp
	saved.CreatedBy = existing.CreatedBy
	saved.CreatedAt = existing.CreatedAt
	s.opportunities[opp.ID] = saved
	return &saved, nil
}

func (s *Store) DeleteOpportunity(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteOpportunity"); err != nil {
		return err
	}
	if _, ok := s.opportunities[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.opportunities, id)
	for sid, signup := range s.signups {
		if signup.OpportunityID == id {
			delete(s.signups, sid)
		}
	}
	return nil
}

func (s *Store) ListOpportunitiesWithSignups(ctx context.Context, dateRange db.DateRange) ([]db.OpportunityWithSignups, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListOpportunitiesWithSignups"); err != nil {
		return nil, err
	}

	result := make([]db.OpportunityWithSignups, 0)
	for _, o := range s.opportunities {
		if !dateRange.Contains(o.Date) {
			continue
		}
		result = append(result, db.OpportunityWithSignups{Opportunity: o, Signups: s.signupsFor(o.ID)})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
	return result, nil
}

func (s *Store) signupsFor(opportunityID string) []db.SignupWithProfile {
	signups := make([]db.SignupWithProfile, 0)
	for _, signup := range s.signups {
		if signup.OpportunityID == opportunityID {
			signups = append(signups, db.SignupWithProfile{Signup: signup, Profile: s.profiles[signup.ProfileID]})
		}
	}
	sort.Slice(signups, func(i, j int) bool { return signups[i].SignedUpAt.Before(signups[j].SignedUpAt) })
	return signups
}

// Signups

func (s *Store) InsertSignupIfCapacity(ctx context.Context, opportunityID, profileID string) (*db.Signup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertSignupIfCapacity"); err != nil {
		return nil, err
	}

	opp, ok := s.opportunities[opportunityID]
	if !ok {
		return nil, db.ErrNotFound
	}
	count := 0
	for _, signup := range s.signups {
		if signup.OpportunityID != opportunityID {
			continue
		}
		if signup.ProfileID == profileID {
			return nil, db.ErrAlreadySignedUp
		}
		count++
	}
	if count >= opp.Capacity {
		return nil, db.ErrFull
	}

	signup := db.Signup{
		ID:            uuid.New().String(),
		OpportunityID: opportunityID,
		ProfileID:     profileID,
		SignedUpAt:    s.tick(),
	}
	s.signups[signup.ID] = signup
	return &signup, nil
}

func (s *Store) DeleteSignup(ctx context.Context, opportunityID, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteSignup"); err != nil {
		return err
	}
	for id, signup := range s.signups {
		if signup.OpportunityID == opportunityID && signup.ProfileID == profileID {
			delete(s.signups, id)
		}
	}
	return nil
}

func (s *Store) GetSignup(ctx context.Context, opportunityID, profileID string) (*db.Signup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetSignup"); err != nil {
		return nil, err
	}
	for _, signup := range s.signups {
		if signup.OpportunityID == opportunityID && signup.ProfileID == profileID {
			return &signup, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *Store) ListSignupsForProfile(ctx context.Context, profileID string) ([]db.SignupWithOpportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListSignupsForProfile"); err != nil {
		return nil, err
	}
	result := make([]db.SignupWithOpportunity, 0)
	for _, signup := range s.signups {
		if signup.ProfileID == profileID {
			result = append(result, db.SignupWithOpportunity{Signup: signup, Opportunity: s.opportunities[signup.OpportunityID]})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SignedUpAt.After(result[j].SignedUpAt) })
	return result, nil
}

func (s *Store) GetReminderDetails(ctx context.Context, signupID string) (*db.ReminderDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetReminderDetails"); err != nil {
		return nil, err
	}
	signup, ok := s.signups[signupID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &db.ReminderDetails{
		SignupID:    signupID,
		Profile:     s.profiles[signup.ProfileID],
		Opportunity: s.opportunities[signup.OpportunityID],
	}, nil
}

// Chat

func (s *Store) ListRoomsForProfile(ctx context.Context, profileID string) ([]db.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListRoomsForProfile"); err != nil {
		return nil, err
	}
	rooms := make([]db.ChatRoom, 0)
	for id, members := range s.members {
		if _, ok := members[profileID]; ok {
			rooms = append(rooms, s.rooms[id])
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if (rooms[i].Kind == db.RoomKindBroadcast) != (rooms[j].Kind == db.RoomKindBroadcast) {
			return rooms[i].Kind == db.RoomKindBroadcast
		}
		return rooms[i].Name < rooms[j].Name
	})
	return rooms, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*db.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetRoom"); err != nil {
		return nil, err
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &room, nil
}

func (s *Store) IsMember(ctx context.Context, roomID, profileID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("IsMember"); err != nil {
		return false, err
	}
	_, ok := s.members[roomID][profileID]
	return ok, nil
}

func (s *Store) CreateRoomWithMembers(ctx context.Context, room *db.ChatRoom, members []db.ChatRoomMember) (*db.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateRoomWithMembers"); err != nil {
		return nil, err
	}

	// All or nothing: every member must exist before anything is written
	for _, m := range members {
		if _, ok := s.profiles[m.ProfileID]; !ok {
			return nil, db.ErrNotFound
		}
	}

	saved := *room
	saved.ID = newID(room.ID)
	saved.CreatedAt = s.tick()
	s.rooms[saved.ID] = saved
	s.members[saved.ID] = make(map[string]db.MemberRole, len(members))
	for _, m := range members {
		if _, ok := s.members[saved.ID][m.ProfileID]; !ok {
			s.members[saved.ID][m.ProfileID] = m.Role
		}
	}
	return &saved, nil
}

func (s *Store) AddMember(ctx context.Context, member db.ChatRoomMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AddMember"); err != nil {
		return err
	}
	if _, ok := s.rooms[member.RoomID]; !ok {
		return db.ErrNotFound
	}
	if _, ok := s.profiles[member.ProfileID]; !ok {
		return db.ErrNotFound
	}
	s.members[member.RoomID][member.ProfileID] = member.Role
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]db.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("RecentMessages"); err != nil {
		return nil, err
	}
	messages := make([]db.Message, 0)
	for _, m := range s.messages {
		if m.RoomID == roomID {
			messages = append(messages, m)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (s *Store) InsertMessage(ctx context.Context, msg *db.Message) (*db.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertMessage"); err != nil {
		return nil, err
	}
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return nil, db.ErrNotFound
	}
	sender, ok := s.profiles[msg.SenderID]
	if !ok {
		return nil, db.ErrNotFound
	}
	saved := *msg
	saved.ID = newID(msg.ID)
	saved.SenderName = sender.DisplayName()
	saved.CreatedAt = s.tick()
	s.messages[saved.ID] = saved
	return &saved, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*db.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetMessage"); err != nil {
		return nil, err
	}
	m, ok := s.messages[messageID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &m, nil
}

func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteMessage"); err != nil {
		return err
	}
	if _, ok := s.messages[messageID]; !ok {
		return db.ErrNotFound
	}
	delete(s.messages, messageID)
	return nil
}

// SignupCount returns the number of signups held for an opportunity
func (s *Store) SignupCount(opportunityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signupsFor(opportunityID))
}
