package db

import "time"

// ProfileStatus is the admin-managed state of a volunteer profile
type ProfileStatus string

const (
	ProfileStatusPending  ProfileStatus = "pending"
	ProfileStatusActive   ProfileStatus = "active"
	ProfileStatusInactive ProfileStatus = "inactive"
)

func (s ProfileStatus) IsValid() bool {
	return s == ProfileStatusPending || s == ProfileStatusActive || s == ProfileStatusInactive
}

// Category classifies an opportunity
type Category string

const (
	CategoryOnSnow  Category = "on-snow"
	CategoryOffSnow Category = "off-snow"
	CategoryOther   Category = "other"
)

// RoomKind distinguishes the club-wide broadcast room from ad hoc team rooms
type RoomKind string

const (
	RoomKindBroadcast RoomKind = "club_notifications"
	RoomKindTeam      RoomKind = "team"
)

// BroadcastRoomID is the id of the pre-provisioned club-wide room
const BroadcastRoomID = "club-notifications"

// MemberRole is a member's role inside a chat room
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleMember MemberRole = "member"
)

// Profile represents a volunteer profile record. Exactly one exists per identity.
type Profile struct {
	ID            string        `json:"id"`
	IdentityRef   string        `json:"identity_ref"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	Email         string        `json:"email"`
	Mobile        string        `json:"mobile"`
	HomeLocation  string        `json:"home_location"`
	SkiingAbility string        `json:"skiing_ability,omitempty"`
	Status        ProfileStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// DisplayName returns "First Last"
func (p Profile) DisplayName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Opportunity represents a scheduled volunteer shift.
// Date is a local calendar date key (2006-01-02); StartTime/EndTime are 15:04.
type Opportunity struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     *string   `json:"end_time,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Category    Category  `json:"category"`
	Capacity    int       `json:"capacity"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Signup links one profile to one opportunity
type Signup struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunity_id"`
	ProfileID     string    `json:"profile_id"`
	SignedUpAt    time.Time `json:"signed_up_at"`
}

// SignupWithProfile is a signup joined with the volunteer it belongs to
type SignupWithProfile struct {
	Signup
	Profile Profile `json:"profile"`
}

// OpportunityWithSignups is the hydrated read used by every view
type OpportunityWithSignups struct {
	Opportunity
	Signups []SignupWithProfile `json:"signups"`
}

// SpotsLeft returns the remaining capacity, never negative
func (o OpportunityWithSignups) SpotsLeft() int {
	left := o.Capacity - len(o.Signups)
	if left < 0 {
		return 0
	}
	return left
}

func (o OpportunityWithSignups) IsFull() bool {
	return len(o.Signups) >= o.Capacity
}

// HasProfile reports whether the profile holds a signup on this opportunity
func (o OpportunityWithSignups) HasProfile(profileID string) bool {
	for _, s := range o.Signups {
		if s.ProfileID == profileID {
			return true
		}
	}
	return false
}

// SignupWithOpportunity is one of "my" signups joined with its opportunity
type SignupWithOpportunity struct {
	Signup
	Opportunity Opportunity `json:"opportunity"`
}

// ReminderDetails carries what a reminder email needs about one signup
type ReminderDetails struct {
	SignupID    string
	Profile     Profile
	Opportunity Opportunity
}

// ChatRoom is a chat channel
type ChatRoom struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        RoomKind  `json:"kind"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatRoomMember grants a profile access to a room
type ChatRoomMember struct {
	RoomID    string     `json:"room_id"`
	ProfileID string     `json:"profile_id"`
	Role      MemberRole `json:"role"`
}

// Message is a chat message. CreatedAt is assigned by the store and defines
// the total order within a room.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// DateRange is an inclusive range of local calendar date keys
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether a date key falls inside the range
func (r DateRange) Contains(dateKey string) bool {
	return dateKey >= r.Start && dateKey <= r.End
}
