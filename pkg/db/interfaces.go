package db

import "context"

// ProfileStore defines the interface for profile database operations
type ProfileStore interface {
	GetProfileByIdentity(ctx context.Context, identityRef string) (*Profile, error)
	UpsertProfile(ctx context.Context, profile *Profile) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	SetProfileStatus(ctx context.Context, profileID string, status ProfileStatus) (*Profile, error)
}

// OpportunityStore defines the interface for opportunity database operations
type OpportunityStore interface {
	InsertOpportunity(ctx context.Context, opp *Opportunity) (*Opportunity, error)
	GetOpportunity(ctx context.Context, id string) (*Opportunity, error)
	UpdateOpportunity(ctx context.Context, opp *Opportunity) (*Opportunity, error)
	DeleteOpportunity(ctx context.Context, id string) error
	ListOpportunitiesWithSignups(ctx context.Context, dateRange DateRange) ([]OpportunityWithSignups, error)
}

// SignupStore defines the interface for signup database operations.
// InsertSignupIfCapacity must perform the duplicate check, the capacity check
// and the insert atomically.
type SignupStore interface {
	InsertSignupIfCapacity(ctx context.Context, opportunityID, profileID string) (*Signup, error)
	DeleteSignup(ctx context.Context, opportunityID, profileID string) error
	GetSignup(ctx context.Context, opportunityID, profileID string) (*Signup, error)
	ListSignupsForProfile(ctx context.Context, profileID string) ([]SignupWithOpportunity, error)
	GetReminderDetails(ctx context.Context, signupID string) (*ReminderDetails, error)
}

// ChatStore defines the interface for chat database operations
type ChatStore interface {
	ListRoomsForProfile(ctx context.Context, profileID string) ([]ChatRoom, error)
	GetRoom(ctx context.Context, roomID string) (*ChatRoom, error)
	IsMember(ctx context.Context, roomID, profileID string) (bool, error)
	CreateRoomWithMembers(ctx context.Context, room *ChatRoom, members []ChatRoomMember) (*ChatRoom, error)
	AddMember(ctx context.Context, member ChatRoomMember) error
	RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
	InsertMessage(ctx context.Context, msg *Message) (*Message, error)
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

// Database defines the interface for all database operations.
// postgres.DB implements this interface.
type Database interface {
	ProfileStore
	OpportunityStore
	SignupStore
	ChatStore
}
