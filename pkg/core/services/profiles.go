package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
)

// ProfileInput is the registration form
type ProfileInput struct {
	FirstName     string `json:"first_name" validate:"required"`
	LastName      string `json:"last_name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Mobile        string `json:"mobile" validate:"required"`
	HomeLocation  string `json:"home_location" validate:"required"`
	SkiingAbility string `json:"skiing_ability"`
}

func (in ProfileInput) sanitized() ProfileInput {
	return ProfileInput{
		FirstName:     SanitizeText(in.FirstName, MaxFieldLength),
		LastName:      SanitizeText(in.LastName, MaxFieldLength),
		Email:         strings.ToLower(SanitizeText(in.Email, MaxFieldLength)),
		Mobile:        SanitizeText(in.Mobile, MaxFieldLength),
		HomeLocation:  SanitizeText(in.HomeLocation, MaxFieldLength),
		SkiingAbility: SanitizeText(in.SkiingAbility, MaxFieldLength),
	}
}

// RegisterProfile creates the caller's profile in pending status, or updates
// the details of the one they already have. The email defaults to the one on
// the caller's identity.
func RegisterProfile(ctx context.Context, store db.ProfileStore, logger *zap.Logger, caller *identity.Identity, input ProfileInput) (*db.Profile, error) {
	if err := identity.Require(caller); err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.Email) == "" {
		input.Email = caller.Email
	}
	input = input.sanitized()
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	profile := &db.Profile{
		IdentityRef:   caller.UserID,
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		Email:         input.Email,
		Mobile:        input.Mobile,
		HomeLocation:  input.HomeLocation,
		SkiingAbility: input.SkiingAbility,
		Status:        db.ProfileStatusPending,
	}

	existing, err := store.GetProfileByIdentity(ctx, caller.UserID)
	switch {
	case err == nil:
		profile.ID = existing.ID
		profile.Status = existing.Status
	case !errors.Is(err, db.ErrNoProfile):
		return nil, fmt.Errorf("failed to check existing profile: %w", err)
	}

	saved, err := store.UpsertProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	if existing == nil {
		logger.Info("Profile registered", zap.String("profile_id", saved.ID), zap.String("email", saved.Email))
	} else {
		logger.Info("Profile updated", zap.String("profile_id", saved.ID))
	}
	return saved, nil
}

// UpdateOwnProfile edits the caller's existing profile without touching its status
func UpdateOwnProfile(ctx context.Context, store db.ProfileStore, logger *zap.Logger, caller *identity.Identity, input ProfileInput) (*db.Profile, error) {
	if _, err := resolveProfile(ctx, store, caller); err != nil {
		return nil, err
	}
	return RegisterProfile(ctx, store, logger, caller, input)
}

// CurrentProfile returns the caller's profile or db.ErrNoProfile
func CurrentProfile(ctx context.Context, store db.ProfileStore, caller *identity.Identity) (*db.Profile, error) {
	return resolveProfile(ctx, store, caller)
}

// ListProfiles returns every profile. Admin only.
func ListProfiles(ctx context.Context, store db.ProfileStore, caller *identity.Identity) ([]db.Profile, error) {
	if err := identity.RequireAdmin(caller); err != nil {
		return nil, err
	}

	profiles, err := store.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// SetProfileStatus changes a volunteer's status. Admin only.
func SetProfileStatus(ctx context.Context, store db.ProfileStore, logger *zap.Logger, caller *identity.Identity, profileID string, status db.ProfileStatus) (*db.Profile, error) {
	if err := identity.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, db.NewValidationError("status", "must be one of pending, active, inactive")
	}

	profile, err := store.SetProfileStatus(ctx, profileID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to set status of %s: %w", profileID, err)
	}

	logger.Info("Profile status changed",
		zap.String("profile_id", profileID),
		zap.String("status", string(status)))
	return profile, nil
}
