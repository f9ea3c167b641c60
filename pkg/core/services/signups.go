package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
	"github.com/freestylevancouver/volunteer-portal/pkg/metrics"
)

// LedgerStore is what the signup operations need from the database
type LedgerStore interface {
	db.ProfileStore
	db.SignupStore
}

// SignUp records the caller's signup for an opportunity. The duplicate and
// capacity checks happen atomically with the insert inside the store.
func SignUp(ctx context.Context, store LedgerStore, logger *zap.Logger, caller *identity.Identity, opportunityID string) (signup *db.Signup, err error) {
	defer func() { metrics.RecordSignup(err) }()

	profile, err := resolveProfile(ctx, store, caller)
	if err != nil {
		return nil, err
	}

	logger.Debug("Signing up",
		zap.String("opportunity_id", opportunityID),
		zap.String("profile_id", profile.ID))

	signup, err = store.InsertSignupIfCapacity(ctx, opportunityID, profile.ID)
	if err != nil {
		if errors.Is(err, db.ErrFull) || errors.Is(err, db.ErrAlreadySignedUp) {
			logger.Info("Signup rejected",
				zap.String("opportunity_id", opportunityID),
				zap.String("profile_id", profile.ID),
				zap.Error(err))
		}
		return nil, fmt.Errorf("failed to sign up for %s: %w", opportunityID, err)
	}

	logger.Info("Signed up",
		zap.String("signup_id", signup.ID),
		zap.String("opportunity_id", opportunityID),
		zap.String("profile_id", profile.ID))

	return signup, nil
}

// RemoveSignup cancels the caller's signup. Cancelling a signup that does not
// exist succeeds.
func RemoveSignup(ctx context.Context, store LedgerStore, logger *zap.Logger, caller *identity.Identity, opportunityID string) error {
	profile, err := resolveProfile(ctx, store, caller)
	if err != nil {
		return err
	}

	if err := store.DeleteSignup(ctx, opportunityID, profile.ID); err != nil {
		return fmt.Errorf("failed to remove signup for %s: %w", opportunityID, err)
	}

	logger.Info("Signup removed",
		zap.String("opportunity_id", opportunityID),
		zap.String("profile_id", profile.ID))
	return nil
}

// IsSignedUp reports whether the caller holds a signup for the opportunity
func IsSignedUp(ctx context.Context, store LedgerStore, caller *identity.Identity, opportunityID string) (bool, error) {
	profile, err := resolveProfile(ctx, store, caller)
	if err != nil {
		return false, err
	}

	_, err = store.GetSignup(ctx, opportunityID, profile.ID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check signup: %w", err)
	}
	return true, nil
}

// MySignups lists the caller's signups with their opportunities, newest first
func MySignups(ctx context.Context, store LedgerStore, logger *zap.Logger, caller *identity.Identity) ([]db.SignupWithOpportunity, error) {
	profile, err := resolveProfile(ctx, store, caller)
	if err != nil {
		return nil, err
	}

	signups, err := store.ListSignupsForProfile(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list signups: %w", err)
	}

	logger.Debug("Loaded signups", zap.String("profile_id", profile.ID), zap.Int("count", len(signups)))
	return signups, nil
}

// resolveProfile finds the caller's profile. A missing profile after a
// successful sign-in means registration only partly completed.
func resolveProfile(ctx context.Context, profiles db.ProfileStore, caller *identity.Identity) (*db.Profile, error) {
	if err := identity.Require(caller); err != nil {
		return nil, err
	}

	profile, err := profiles.GetProfileByIdentity(ctx, caller.UserID)
	if errors.Is(err, db.ErrNoProfile) {
		return nil, db.ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return profile, nil
}
