package services

import (
	"errors"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

// UserMessage turns any error returned by this package into the notification
// shown to the person who triggered it
func UserMessage(err error) string {
	var verr *db.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "Please correct the form: " + verr.Error()
	case errors.Is(err, db.ErrUnauthenticated):
		return "You must be logged in to do that. Please sign in again."
	case errors.Is(err, db.ErrForbidden):
		return "You do not have permission to do that."
	case errors.Is(err, db.ErrNotFound):
		return "That item no longer exists. Please refresh and try again."
	case errors.Is(err, db.ErrAlreadySignedUp):
		return "You are already signed up for this opportunity."
	case errors.Is(err, db.ErrFull):
		return "Sorry, this opportunity is already full."
	case errors.Is(err, db.ErrNoProfile):
		return "Your volunteer profile could not be found. Please complete registration or contact support."
	case errors.Is(err, db.ErrNotAMember):
		return "You are not a member of this chat room."
	case errors.Is(err, db.ErrEmptyMessage):
		return "Message cannot be empty."
	case errors.Is(err, db.ErrNotSender):
		return "You can only delete your own messages."
	default:
		return "Something went wrong. Please try again."
	}
}
