package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"plain", "Hello", 500, "Hello"},
		{"trims", "  Hello  ", 500, "Hello"},
		{"strips tags", "<p>Hello <em>there</em></p>", 500, "Hello there"},
		{"drops script bodies", "Hi<script>alert('x')</script>", 500, "Hi"},
		{"keeps ampersands as text", "Fish & chips < 5$", 500, "Fish & chips &lt; 5$"},
		{"encoded markup stays inert", "&lt;script&gt;alert(1)&lt;/script&gt;", 1000, "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{"double encoded markup", "&amp;lt;b&amp;gt;", 500, "&lt;b&gt;"},
		{"caps runes", "ééééé", 3, "ééé"},
		{"no cap", "abc", 0, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeText(tt.input, tt.max)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "<")
			assert.NotContains(t, got, ">")
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("failed to sign up: %w", db.ErrFull), "Sorry, this opportunity is already full."},
		{db.ErrAlreadySignedUp, "You are already signed up for this opportunity."},
		{db.ErrNoProfile, "Your volunteer profile could not be found. Please complete registration or contact support."},
		{db.NewValidationError("title", "is required"), "Please correct the form: validation failed: title is required"},
		{errors.New("dial tcp: refused"), "Something went wrong. Please try again."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, UserMessage(tt.err))
	}
}
