package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{db.ErrFull, "full"},
		{fmt.Errorf("wrapped: %w", db.ErrAlreadySignedUp), "duplicate"},
		{db.ErrNoProfile, "no_profile"},
		{db.ErrForbidden, "denied"},
		{db.NewValidationError("title", "is required"), "invalid"},
		{errors.New("connection refused"), "error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err))
	}
}

func TestRecordSignup(t *testing.T) {
	before := testutil.ToFloat64(signups.WithLabelValues("full"))
	RecordSignup(db.ErrFull)
	assert.Equal(t, before+1, testutil.ToFloat64(signups.WithLabelValues("full")))
}

func TestHandler(t *testing.T) {
	RecordMessage(nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portal_chat_messages_total")
}
