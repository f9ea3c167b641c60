package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/db/memdb"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
)

var (
	admin     = &identity.Identity{UserID: "admin-user", Email: "admin@example.com", Role: "admin", Admin: true}
	volunteer = &identity.Identity{UserID: "vol-user", Email: "vol@example.com"}
	other     = &identity.Identity{UserID: "other-user", Email: "other@example.com"}
)

func register(t *testing.T, store *memdb.Store, caller *identity.Identity, first string) *db.Profile {
	t.Helper()
	p, err := RegisterProfile(context.Background(), store, zap.NewNop(), caller, ProfileInput{
		FirstName:    first,
		LastName:     "Tester",
		Mobile:       "604-555-0100",
		HomeLocation: "Cypress",
	})
	require.NoError(t, err)
	return p
}

func validInput() OpportunityInput {
	return OpportunityInput{
		Date:        "2024-02-10",
		StartTime:   "09:00",
		Title:       "Race crew",
		Description: "Set gates for the slalom",
		Location:    "Cypress",
		Category:    db.CategoryOnSnow,
		Capacity:    2,
	}
}

func createOpp(t *testing.T, store *memdb.Store, input OpportunityInput) *db.Opportunity {
	t.Helper()
	opp, err := CreateOpportunity(context.Background(), store, zap.NewNop(), admin, input)
	require.NoError(t, err)
	return opp
}
