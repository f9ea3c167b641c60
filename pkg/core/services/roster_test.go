package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/db/memdb"
)

type mockPublisher struct {
	published []*Roster
}

func (m *mockPublisher) PublishRoster(roster *Roster) error {
	m.published = append(m.published, roster)
	return nil
}

func TestBuildRoster(t *testing.T) {
	end := "12:00"
	snapshot := []db.OpportunityWithSignups{
		{
			Opportunity: db.Opportunity{Date: "2024-02-10", StartTime: "09:00", EndTime: &end, Title: "Race crew", Location: "Cypress", Capacity: 3},
			Signups: []db.SignupWithProfile{
				{Profile: db.Profile{FirstName: "Vera", LastName: "Tester"}},
				{Profile: db.Profile{FirstName: "Otto"}},
			},
		},
		{Opportunity: db.Opportunity{Date: "2024-02-11", StartTime: "10:00", Title: "Bib handout", Location: "Grouse", Capacity: 1}},
	}

	roster := BuildRoster(db.DateRange{Start: "2024-02-01", End: "2024-02-29"}, snapshot)

	require.Len(t, roster.Rows, 2)
	assert.Equal(t, RosterRow{
		Date:       "Sat Feb 10 2024",
		Time:       "09:00-12:00",
		Title:      "Race crew",
		Location:   "Cypress",
		Filled:     2,
		Capacity:   3,
		Volunteers: []string{"Vera Tester", "Otto"},
	}, roster.Rows[0])
	assert.Equal(t, "10:00", roster.Rows[1].Time)
	assert.Empty(t, roster.Rows[1].Volunteers)
}

func TestPublishRoster(t *testing.T) {
	store := memdb.New()
	register(t, store, volunteer, "Vera")
	opp := createOpp(t, store, validInput())
	_, err := SignUp(context.Background(), store, zap.NewNop(), volunteer, opp.ID)
	require.NoError(t, err)

	publisher := &mockPublisher{}
	r := db.DateRange{Start: "2024-02-01", End: "2024-02-29"}

	_, err = PublishRoster(context.Background(), store, publisher, zap.NewNop(), volunteer, r)
	assert.ErrorIs(t, err, db.ErrForbidden)

	roster, err := PublishRoster(context.Background(), store, publisher, zap.NewNop(), admin, r)
	require.NoError(t, err)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, []string{"Vera Tester"}, roster.Rows[0].Volunteers)
}
