package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/calendar"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/db/memdb"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
	"github.com/freestylevancouver/volunteer-portal/pkg/realtime"
)

type testEnv struct {
	store    *memdb.Store
	feed     *realtime.MemoryFeed
	verifier *identity.Verifier
	handler  http.Handler
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memdb.New()
	feed := realtime.NewMemoryFeed(zap.NewNop())
	verifier := identity.NewVerifier("test-secret", "admin")

	srv := New(Options{
		DB:       store,
		Feed:     feed,
		Verifier: verifier,
		Logger:   zap.NewNop(),
		Location: time.UTC,
	})
	srv.now = func() time.Time { return time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC) }

	return &testEnv{store: store, feed: feed, verifier: verifier, handler: srv.Router()}
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := e.verifier.Issue(userID, userID+"@example.com", role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func data(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, dst))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func register(t *testing.T, e *testEnv, token, first string) db.Profile {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/me", token, map[string]string{
		"first_name":    first,
		"last_name":     "Tester",
		"mobile":        "604-555-0100",
		"home_location": "Cypress",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p db.Profile
	data(t, rec, &p)
	return p
}

func opportunityBody(capacity int) map[string]interface{} {
	return map[string]interface{}{
		"date":        "2024-02-10",
		"start_time":  "09:00",
		"title":       "Race crew",
		"description": "Set gates",
		"location":    "Cypress",
		"category":    "on-snow",
		"capacity":    capacity,
	}
}

func createOpp(t *testing.T, e *testEnv, adminToken string, capacity int) db.Opportunity {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/opportunities", adminToken, opportunityBody(capacity))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var opp db.Opportunity
	data(t, rec, &opp)
	return opp
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOpportunity_Authorization(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{"anonymous", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"volunteer", e.token(t, "vol", ""), http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/opportunities", tt.token, opportunityBody(2))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	opp := createOpp(t, e, e.token(t, "boss", "admin"), 2)
	assert.Equal(t, "Race crew", opp.Title)
}

func TestCreateOpportunity_Validation(t *testing.T) {
	e := newEnv(t)
	body := opportunityBody(0)
	body["date"] = "02/10/2024"

	rec := e.do(t, http.MethodPost, "/api/opportunities", e.token(t, "boss", "admin"), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error.Fields, "date")
	assert.Contains(t, resp.Error.Fields, "capacity")
}

func TestCreateOpportunity_Recurring(t *testing.T) {
	e := newEnv(t)
	body := opportunityBody(2)
	body["repeat_until"] = "2024-03-02"

	rec := e.do(t, http.MethodPost, "/api/opportunities", e.token(t, "boss", "admin"), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp recurrenceResponse
	data(t, rec, &resp)
	assert.Equal(t, 4, resp.Attempted)
	assert.Len(t, resp.Created, 4)
	assert.Equal(t, "Created 4 of 4 opportunities", resp.Summary)
}

func TestSignupFlow(t *testing.T) {
	e := newEnv(t)
	opp := createOpp(t, e, e.token(t, "boss", "admin"), 1)
	vol := e.token(t, "vol", "")
	oth := e.token(t, "oth", "")
	path := "/api/opportunities/" + opp.ID + "/signup"

	rec := e.do(t, http.MethodPost, path, vol, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NO_PROFILE", errorCode(t, rec))

	register(t, e, vol, "Vera")
	register(t, e, oth, "Otto")

	rec = e.do(t, http.MethodPost, path, vol, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, path, vol, nil)
	assert.Equal(t, "ALREADY_SIGNED_UP", errorCode(t, rec))

	rec = e.do(t, http.MethodPost, path, oth, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "FULL", errorCode(t, rec))

	var status map[string]bool
	data(t, e.do(t, http.MethodGet, path, vol, nil), &status)
	assert.True(t, status["signed_up"])

	rec = e.do(t, http.MethodDelete, path, vol, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodPost, path, oth, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/opportunities/missing/signup", vol, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndCalendar(t *testing.T) {
	e := newEnv(t)
	opp := createOpp(t, e, e.token(t, "boss", "admin"), 2)
	vol := e.token(t, "vol", "")

	var list struct {
		Range         db.DateRange                `json:"range"`
		Opportunities []db.OpportunityWithSignups `json:"opportunities"`
	}
	data(t, e.do(t, http.MethodGet, "/api/opportunities", vol, nil), &list)
	assert.Equal(t, db.DateRange{Start: "2023-12-01", End: "2024-04-30"}, list.Range)
	require.Len(t, list.Opportunities, 1)
	assert.Equal(t, opp.ID, list.Opportunities[0].ID)

	data(t, e.do(t, http.MethodGet, "/api/opportunities?start=2024-03-01&end=2024-03-31", vol, nil), &list)
	assert.Empty(t, list.Opportunities)

	var cells []calendar.Cell
	data(t, e.do(t, http.MethodGet, "/api/calendar/2024/2", vol, nil), &cells)
	require.Len(t, cells, calendar.GridSize)
	for _, c := range cells {
		if c.Key == "2024-02-10" {
			assert.True(t, c.IsCurrentMonth)
			assert.Len(t, c.Opportunities, 1)
		}
	}

	rec := e.do(t, http.MethodGet, "/api/calendar/2024/13", vol, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var agenda []db.OpportunityWithSignups
	data(t, e.do(t, http.MethodGet, "/api/calendar/day/2024-02-10", vol, nil), &agenda)
	assert.Len(t, agenda, 1)

	rec = e.do(t, http.MethodGet, "/api/opportunities", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateAndDeleteOpportunity(t *testing.T) {
	e := newEnv(t)
	admin := e.token(t, "boss", "admin")
	opp := createOpp(t, e, admin, 2)

	rec := e.do(t, http.MethodPatch, "/api/opportunities/"+opp.ID, admin, map[string]interface{}{"capacity": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated db.Opportunity
	data(t, rec, &updated)
	assert.Equal(t, 5, updated.Capacity)

	rec = e.do(t, http.MethodDelete, "/api/opportunities/"+opp.ID, admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodDelete, "/api/opportunities/"+opp.ID, admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMySignupsICS(t *testing.T) {
	e := newEnv(t)
	opp := createOpp(t, e, e.token(t, "boss", "admin"), 2)
	vol := e.token(t, "vol", "")
	register(t, e, vol, "Vera")
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/opportunities/"+opp.ID+"/signup", vol, nil).Code)

	rec := e.do(t, http.MethodGet, "/api/me/signups.ics", vol, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "UID:"+opp.ID+"@volunteer-portal")
	assert.Contains(t, rec.Body.String(), "DTSTART:20240210T090000")
}

func TestProfilesAdmin(t *testing.T) {
	e := newEnv(t)
	admin := e.token(t, "boss", "admin")
	vol := e.token(t, "vol", "")
	p := register(t, e, vol, "Vera")
	assert.Equal(t, db.ProfileStatusPending, p.Status)

	rec := e.do(t, http.MethodGet, "/api/profiles", vol, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/profiles/"+p.ID+"/status", admin, map[string]string{"status": "active"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var me db.Profile
	data(t, e.do(t, http.MethodGet, "/api/me", vol, nil), &me)
	assert.Equal(t, db.ProfileStatusActive, me.Status)
}

func TestChatRoutes(t *testing.T) {
	e := newEnv(t)
	admin := e.token(t, "boss", "admin")
	vol := e.token(t, "vol", "")
	oth := e.token(t, "oth", "")
	register(t, e, admin, "Ada")
	v := register(t, e, vol, "Vera")
	register(t, e, oth, "Otto")

	rec := e.do(t, http.MethodPost, "/api/rooms", admin, map[string]interface{}{"name": "Race crew", "member_ids": []string{v.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var room db.ChatRoom
	data(t, rec, &room)

	rec = e.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/messages", vol, map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var msg db.Message
	data(t, rec, &msg)

	rec = e.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/messages", oth, map[string]string{"content": "let me in"})
	assert.Equal(t, "NOT_A_MEMBER", errorCode(t, rec))

	rec = e.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/messages", vol, map[string]string{"content": "   "})
	assert.Equal(t, "EMPTY_MESSAGE", errorCode(t, rec))

	rec = e.do(t, http.MethodPost, "/api/rooms/"+db.BroadcastRoomID+"/messages", vol, map[string]string{"content": "hi all"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var history []db.Message
	data(t, e.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages?limit=10", admin, nil), &history)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)

	rec = e.do(t, http.MethodDelete, "/api/messages/"+msg.ID, admin, nil)
	assert.Equal(t, "NOT_SENDER", errorCode(t, rec))
	rec = e.do(t, http.MethodDelete, "/api/messages/"+msg.ID, vol, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	var rooms []db.ChatRoom
	data(t, e.do(t, http.MethodGet, "/api/rooms", vol, nil), &rooms)
	assert.Len(t, rooms, 2)
}

func TestAdminToolsUnconfigured(t *testing.T) {
	e := newEnv(t)
	admin := e.token(t, "boss", "admin")

	rec := e.do(t, http.MethodPost, "/api/signups/abc/reminder", admin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/signups/abc/reminder", e.token(t, "vol", ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/roster", admin, db.DateRange{Start: "2024-02-01", End: "2024-02-29"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamRoom(t *testing.T) {
	e := newEnv(t)
	admin := e.token(t, "boss", "admin")
	vol := e.token(t, "vol", "")
	register(t, e, admin, "Ada")
	register(t, e, vol, "Vera")

	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/rooms/"+db.BroadcastRoomID+"/stream?access_token="+vol, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	require.Eventually(t, func() bool { return e.feed.Subscribers(db.BroadcastRoomID) == 1 }, time.Second, 5*time.Millisecond)

	rec := e.do(t, http.MethodPost, "/api/rooms/"+db.BroadcastRoomID+"/messages", admin, map[string]string{"content": "Lifts open at 9"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sent db.Message
	data(t, rec, &sent)

	var payload string
	for payload == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			payload = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	var got db.Message
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, "Lifts open at 9", got.Content)
}

func TestStreamRoom_RequiresMembership(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/rooms/"+db.BroadcastRoomID+"/stream", e.token(t, "vol", ""), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NO_PROFILE", errorCode(t, rec))
}
