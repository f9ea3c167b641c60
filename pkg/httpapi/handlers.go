package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/calendar"
	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
)

// ErrUnavailable is returned by routes whose collaborator is not configured
var ErrUnavailable = errors.New("this feature is not configured")

// Opportunities

func (s *Server) listOpportunities(w http.ResponseWriter, r *http.Request) {
	if err := identity.Require(caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}

	dateRange := services.DefaultRange(s.now().In(s.loc), s.window)
	if start := r.URL.Query().Get("start"); start != "" {
		dateRange.Start = start
	}
	if end := r.URL.Query().Get("end"); end != "" {
		dateRange.End = end
	}

	opps, err := services.ListWithSignups(r.Context(), s.db, s.logger, dateRange)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"range": dateRange, "opportunities": opps})
}

type createOpportunityRequest struct {
	services.OpportunityInput
	RepeatUntil string `json:"repeat_until,omitempty"`
}

type stepFailure struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

type recurrenceResponse struct {
	Attempted int              `json:"attempted"`
	Created   []db.Opportunity `json:"created"`
	Failures  []stepFailure    `json:"failures,omitempty"`
	Summary   string           `json:"summary"`
}

func (s *Server) createOpportunity(w http.ResponseWriter, r *http.Request) {
	var req createOpportunityRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.RepeatUntil == "" {
		opp, err := services.CreateOpportunity(r.Context(), s.db, s.logger, caller(r), req.OpportunityInput)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, opp)
		return
	}

	result, err := services.CreateRecurring(r.Context(), s.db, s.logger, caller(r), req.OpportunityInput, req.RepeatUntil, s.loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := recurrenceResponse{Attempted: result.Attempted, Created: result.Created, Summary: result.Summary()}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, stepFailure{Date: f.Date, Error: services.UserMessage(f.Err)})
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) updateOpportunity(w http.ResponseWriter, r *http.Request) {
	var patch services.OpportunityPatch
	if err := decode(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}

	opp, err := services.UpdateOpportunity(r.Context(), s.db, s.logger, caller(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

func (s *Server) deleteOpportunity(w http.ResponseWriter, r *http.Request) {
	if err := services.DeleteOpportunity(r.Context(), s.db, s.logger, caller(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Calendar

func (s *Server) monthCalendar(w http.ResponseWriter, r *http.Request) {
	if err := identity.Require(caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}

	year, yerr := strconv.Atoi(chi.URLParam(r, "year"))
	month, merr := strconv.Atoi(chi.URLParam(r, "month"))
	if yerr != nil || merr != nil || month < 1 || month > 12 {
		s.writeError(w, r, db.NewValidationError("month", "must be /calendar/{year}/{1-12}"))
		return
	}

	// the grid spills into neighbouring months, so load every visible day
	grid := calendar.CellsForMonth(year, time.Month(month), nil, s.loc)
	dateRange := db.DateRange{Start: grid[0].Key, End: grid[len(grid)-1].Key}

	opps, err := services.ListWithSignups(r.Context(), s.db, s.logger, dateRange)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendar.CellsForMonth(year, time.Month(month), opps, s.loc))
}

func (s *Server) dayAgenda(w http.ResponseWriter, r *http.Request) {
	if err := identity.Require(caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}

	date := chi.URLParam(r, "date")
	if _, err := calendar.ParseDateKey(date, s.loc); err != nil {
		s.writeError(w, r, db.NewValidationError("date", "must be a date (YYYY-MM-DD)"))
		return
	}

	opps, err := services.ListWithSignups(r.Context(), s.db, s.logger, db.DateRange{Start: date, End: date})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendar.AgendaForDay(date, opps))
}

// Signups

func (s *Server) signupStatus(w http.ResponseWriter, r *http.Request) {
	signedUp, err := services.IsSignedUp(r.Context(), s.db, caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"signed_up": signedUp})
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	signup, err := services.SignUp(r.Context(), s.db, s.logger, caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, signup)
}

func (s *Server) removeSignup(w http.ResponseWriter, r *http.Request) {
	if err := services.RemoveSignup(r.Context(), s.db, s.logger, caller(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) mySignups(w http.ResponseWriter, r *http.Request) {
	signups, err := services.MySignups(r.Context(), s.db, s.logger, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signups)
}

func (s *Server) mySignupsICS(w http.ResponseWriter, r *http.Request) {
	signups, err := services.MySignups(r.Context(), s.db, s.logger, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opps := make([]db.Opportunity, 0, len(signups))
	for _, su := range signups {
		opps = append(opps, su.Opportunity)
	}
	body, err := calendar.ICS(opps, s.now(), s.icsDomain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="my-signups.ics"`)
	_, _ = w.Write(body)
}

// Profiles

func (s *Server) currentProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := services.CurrentProfile(r.Context(), s.db, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) registerProfile(w http.ResponseWriter, r *http.Request) {
	var input services.ProfileInput
	if err := decode(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := services.RegisterProfile(r.Context(), s.db, s.logger, caller(r), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var input services.ProfileInput
	if err := decode(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := services.UpdateOwnProfile(r.Context(), s.db, s.logger, caller(r), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := services.ListProfiles(r.Context(), s.db, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) setProfileStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status db.ProfileStatus `json:"status"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := services.SetProfileStatus(r.Context(), s.db, s.logger, caller(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Chat

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := services.ListRooms(r.Context(), s.db, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) createTeamRoom(w http.ResponseWriter, r *http.Request) {
	var input services.TeamRoomInput
	if err := decode(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	room, err := services.CreateTeamRoom(r.Context(), s.db, s.logger, caller(r), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) addRoomMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfileID string        `json:"profile_id"`
		Role      db.MemberRole `json:"role,omitempty"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := services.AddRoomMember(r.Context(), s.db, s.logger, caller(r), chi.URLParam(r, "roomID"), req.ProfileID, req.Role); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, db.NewValidationError("limit", "must be a number"))
			return
		}
		limit = n
	}

	msgs, err := services.History(r.Context(), s.db, s.logger, caller(r), s.limits, chi.URLParam(r, "roomID"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	msg, err := services.SendMessage(r.Context(), s.db, s.feed, s.logger, caller(r), s.limits, chi.URLParam(r, "roomID"), req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := services.DeleteOwnMessage(r.Context(), s.db, s.logger, caller(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin tools

func (s *Server) sendReminder(w http.ResponseWriter, r *http.Request) {
	if err := identity.RequireAdmin(caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.mailer == nil {
		s.writeError(w, r, ErrUnavailable)
		return
	}

	if err := services.SendReminder(r.Context(), s.db, s.mailer, s.logger, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) publishRoster(w http.ResponseWriter, r *http.Request) {
	var dateRange db.DateRange
	if err := decode(w, r, &dateRange); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := identity.RequireAdmin(caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.roster == nil {
		s.writeError(w, r, ErrUnavailable)
		return
	}

	roster, err := services.PublishRoster(r.Context(), s.db, s.roster, s.logger, caller(r), dateRange)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"range": roster.Range, "rows": len(roster.Rows)})
}
