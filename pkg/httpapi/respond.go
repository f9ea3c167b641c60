package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

// Response is the envelope of every JSON reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError describes a failed request
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: status < 300, Data: data})
}

// writeError maps err onto a status code and writes the user-facing message
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	apiErr := &APIError{Code: code, Message: services.UserMessage(err)}
	var verr *db.ValidationError
	if errors.As(err, &verr) {
		apiErr.Fields = verr.Fields
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.logger.Debug("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: false, Error: apiErr})
}

func classify(err error) (int, string) {
	var verr *db.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, db.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, db.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, db.ErrNotAMember):
		return http.StatusForbidden, "NOT_A_MEMBER"
	case errors.Is(err, db.ErrNotSender):
		return http.StatusForbidden, "NOT_SENDER"
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, db.ErrAlreadySignedUp):
		return http.StatusConflict, "ALREADY_SIGNED_UP"
	case errors.Is(err, db.ErrFull):
		return http.StatusConflict, "FULL"
	case errors.Is(err, db.ErrNoProfile):
		return http.StatusConflict, "NO_PROFILE"
	case errors.Is(err, db.ErrEmptyMessage):
		return http.StatusBadRequest, "EMPTY_MESSAGE"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
	}
}

// decode reads a JSON body into dst, rejecting unknown fields
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return db.NewValidationError("body", "must be valid JSON: "+err.Error())
	}
	return nil
}
