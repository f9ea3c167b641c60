// Package httpapi exposes the portal's operations as a JSON API with a
// server-sent event stream per chat room.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
	"github.com/freestylevancouver/volunteer-portal/pkg/db"
	"github.com/freestylevancouver/volunteer-portal/pkg/identity"
	"github.com/freestylevancouver/volunteer-portal/pkg/metrics"
	"github.com/freestylevancouver/volunteer-portal/pkg/realtime"
)

// Options configures a Server. Mailer and Roster may be nil, in which case
// their routes answer 503.
type Options struct {
	DB               db.Database
	Feed             realtime.Feed
	Verifier         *identity.Verifier
	Logger           *zap.Logger
	Location         *time.Location
	ChatLimits       services.ChatLimits
	LoadWindowMonths int
	RequestTimeout   time.Duration
	AllowedOrigins   []string
	ICSDomain        string
	Mailer           services.Mailer
	Roster           services.RosterPublisher
}

type Server struct {
	db        db.Database
	feed      realtime.Feed
	verifier  *identity.Verifier
	logger    *zap.Logger
	loc       *time.Location
	limits    services.ChatLimits
	window    int
	timeout   time.Duration
	origins   []string
	icsDomain string
	mailer    services.Mailer
	roster    services.RosterPublisher
	now       func() time.Time
}

func New(opts Options) *Server {
	s := &Server{
		db:        opts.DB,
		feed:      opts.Feed,
		verifier:  opts.Verifier,
		logger:    opts.Logger,
		loc:       opts.Location,
		limits:    opts.ChatLimits,
		window:    opts.LoadWindowMonths,
		timeout:   opts.RequestTimeout,
		origins:   opts.AllowedOrigins,
		icsDomain: opts.ICSDomain,
		mailer:    opts.Mailer,
		roster:    opts.Roster,
		now:       time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.window <= 0 {
		s.window = services.DefaultLoadWindowMonths
	}
	if s.timeout <= 0 {
		s.timeout = 15 * time.Second
	}
	if s.icsDomain == "" {
		s.icsDomain = "volunteer-portal"
	}
	return s
}

// Router builds the route tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		// the event stream stays open, so it sits outside the timeout
		r.Get("/rooms/{roomID}/stream", s.streamRoom)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.timeout))

			r.Get("/opportunities", s.listOpportunities)
			r.Post("/opportunities", s.createOpportunity)
			r.Patch("/opportunities/{id}", s.updateOpportunity)
			r.Delete("/opportunities/{id}", s.deleteOpportunity)
			r.Get("/calendar/{year}/{month}", s.monthCalendar)
			r.Get("/calendar/day/{date}", s.dayAgenda)

			r.Get("/opportunities/{id}/signup", s.signupStatus)
			r.Post("/opportunities/{id}/signup", s.signUp)
			r.Delete("/opportunities/{id}/signup", s.removeSignup)

			r.Get("/me", s.currentProfile)
			r.Post("/me", s.registerProfile)
			r.Put("/me", s.updateProfile)
			r.Get("/me/signups", s.mySignups)
			r.Get("/me/signups.ics", s.mySignupsICS)

			r.Get("/profiles", s.listProfiles)
			r.Put("/profiles/{id}/status", s.setProfileStatus)

			r.Get("/rooms", s.listRooms)
			r.Post("/rooms", s.createTeamRoom)
			r.Post("/rooms/{roomID}/members", s.addRoomMember)
			r.Get("/rooms/{roomID}/messages", s.history)
			r.Post("/rooms/{roomID}/messages", s.sendMessage)
			r.Delete("/messages/{id}", s.deleteMessage)

			r.Post("/signups/{id}/reminder", s.sendReminder)
			r.Post("/roster", s.publishRoster)
		})
	})

	return r
}

// authenticate attaches the caller's identity when a bearer token is present.
// A malformed or invalid token is rejected; a missing one is left for the
// operation to refuse.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := r.URL.Query().Get("access_token") // EventSource cannot set headers
		if header != "" {
			var ok bool
			token, ok = strings.CutPrefix(header, "Bearer ")
			if !ok {
				s.writeError(w, r, db.ErrUnauthenticated)
				return
			}
		}
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := s.verifier.Verify(token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// caller returns the identity attached by authenticate, or nil
func caller(r *http.Request) *identity.Identity {
	id, _ := identity.FromContext(r.Context())
	return id
}
