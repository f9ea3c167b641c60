// Package metrics exposes prometheus counters for signup, chat and
// recurrence outcomes.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

var (
	registry = prometheus.NewRegistry()

	signups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "signup_attempts_total",
		Help:      "Signup attempts by outcome.",
	}, []string{"outcome"})

	messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "chat_messages_total",
		Help:      "Chat send attempts by outcome.",
	}, []string{"outcome"})

	recurrenceSteps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "recurrence_steps_total",
		Help:      "Recurring opportunity creation steps by outcome.",
	}, []string{"outcome"})

	reminders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "reminders_total",
		Help:      "Reminder emails by outcome.",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		signups, messages, recurrenceSteps, reminders,
	)
}

// Handler serves the portal's metrics
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Outcome classifies an operation result into a low-cardinality label
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, db.ErrFull):
		return "full"
	case errors.Is(err, db.ErrAlreadySignedUp):
		return "duplicate"
	case errors.Is(err, db.ErrNoProfile):
		return "no_profile"
	case errors.Is(err, db.ErrNotFound):
		return "not_found"
	case errors.Is(err, db.ErrUnauthenticated), errors.Is(err, db.ErrForbidden):
		return "denied"
	case errors.Is(err, db.ErrNotAMember):
		return "not_member"
	case errors.Is(err, db.ErrEmptyMessage), db.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

func RecordSignup(err error)         { signups.WithLabelValues(Outcome(err)).Inc() }
func RecordMessage(err error)        { messages.WithLabelValues(Outcome(err)).Inc() }
func RecordRecurrenceStep(err error) { recurrenceSteps.WithLabelValues(Outcome(err)).Inc() }
func RecordReminder(err error)       { reminders.WithLabelValues(Outcome(err)).Inc() }
