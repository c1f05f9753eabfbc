// Package quota decides whether a sender may submit another link today.
//
// Senders get DailyLimit submissions per local calendar day. The window is
// not rolling: it resets at local midnight in the configured location, and
// the same boundary function drives both the count and the reset time.
//
// Infrastructure failures while counting fail open. Availability is preferred
// over strict enforcement, and two simultaneous submissions from one sender
// may both be admitted.
package quota

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DailyLimit is the number of submissions a sender may make per local day.
const DailyLimit = 2

// Counter counts a sender's submissions created at or after since.
type Counter interface {
	CountSubmissionsSince(ctx context.Context, senderID string, since time.Time) (int, error)
}

// Eligibility is the outcome of a quota check.
type Eligibility struct {
	Allowed bool `json:"allowed"`
	// NextEligibleAt is the next local midnight when Allowed is false, otherwise nil.
	NextEligibleAt *time.Time `json:"next_eligible_at"`
	// CountToday is informational.
	CountToday int `json:"count_today"`
}

// Remaining reports how many submissions are left today.
func (e Eligibility) Remaining() int {
	if n := DailyLimit - e.CountToday; n > 0 {
		return n
	}
	return 0
}

// StartOfDay returns local midnight of the calendar day containing t, in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextReset returns the local midnight that starts the day after t.
func NextReset(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// Gatekeeper checks senders against DailyLimit.
type Gatekeeper struct {
	counter  Counter
	location *time.Location
	now      func() time.Time
	log      logrus.FieldLogger
}

// Option customises a Gatekeeper.
type Option func(*Gatekeeper)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gatekeeper) { g.now = now }
}

// WithLocation sets the zone whose calendar days are counted. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(g *Gatekeeper) {
		if loc != nil {
			g.location = loc
		}
	}
}

func NewGatekeeper(counter Counter, logger logrus.FieldLogger, opts ...Option) *Gatekeeper {
	g := &Gatekeeper{
		counter:  counter,
		location: time.Local,
		now:      time.Now,
		log:      logger.WithField("component", "gatekeeper"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check reports whether senderID may submit now. It never returns an error:
// a failed count is logged and treated as zero submissions.
func (g *Gatekeeper) Check(ctx context.Context, senderID string) Eligibility {
	now := g.now().In(g.location)
	start := StartOfDay(now)

	count, err := g.counter.CountSubmissionsSince(ctx, senderID, start)
	if err != nil {
		g.log.WithError(err).WithField("sender_id", senderID).Warn("Failed to count submissions, allowing submission")
		return Eligibility{Allowed: true}
	}

	if count < DailyLimit {
		return Eligibility{Allowed: true, CountToday: count}
	}

	next := NextReset(now)
	return Eligibility{
		Allowed:        false,
		NextEligibleAt: &next,
		CountToday:     count,
	}
}
