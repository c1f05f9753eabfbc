package quota

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// fakeCounter answers from a fixed list of submission times.
type fakeCounter struct {
	created []time.Time
	err     error
	since   []time.Time
}

func (f *fakeCounter) CountSubmissionsSince(_ context.Context, _ string, since time.Time) (int, error) {
	f.since = append(f.since, since)
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, c := range f.created {
		if !c.Before(since) {
			n++
		}
	}
	return n, nil
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone %s unavailable: %v", name, err)
	}
	return loc
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	in := time.Date(2024, 3, 10, 17, 45, 12, 999, loc)

	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, loc), StartOfDay(in))
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, loc), NextReset(in))
	assert.Equal(t, StartOfDay(in), StartOfDay(StartOfDay(in)), "idempotent at midnight")
}

func TestNextReset_AcrossDSTUsesCalendarDay(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	// 2024-03-10 is 23 hours long in New York.
	in := time.Date(2024, 3, 10, 12, 0, 0, 0, ny)

	next := NextReset(in)

	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, ny), next)
	assert.Equal(t, 23*time.Hour, next.Sub(StartOfDay(in)))
}

func TestCheck_UnderLimit(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 5, 1, 15, 0, 0, 0, loc)

	for _, prior := range []int{0, 1} {
		counter := &fakeCounter{}
		for i := 0; i < prior; i++ {
			counter.created = append(counter.created, now.Add(-time.Duration(i+1)*time.Hour))
		}
		g := NewGatekeeper(counter, testLogger(), WithClock(func() time.Time { return now }), WithLocation(loc))

		e := g.Check(context.Background(), "alice")

		assert.True(t, e.Allowed, "prior=%d", prior)
		assert.Nil(t, e.NextEligibleAt)
		assert.Equal(t, prior, e.CountToday)
		assert.Equal(t, DailyLimit-prior, e.Remaining())
	}
}

func TestCheck_AtLimit(t *testing.T) {
	loc := time.FixedZone("UTC-7", -7*3600)
	now := time.Date(2024, 5, 1, 15, 30, 0, 0, loc)
	counter := &fakeCounter{created: []time.Time{
		now.Add(-3 * time.Hour),
		now.Add(-2 * time.Hour),
		now.Add(-time.Hour),
	}}
	g := NewGatekeeper(counter, testLogger(), WithClock(func() time.Time { return now }), WithLocation(loc))

	e := g.Check(context.Background(), "alice")

	assert.False(t, e.Allowed)
	require.NotNil(t, e.NextEligibleAt)
	assert.True(t, time.Date(2024, 5, 2, 0, 0, 0, 0, loc).Equal(*e.NextEligibleAt))
	assert.Equal(t, 3, e.CountToday)
	assert.Zero(t, e.Remaining())
	require.Len(t, counter.since, 1)
	assert.True(t, time.Date(2024, 5, 1, 0, 0, 0, 0, loc).Equal(counter.since[0]),
		"count boundary and reset must use the same local day")
}

func TestCheck_ResetsAtLocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	late := time.Date(2024, 5, 1, 23, 59, 59, 0, loc)
	early := time.Date(2024, 5, 2, 0, 0, 1, 0, loc)
	counter := &fakeCounter{created: []time.Time{
		late.Add(-2 * time.Hour),
		late.Add(-time.Minute),
	}}

	now := late
	g := NewGatekeeper(counter, testLogger(), WithClock(func() time.Time { return now }), WithLocation(loc))

	before := g.Check(context.Background(), "alice")
	assert.False(t, before.Allowed)
	assert.Equal(t, 2, before.CountToday)

	now = early
	after := g.Check(context.Background(), "alice")
	assert.True(t, after.Allowed)
	assert.Zero(t, after.CountToday)
	assert.Nil(t, after.NextEligibleAt)
}

func TestCheck_UsesConfiguredLocationNotClockZone(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	// 2024-05-01 20:00 UTC is already 2024-05-02 06:00 in loc.
	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	counter := &fakeCounter{created: []time.Time{
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC),
	}}
	g := NewGatekeeper(counter, testLogger(), WithClock(func() time.Time { return now }), WithLocation(loc))

	e := g.Check(context.Background(), "alice")

	assert.True(t, e.Allowed, "yesterday's submissions in loc must not count")
	require.Len(t, counter.since, 1)
	assert.True(t, time.Date(2024, 5, 2, 0, 0, 0, 0, loc).Equal(counter.since[0]))
}

func TestCheck_FailsOpen(t *testing.T) {
	counter := &fakeCounter{err: errors.New("connection refused")}
	g := NewGatekeeper(counter, testLogger())

	e := g.Check(context.Background(), "alice")

	assert.Equal(t, Eligibility{Allowed: true}, e)
}
