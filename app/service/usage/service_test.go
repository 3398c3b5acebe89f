package usage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(hourly, daily int) (*Service, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	return NewService(hourly, daily, WithClock(clock.Now)), clock
}

func TestHourlyWindow(t *testing.T) {
	svc, clock := newTestService(20, 1000)

	for range 20 {
		require.NoError(t, svc.Admit("alice"))
		clock.Advance(time.Minute)
	}

	// 20 messages within 19 minutes, the clock now sits 20 minutes after the first
	clock.Advance(39 * time.Minute)
	err := svc.Check("alice")
	require.Error(t, err)

	var rejection *Rejection
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, LimitHourly, rejection.Limit)
	assert.Contains(t, rejection.Reason, "20 messages per hour")

	// another identity is unaffected
	assert.NoError(t, svc.Check("bob"))

	// the first message leaves the window exactly one hour after it was sent
	clock.Advance(time.Minute)
	assert.NoError(t, svc.Check("alice"))
}

func TestCheckDoesNotConsume(t *testing.T) {
	svc, _ := newTestService(1, 10)

	for range 5 {
		require.NoError(t, svc.Check("alice"))
	}

	svc.Record("alice")
	assert.Error(t, svc.Check("alice"))
}

func TestRejectedMessagesDoNotCount(t *testing.T) {
	svc, clock := newTestService(2, 10)

	require.NoError(t, svc.Admit("alice"))
	require.NoError(t, svc.Admit("alice"))
	for range 5 {
		assert.Error(t, svc.Admit("alice"))
	}

	hourly, daily := svc.Remaining("alice")
	assert.Zero(t, hourly)
	assert.Equal(t, 8, daily)

	clock.Advance(time.Hour)
	hourly, _ = svc.Remaining("alice")
	assert.Equal(t, 2, hourly)
}

func TestDailyLimitRollsOver(t *testing.T) {
	svc, clock := newTestService(100, 3)
	clock.now = time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Admit("a"))
	require.NoError(t, svc.Admit("b"))
	require.NoError(t, svc.Admit("c"))

	err := svc.Admit("d")
	var rejection *Rejection
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, LimitDaily, rejection.Limit)

	clock.Advance(59 * time.Minute)
	assert.Error(t, svc.Check("d"))

	// first check after midnight UTC resets the counter
	clock.Advance(2 * time.Minute)
	assert.NoError(t, svc.Check("d"))

	_, daily := svc.Remaining("d")
	assert.Equal(t, 3, daily)
}

func TestDailyLimitUsesUTC(t *testing.T) {
	svc, clock := newTestService(100, 1)
	tz := time.FixedZone("UTC+10", 10*60*60)
	// 2026-03-11 08:00 local is still 2026-03-10 in UTC
	clock.now = time.Date(2026, 3, 11, 8, 0, 0, 0, tz)

	require.NoError(t, svc.Admit("a"))

	clock.now = time.Date(2026, 3, 11, 9, 59, 0, 0, tz)
	assert.Error(t, svc.Check("b"))

	clock.now = time.Date(2026, 3, 11, 10, 0, 0, 0, tz)
	assert.NoError(t, svc.Check("b"))
}
