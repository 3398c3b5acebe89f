package usage

import (
	"errors"
	"fmt"
	"forager/app/config"
	"forager/app/util/metrics"
	"sync"
	"time"

	"github.com/samber/do"
)

const window = time.Hour

type Limit string

const (
	LimitHourly Limit = "hourly"
	LimitDaily  Limit = "daily"
)

// Rejection explains why a message was not admitted. Reason is safe to show
// to the end user.
type Rejection struct {
	Limit  Limit
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

// Service gates messages before they reach the agent loop.
type Service struct {
	hourlyLimit int
	dailyLimit  int
	now         func() time.Time

	mu       sync.Mutex
	recent   map[string][]time.Time
	day      string
	dayCount int
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(cfg.Usage.HourlyLimit, cfg.Usage.DailyLimit), nil
}

func NewService(hourlyLimit, dailyLimit int, opts ...Option) *Service {
	s := &Service{
		hourlyLimit: hourlyLimit,
		dailyLimit:  dailyLimit,
		now:         time.Now,
		recent:      make(map[string][]time.Time),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Check returns a *Rejection when identity may not send another message now.
// It never consumes budget.
func (s *Service) Check(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.check(identity, s.now())
}

// Record consumes one unit of budget for identity.
func (s *Service) Record(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(identity, s.now())
}

// Admit checks and records atomically.
func (s *Service) Admit(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if err := s.check(identity, now); err != nil {
		var rejection *Rejection
		if errors.As(err, &rejection) && rejection.Limit == LimitDaily {
			metrics.Admissions.WithLabelValues(metrics.AdmissionDaily).Inc()
		} else {
			metrics.Admissions.WithLabelValues(metrics.AdmissionHourly).Inc()
		}
		return err
	}

	s.record(identity, now)
	metrics.Admissions.WithLabelValues(metrics.AdmissionAccepted).Inc()

	return nil
}

// Remaining reports the hourly budget left for identity and the global budget
// left today.
func (s *Service) Remaining(identity string) (hourly, daily int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.rollDay(now)

	return s.hourlyLimit - len(s.prune(identity, now)), s.dailyLimit - s.dayCount
}

func (s *Service) check(identity string, now time.Time) error {
	s.rollDay(now)

	if s.dayCount >= s.dailyLimit {
		return &Rejection{
			Limit:  LimitDaily,
			Reason: "The daily message limit has been reached. Please try again tomorrow.",
		}
	}

	recent := s.prune(identity, now)
	if len(recent) >= s.hourlyLimit {
		retry := recent[0].Add(window).Sub(now).Round(time.Minute)
		return &Rejection{
			Limit: LimitHourly,
			Reason: fmt.Sprintf("You've reached the limit of %d messages per hour. Please try again in %s.",
				s.hourlyLimit, formatWait(retry)),
		}
	}

	return nil
}

func (s *Service) record(identity string, now time.Time) {
	s.rollDay(now)

	s.recent[identity] = append(s.prune(identity, now), now)
	s.dayCount++
}

// prune drops timestamps that left the sliding window.
func (s *Service) prune(identity string, now time.Time) []time.Time {
	cutoff := now.Add(-window)

	stamps := s.recent[identity]
	keep := 0
	for keep < len(stamps) && !stamps[keep].After(cutoff) {
		keep++
	}
	stamps = stamps[keep:]

	if len(stamps) == 0 {
		delete(s.recent, identity)
		return nil
	}

	s.recent[identity] = stamps
	return stamps
}

func (s *Service) rollDay(now time.Time) {
	day := now.UTC().Format(time.DateOnly)
	if day != s.day {
		s.day = day
		s.dayCount = 0
	}
}

func formatWait(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes <= 1 {
		return "a minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
