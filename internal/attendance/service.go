package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"geoattend/internal/geofence"
	"geoattend/internal/identity"
	"geoattend/internal/location"
	"geoattend/internal/metrics"
)

// Status is the outcome of a mark attempt that did not fail.
type Status string

const (
	StatusMarked        Status = "marked"
	StatusAlreadyMarked Status = "already_marked"
	StatusOutside       Status = "outside_fence"
)

// Result describes a completed mark attempt.
type Result struct {
	Status   Status            `json:"status"`
	Date     string            `json:"date,omitempty"`
	Decision geofence.Decision `json:"geofence"`
	Record   *Record           `json:"record,omitempty"`
}

// Message is the text shown to the user for r.
func (r Result) Message() string {
	switch r.Status {
	case StatusOutside:
		return fmt.Sprintf(
			"Attendance can only be marked within %gm of the designated location. You are currently %.1f meters away.",
			r.Decision.Radius, r.Decision.Rounded())
	case StatusAlreadyMarked:
		return "You've already marked attendance for today."
	case StatusMarked:
		return "Attendance marked for " + r.Date + "."
	}
	return ""
}

// MarkRequest is one attempt by User to mark attendance for today.
type MarkRequest struct {
	User   identity.User
	Source location.Source
	// Zone is the caller's time zone; it decides what "today" is.
	Zone *time.Location
}

// Service coordinates geofenced attendance marks against a Store.
type Service struct {
	store  Store
	fence  geofence.Fence
	locker Locker
	now    func() time.Time
	zone   *time.Location
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLocker replaces the default in-process locker.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithZone sets the time zone used when a request carries none.
func WithZone(z *time.Location) Option { return func(s *Service) { s.zone = z } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// NewService creates a service backed by store and admitting marks inside fence.
func NewService(store Store, fence geofence.Fence, opts ...Option) *Service {
	s := &Service{
		store:  store,
		fence:  fence,
		locker: NewKeyedLocker(),
		now:    time.Now,
		zone:   time.Local,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fence returns the configured admission area.
func (s *Service) Fence() geofence.Fence { return s.fence }

// Today returns the current calendar date in zone (or the default zone).
func (s *Service) Today(zone *time.Location) string {
	if zone == nil {
		zone = s.zone
	}
	return Day(s.now(), zone)
}

// Mark runs one attendance attempt: permission, position, fence check, then
// an idempotent write of today's date. A user outside the fence gets a
// StatusOutside result, not an error.
func (s *Service) Mark(ctx context.Context, req MarkRequest) (Result, error) {
	res, err := s.mark(ctx, req)
	switch {
	case err != nil:
		metrics.Mark("error")
		s.log.WarnContext(ctx, "attendance mark failed", "email", req.User.Email, "error", err)
	default:
		metrics.Mark(string(res.Status))
	}
	return res, err
}

func (s *Service) mark(ctx context.Context, req MarkRequest) (Result, error) {
	if req.Source == nil {
		return Result{}, ErrLocationUnavailable
	}
	perm, err := req.Source.RequestPermission(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if perm != location.Granted {
		return Result{}, ErrPermissionDenied
	}

	pos, err := req.Source.CurrentCoordinate(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrLocationUnavailable, err)
	}

	dec, err := s.fence.Check(pos)
	if err != nil {
		return Result{}, err
	}
	metrics.Distance(dec.Distance)
	if !dec.Admitted {
		return Result{Status: StatusOutside, Decision: dec}, nil
	}

	key, err := req.User.Key()
	if err != nil {
		return Result{}, err
	}

	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return Result{}, err
	}
	defer release()

	today := s.Today(req.Zone)
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if rec != nil && rec.Has(today) {
		return Result{Status: StatusAlreadyMarked, Date: today, Decision: dec, Record: rec}, nil
	}

	if rec == nil {
		rec = &Record{Key: key, Name: req.User.Name, Email: req.User.Email, Dates: []string{today}}
		err = s.store.Create(ctx, *rec)
		if errors.Is(err, ErrRecordExists) {
			// created elsewhere since our read; the append below is a set union
			err = s.store.AppendDate(ctx, key, today, req.User.Name, req.User.Email)
		}
	} else {
		err = s.store.AppendDate(ctx, key, today, req.User.Name, req.User.Email)
		rec.Dates = append(rec.Dates, today)
		if req.User.Name != "" {
			rec.Name = req.User.Name
		}
		rec.Email = req.User.Email
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	s.log.InfoContext(ctx, "attendance marked", "key", key, "date", today, "days", len(rec.Dates), "distance_m", dec.Rounded())
	return Result{Status: StatusMarked, Date: today, Decision: dec, Record: rec}, nil
}

// Profile returns user's own attendance history, most recent day first.
// A user who never marked gets an empty profile.
func (s *Service) Profile(ctx context.Context, user identity.User, zone *time.Location) (Profile, error) {
	key, err := user.Key()
	if err != nil {
		return Profile{}, err
	}
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	p := Profile{Key: key, Name: user.Name, Email: user.Email, Dates: []string{}, Today: s.Today(zone)}
	if rec == nil {
		return p, nil
	}
	if rec.Name != "" {
		p.Name = rec.Name
	}
	p.Dates = append(p.Dates, rec.Dates...)
	sort.Sort(sort.Reverse(sort.StringSlice(p.Dates)))
	p.Days = len(p.Dates)
	p.TodayMarked = rec.Has(p.Today)
	return p, nil
}

// Leaderboard ranks every stored record by attended days.
func (s *Service) Leaderboard(ctx context.Context) ([]Standing, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return Rank(records), nil
}
