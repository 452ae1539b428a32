package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Resolver computes compliant appointment start times against the
// calendar's busy intervals. Stateless; one instance serves all calls.
type Resolver struct {
	cfg    Config
	cal    Calendar
	logger *slog.Logger
}

// NewResolver creates a resolver over the given calendar.
func NewResolver(cfg Config, cal Calendar, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg, cal: cal, logger: logger}
}

// Resolve returns the first open start time at or after earliest.
// Emergency requests are floored to now plus the emergency lead time.
// Outputs always land on a slot-step boundary. If the search horizon is
// exhausted, the aligned earliest time is returned as a best-effort
// fallback: the dialog re-confirms every slot verbally before booking.
func (r *Resolver) Resolve(ctx context.Context, earliest time.Time, emergency bool, now time.Time) time.Time {
	if emergency {
		floor := now.Add(r.cfg.EmergencyLeadTime)
		if earliest.Before(floor) {
			earliest = floor
		}
	}
	aligned := alignUp(earliest, r.cfg.SlotStep)

	busy, ok := r.busyIntervals(ctx, aligned, aligned.Add(r.cfg.Horizon))
	if !ok {
		// Calendar down or disabled: degrade to "always available"
		// rather than blocking bookings.
		return aligned
	}

	for s := aligned; s.Sub(aligned) < r.cfg.Horizon; s = s.Add(r.cfg.SlotStep) {
		if r.slotFree(s, busy) {
			return s
		}
	}

	r.logger.Warn("slot search horizon exhausted",
		"earliest", earliest,
		"horizon", r.cfg.Horizon,
	)
	return aligned
}

// Book writes the appointment for a resolved slot.
func (r *Resolver) Book(ctx context.Context, b Booking) (string, error) {
	if b.Duration == 0 {
		b.Duration = r.cfg.JobDuration
	}
	b.DurationMin = int(b.Duration / time.Minute)
	return r.cal.CreateBooking(ctx, b)
}

// JobDuration exposes the assumed appointment length.
func (r *Resolver) JobDuration() time.Duration {
	return r.cfg.JobDuration
}

func (r *Resolver) busyIntervals(ctx context.Context, from, to time.Time) ([]Interval, bool) {
	if r.cal == nil || !r.cal.Available(ctx) {
		return nil, false
	}
	busy, err := r.cal.BusyIntervals(ctx, from, to)
	if err != nil {
		r.logger.Warn("calendar query failed, treating slots as free", "error", err)
		return nil, false
	}
	return busy, true
}

// slotFree reports whether no busy interval touches the padded window
// [s-buffer, s+duration+buffer).
func (r *Resolver) slotFree(s time.Time, busy []Interval) bool {
	from := s.Add(-r.cfg.Buffer)
	to := s.Add(r.cfg.JobDuration + r.cfg.Buffer)
	for _, iv := range busy {
		if iv.Intersects(from, to) {
			return false
		}
	}
	return true
}

// alignUp rounds t up to the next step boundary, zeroing seconds.
func alignUp(t time.Time, step time.Duration) time.Time {
	t = t.Truncate(time.Second)
	aligned := t.Truncate(step)
	if aligned.Before(t) {
		aligned = aligned.Add(step)
	}
	return aligned
}
