// Package schedule finds and books compliant appointment slots.
package schedule

import (
	"context"
	"time"
)

// Interval is a half-open busy span [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Intersects reports whether the interval overlaps [from, to).
func (iv Interval) Intersects(from, to time.Time) bool {
	return iv.Start.Before(to) && from.Before(iv.End)
}

// Booking is a confirmed appointment written to the booking store.
type Booking struct {
	ID           string        `json:"id,omitempty"`
	Start        time.Time     `json:"start"`
	Duration     time.Duration `json:"-"`
	DurationMin  int           `json:"durationMin"`
	JobType      string        `json:"jobType"`
	Urgency      string        `json:"urgency,omitempty"`
	CustomerName string        `json:"customerName"`
	Phone        string        `json:"phone,omitempty"`
	Address      string        `json:"address,omitempty"`
	Notes        string        `json:"notes,omitempty"`
}

// Calendar is the external calendar and booking store.
type Calendar interface {
	// Available reports whether the calendar can be queried at all.
	// An unavailable calendar degrades to "every slot is free".
	Available(ctx context.Context) bool

	// BusyIntervals returns the busy spans inside [from, to).
	BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error)

	// CreateBooking writes a confirmed appointment and returns its ID.
	CreateBooking(ctx context.Context, b Booking) (string, error)
}

// Config holds the resolver's scheduling policy.
type Config struct {
	// SlotStep is the candidate-walk granularity. Starts align to it.
	SlotStep time.Duration `json:"slotStep"`

	// Horizon bounds the forward search from the aligned earliest time.
	Horizon time.Duration `json:"horizon"`

	// Buffer pads both sides of a candidate appointment; a busy
	// interval touching the padded window rejects the candidate.
	Buffer time.Duration `json:"buffer"`

	// EmergencyLeadTime is the minimum notice for emergency jobs.
	EmergencyLeadTime time.Duration `json:"emergencyLeadTime"`

	// JobDuration is the assumed appointment length.
	JobDuration time.Duration `json:"jobDuration"`
}

// DefaultConfig returns the stock scheduling policy.
func DefaultConfig() Config {
	return Config{
		SlotStep:          15 * time.Minute,
		Horizon:           72 * time.Hour,
		Buffer:            60 * time.Minute,
		EmergencyLeadTime: 30 * time.Minute,
		JobDuration:       120 * time.Minute,
	}
}
