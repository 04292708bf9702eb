// Package availability decides which reservation slots are bookable: business
// hours, interval alignment and remaining capacity.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/reservebot/bot/config"
	"github.com/m3rciful/reservebot/core/logger"
)

var (
	// ErrOutsideHours reports a time outside [open, close).
	ErrOutsideHours = errors.New("outside business hours")
	// ErrNotAligned reports a time that is not on the slot grid.
	ErrNotAligned = errors.New("not aligned to slot interval")
)

// Counter is the read side of the reservation store the checker needs.
type Counter interface {
	CountConfirmedOnDate(ctx context.Context, day time.Time) (int, error)
	CountConfirmedAt(ctx context.Context, at time.Time) (int, error)
}

// Checker answers availability queries for one store. It has no side effects.
type Checker struct {
	store   config.Store
	counter Counter
}

// New builds a Checker over the given rules and reservation counter.
func New(store config.Store, counter Counter) *Checker {
	return &Checker{store: store, counter: counter}
}

// Scope returns the counting unit capacity is enforced against.
func (c *Checker) Scope() config.CapacityScope { return c.store.Scope }

// Limit returns the configured capacity per counting unit.
func (c *Checker) Limit() int { return c.store.MaxPerSlot }

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// IsWithinBusinessHours reports whether t's time of day lies in [open, close).
func (c *Checker) IsWithinBusinessHours(t time.Time) bool {
	off := sinceMidnight(t)
	return off >= c.store.Open && off < c.store.Close
}

// IsSlotAligned reports whether t sits on the slot grid that starts at the
// opening time and steps by the interval. With a 30 minute interval and a
// whole-hour opening this is "minute is 0 or 30".
func (c *Checker) IsSlotAligned(t time.Time) bool {
	if c.store.Interval <= 0 {
		return false
	}
	d := (sinceMidnight(t) - c.store.Open) % c.store.Interval
	return d == 0
}

// Validate checks hours and alignment, in that order.
func (c *Checker) Validate(t time.Time) error {
	if !c.IsWithinBusinessHours(t) {
		return fmt.Errorf("%s: %w", t.Format("15:04"), ErrOutsideHours)
	}
	if !c.IsSlotAligned(t) {
		return fmt.Errorf("%s: %w", t.Format("15:04"), ErrNotAligned)
	}
	return nil
}

// CountConfirmedReservations counts confirmed reservations in t's counting
// unit: the whole calendar date for the day scope, the exact timestamp for
// the slot scope.
func (c *Checker) CountConfirmedReservations(ctx context.Context, t time.Time) (int, error) {
	if c.store.Scope == config.ScopeSlot {
		return c.counter.CountConfirmedAt(ctx, t)
	}
	return c.counter.CountConfirmedOnDate(ctx, t)
}

// HasCapacity reports whether another reservation fits into t's counting unit.
func (c *Checker) HasCapacity(ctx context.Context, t time.Time) (bool, error) {
	n, err := c.CountConfirmedReservations(ctx, t)
	if err != nil {
		return false, fmt.Errorf("count reservations: %w", err)
	}
	logger.Debug(ctx, logger.CompReservations, "capacity.check",
		slog.String("slot", t.Format(time.DateTime)),
		slog.String("scope", string(c.store.Scope)),
		slog.Int("count", n),
		slog.Int("limit", c.store.MaxPerSlot),
	)
	return n < c.store.MaxPerSlot, nil
}

// Slots lists the bookable slots of day's calendar date, in the store
// location, that start strictly more than the lead time after now.
func (c *Checker) Slots(day, now time.Time) []time.Time {
	loc := c.store.Location
	if loc == nil {
		loc = time.Local
	}
	d := day.In(loc)
	earliest := now.Add(c.store.Lead)

	var out []time.Time
	if c.store.Interval <= 0 {
		return out
	}
	for off := c.store.Open; off < c.store.Close; off += c.store.Interval {
		h, m := int(off/time.Hour), int((off%time.Hour)/time.Minute)
		slot := time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc)
		if slot.After(earliest) {
			out = append(out, slot)
		}
	}
	return out
}
