// Package storage persists per-user conversation state and confirmed reservations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/m3rciful/reservebot/bot/config"
)

var (
	// ErrFullyBooked is returned by CreateIfCapacity when the counting unit is already at its limit.
	ErrFullyBooked = errors.New("storage: fully booked")
)

// State is a step of the reservation conversation.
type State string

const (
	StateNone                  State = "NONE"
	StateAskingTime            State = "ASKING_TIME"
	StateAskingPeople          State = "ASKING_PEOPLE"
	StateConfirmingReservation State = "CONFIRMING_RESERVATION"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateNone, StateAskingTime, StateAskingPeople, StateConfirmingReservation:
		return true
	}
	return false
}

// WallClockLayout is the ISO-8601 local timestamp used in drafts and postback payloads.
const WallClockLayout = "2006-01-02T15:04:05"

// Draft holds the booking fields collected so far. Nil means not provided yet.
type Draft struct {
	DateTime *time.Time
	People   *int
}

type draftJSON struct {
	DateTimeISO string `json:"datetime_iso,omitempty"`
	People      *int   `json:"people,omitempty"`
}

// MarshalJSON encodes the draft as {"datetime_iso": "...", "people": n}.
func (d Draft) MarshalJSON() ([]byte, error) {
	var raw draftJSON
	if d.DateTime != nil {
		raw.DateTimeISO = d.DateTime.Format(WallClockLayout)
	}
	raw.People = d.People
	return json.Marshal(raw)
}

// UnmarshalJSON decodes the wall-clock timestamp in UTC; callers re-anchor it
// to the store location with InLocation.
func (d *Draft) UnmarshalJSON(b []byte) error {
	var raw draftJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = Draft{People: raw.People}
	if raw.DateTimeISO != "" {
		t, err := time.Parse(WallClockLayout, raw.DateTimeISO)
		if err != nil {
			return fmt.Errorf("draft datetime_iso: %w", err)
		}
		d.DateTime = &t
	}
	return nil
}

// Complete reports whether both the time and the party size are present.
func (d Draft) Complete() bool {
	return d.DateTime != nil && d.People != nil
}

// InLocation keeps the wall clock of t but attaches loc.
func InLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// UserState is the persisted conversation of one user. A missing record is StateNone.
type UserState struct {
	UserID    string
	State     State
	Data      Draft
	UpdatedAt time.Time
}

// StatusConfirmed and StatusCancelled are the reservation statuses.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Reservation is one confirmed booking. DateTime is the store-local wall clock.
type Reservation struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	DateTime  time.Time `db:"reservation_datetime"`
	NumPeople int       `db:"num_people"`
	Status    string    `db:"status"`
	Reference string    `db:"reference"`
	CreatedAt time.Time `db:"created_at"`
}

// StateStore keeps conversation state keyed by user id.
type StateStore interface {
	// Get returns the stored state or a StateNone record when none exists.
	Get(ctx context.Context, userID string) (UserState, error)
	Upsert(ctx context.Context, st UserState) error
	Delete(ctx context.Context, userID string) error
	// DeleteIdleBefore removes states not updated since cutoff and returns how many were removed.
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReservationStore inserts and counts reservations.
type ReservationStore interface {
	// Create inserts r, filling ID, Reference and CreatedAt.
	Create(ctx context.Context, r *Reservation) error
	// CreateIfCapacity counts confirmed reservations in r's unit (day or slot) and
	// inserts r only while that count is below limit, as one atomic step.
	CreateIfCapacity(ctx context.Context, r *Reservation, scope config.CapacityScope, limit int) error
	CountConfirmedOnDate(ctx context.Context, day time.Time) (int, error)
	CountConfirmedAt(ctx context.Context, at time.Time) (int, error)
	ListConfirmedOnDate(ctx context.Context, day time.Time) ([]Reservation, error)
}

func dateKey(t time.Time) string { return t.Format(time.DateOnly) }

func slotKey(t time.Time) string { return t.Format(time.DateTime) }

// unitKey names the counting unit of t for scope.
func unitKey(t time.Time, scope config.CapacityScope) string {
	if scope == config.ScopeSlot {
		return "slot:" + slotKey(t)
	}
	return "day:" + dateKey(t)
}
