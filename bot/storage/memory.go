package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/reservebot/bot/config"
)

// MemoryStateStore keeps conversation state in process memory.
// Suitable for tests and single-instance development runs.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]UserState
	now    func() time.Time
}

// NewMemoryStateStore constructs an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]UserState), now: time.Now}
}

// Get returns the user's state or a StateNone record.
func (m *MemoryStateStore) Get(_ context.Context, userID string) (UserState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[userID]; ok {
		return st, nil
	}
	return UserState{UserID: userID, State: StateNone}, nil
}

// Upsert replaces the user's state.
func (m *MemoryStateStore) Upsert(_ context.Context, st UserState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.UpdatedAt = m.now()
	m.states[st.UserID] = st
	return nil
}

// Delete removes the user's state; deleting a missing user is not an error.
func (m *MemoryStateStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
	return nil
}

// DeleteIdleBefore removes states whose last update is before cutoff.
func (m *MemoryStateStore) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, st := range m.states {
		if st.UpdatedAt.Before(cutoff) {
			delete(m.states, id)
			n++
		}
	}
	return n, nil
}

// MemoryReservationStore keeps reservations in process memory.
type MemoryReservationStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []Reservation
	now    func() time.Time
}

// NewMemoryReservationStore constructs an empty in-memory reservation store.
func NewMemoryReservationStore() *MemoryReservationStore {
	return &MemoryReservationStore{now: time.Now}
}

// Create appends r.
func (m *MemoryReservationStore) Create(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(r)
	return nil
}

// CreateIfCapacity appends r only while its counting unit is below limit.
func (m *MemoryReservationStore) CreateIfCapacity(_ context.Context, r *Reservation, scope config.CapacityScope, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := unitKey(r.DateTime, scope)
	n := 0
	for _, row := range m.rows {
		if row.Status == StatusConfirmed && unitKey(row.DateTime, scope) == key {
			n++
		}
	}
	if n >= limit {
		return ErrFullyBooked
	}
	m.insertLocked(r)
	return nil
}

func (m *MemoryReservationStore) insertLocked(r *Reservation) {
	m.nextID++
	r.ID = m.nextID
	if r.Status == "" {
		r.Status = StatusConfirmed
	}
	if r.Reference == "" {
		r.Reference = uuid.NewString()
	}
	r.CreatedAt = m.now()
	m.rows = append(m.rows, *r)
}

// CountConfirmedOnDate counts confirmed reservations on day's calendar date.
func (m *MemoryReservationStore) CountConfirmedOnDate(_ context.Context, day time.Time) (int, error) {
	return m.count(func(r Reservation) bool { return dateKey(r.DateTime) == dateKey(day) }), nil
}

// CountConfirmedAt counts confirmed reservations at exactly at.
func (m *MemoryReservationStore) CountConfirmedAt(_ context.Context, at time.Time) (int, error) {
	return m.count(func(r Reservation) bool { return slotKey(r.DateTime) == slotKey(at) }), nil
}

func (m *MemoryReservationStore) count(match func(Reservation) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.Status == StatusConfirmed && match(r) {
			n++
		}
	}
	return n
}

// ListConfirmedOnDate returns day's confirmed reservations ordered by time.
func (m *MemoryReservationStore) ListConfirmedOnDate(_ context.Context, day time.Time) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, r := range m.rows {
		if r.Status == StatusConfirmed && dateKey(r.DateTime) == dateKey(day) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out, nil
}

// All returns a copy of every stored reservation.
func (m *MemoryReservationStore) All() []Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reservation(nil), m.rows...)
}
