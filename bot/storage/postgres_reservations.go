package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/reservebot/bot/config"
)

// PostgresReservationStore reads and writes the reservations table.
type PostgresReservationStore struct {
	db *sqlx.DB
}

// NewPostgresReservationStore wraps an open sqlx handle.
func NewPostgresReservationStore(db *sqlx.DB) *PostgresReservationStore {
	return &PostgresReservationStore{db: db}
}

// Timestamps are bound as wall-clock strings so the session time zone never shifts them.
const (
	insertReservation = `
		INSERT INTO reservations (user_id, reservation_datetime, num_people, status, reference)
		VALUES ($1, $2::timestamp, $3, $4, $5)
		RETURNING id, created_at
	`
	countOnDate = `
		SELECT COUNT(*) FROM reservations
		WHERE status = 'confirmed' AND reservation_datetime::date = $1::date
	`
	countAt = `
		SELECT COUNT(*) FROM reservations
		WHERE status = 'confirmed' AND reservation_datetime = $1::timestamp
	`
)

func insert(ctx context.Context, q sqlx.QueryerContext, r *Reservation) error {
	if r.Status == "" {
		r.Status = StatusConfirmed
	}
	if r.Reference == "" {
		r.Reference = uuid.NewString()
	}
	row := q.QueryRowxContext(ctx, insertReservation,
		r.UserID, slotKey(r.DateTime), r.NumPeople, r.Status, r.Reference)
	if err := row.Scan(&r.ID, &r.CreatedAt); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// Create inserts r without checking capacity.
func (s *PostgresReservationStore) Create(ctx context.Context, r *Reservation) error {
	return insert(ctx, s.db, r)
}

// CreateIfCapacity serializes writers of the same counting unit with a
// transaction-scoped advisory lock, counts, and inserts only below limit.
func (s *PostgresReservationStore) CreateIfCapacity(ctx context.Context, r *Reservation, scope config.CapacityScope, limit int) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reservation tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "reservations:"+unitKey(r.DateTime, scope)); err != nil {
		return fmt.Errorf("lock reservation unit: %w", err)
	}

	var n int
	if scope == config.ScopeSlot {
		err = tx.GetContext(ctx, &n, countAt, slotKey(r.DateTime))
	} else {
		err = tx.GetContext(ctx, &n, countOnDate, dateKey(r.DateTime))
	}
	if err != nil {
		return fmt.Errorf("count reservations: %w", err)
	}
	if n >= limit {
		return ErrFullyBooked
	}

	if err = insert(ctx, tx, r); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reservation tx: %w", err)
	}
	return nil
}

// CountConfirmedOnDate counts confirmed reservations on day's calendar date.
func (s *PostgresReservationStore) CountConfirmedOnDate(ctx context.Context, day time.Time) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, countOnDate, dateKey(day)); err != nil {
		return 0, fmt.Errorf("count reservations on %s: %w", dateKey(day), err)
	}
	return n, nil
}

// CountConfirmedAt counts confirmed reservations at exactly at.
func (s *PostgresReservationStore) CountConfirmedAt(ctx context.Context, at time.Time) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, countAt, slotKey(at)); err != nil {
		return 0, fmt.Errorf("count reservations at %s: %w", slotKey(at), err)
	}
	return n, nil
}

// ListConfirmedOnDate returns day's confirmed reservations ordered by time.
func (s *PostgresReservationStore) ListConfirmedOnDate(ctx context.Context, day time.Time) ([]Reservation, error) {
	var out []Reservation
	const query = `
		SELECT id, user_id, reservation_datetime, num_people, status, reference, created_at
		FROM reservations
		WHERE status = 'confirmed' AND reservation_datetime::date = $1::date
		ORDER BY reservation_datetime ASC, id ASC
	`
	if err := s.db.SelectContext(ctx, &out, query, dateKey(day)); err != nil {
		return nil, fmt.Errorf("list reservations on %s: %w", dateKey(day), err)
	}
	return out, nil
}
