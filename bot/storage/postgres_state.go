package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStateStore keeps conversation state in the user_states table.
type PostgresStateStore struct {
	db *sqlx.DB
}

// NewPostgresStateStore wraps an open sqlx handle.
func NewPostgresStateStore(db *sqlx.DB) *PostgresStateStore {
	return &PostgresStateStore{db: db}
}

type userStateRow struct {
	UserID    string    `db:"user_id"`
	State     string    `db:"state"`
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Get loads the user's state; a missing row yields StateNone.
func (s *PostgresStateStore) Get(ctx context.Context, userID string) (UserState, error) {
	var row userStateRow
	err := s.db.GetContext(ctx, &row,
		`SELECT user_id, state, data, updated_at FROM user_states WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return UserState{UserID: userID, State: StateNone}, nil
	}
	if err != nil {
		return UserState{}, fmt.Errorf("get user state %s: %w", userID, err)
	}

	st := UserState{UserID: row.UserID, State: State(row.State), UpdatedAt: row.UpdatedAt}
	if !st.State.Valid() {
		return UserState{}, fmt.Errorf("user state %s: unknown state %q", userID, row.State)
	}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &st.Data); err != nil {
			return UserState{}, fmt.Errorf("decode user state %s: %w", userID, err)
		}
	}
	return st, nil
}

// Upsert inserts or replaces the user's state and refreshes updated_at.
func (s *PostgresStateStore) Upsert(ctx context.Context, st UserState) error {
	data, err := json.Marshal(st.Data)
	if err != nil {
		return fmt.Errorf("encode user state %s: %w", st.UserID, err)
	}
	const query = `
		INSERT INTO user_states (user_id, state, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET state = EXCLUDED.state,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, st.UserID, string(st.State), data); err != nil {
		return fmt.Errorf("upsert user state %s: %w", st.UserID, err)
	}
	return nil
}

// Delete removes the user's state.
func (s *PostgresStateStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_states WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete user state %s: %w", userID, err)
	}
	return nil
}

// DeleteIdleBefore removes states last updated before cutoff.
func (s *PostgresStateStore) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_states WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete idle user states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete idle user states: rows affected: %w", err)
	}
	return n, nil
}
