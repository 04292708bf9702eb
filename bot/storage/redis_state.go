package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStateStore keeps conversation state in Redis, one JSON value per user with a TTL.
type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStateStore builds a Redis-backed state store. A zero ttl keeps keys until deleted.
func NewRedisStateStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStateStore {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "reservebot:state"
	}
	return &RedisStateStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

type redisStateValue struct {
	State     State     `json:"state"`
	Data      Draft     `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *RedisStateStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Get returns the stored state or StateNone when the key is missing or expired.
func (s *RedisStateStore) Get(ctx context.Context, userID string) (UserState, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return UserState{UserID: userID, State: StateNone}, nil
	}
	if err != nil {
		return UserState{}, fmt.Errorf("redis get state %s: %w", userID, err)
	}
	var v redisStateValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return UserState{}, fmt.Errorf("decode redis state %s: %w", userID, err)
	}
	if !v.State.Valid() {
		return UserState{}, fmt.Errorf("redis state %s: unknown state %q", userID, v.State)
	}
	return UserState{UserID: userID, State: v.State, Data: v.Data, UpdatedAt: v.UpdatedAt}, nil
}

// Upsert writes the state and refreshes its TTL.
func (s *RedisStateStore) Upsert(ctx context.Context, st UserState) error {
	raw, err := json.Marshal(redisStateValue{State: st.State, Data: st.Data, UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode redis state %s: %w", st.UserID, err)
	}
	if err := s.client.Set(ctx, s.key(st.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set state %s: %w", st.UserID, err)
	}
	return nil
}

// Delete removes the user's key.
func (s *RedisStateStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis del state %s: %w", userID, err)
	}
	return nil
}

// DeleteIdleBefore scans the prefix and removes values last updated before cutoff.
// Keys with a TTL normally expire first; this covers stores configured without one.
func (s *RedisStateStore) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("redis get %s: %w", key, err)
		}
		var v redisStateValue
		if err := json.Unmarshal(raw, &v); err != nil || !v.UpdatedAt.Before(cutoff) {
			continue
		}
		n, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("redis del %s: %w", key, err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan states: %w", err)
	}
	return removed, nil
}
