package storage

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStateStore(t *testing.T, ttl time.Duration) (*RedisStateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStateStore(client, "test:state:", ttl), mr
}

func TestRedisStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStateStore(t, time.Hour)

	got, err := s.Get(ctx, "42")
	if err != nil || got.State != StateNone {
		t.Fatalf("missing key = %+v, %v", got, err)
	}

	at := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	want := UserState{UserID: "42", State: StateAskingPeople, Data: Draft{DateTime: &at}}
	if err := s.Upsert(ctx, want); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !mr.Exists("test:state:42") {
		t.Fatal("expected key test:state:42")
	}
	if ttl := mr.TTL("test:state:42"); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}

	got, err = s.Get(ctx, "42")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != want.State || !reflect.DeepEqual(got.Data, want.Data) {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}

	if err := s.Delete(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "42"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if got, _ = s.Get(ctx, "42"); got.State != StateNone {
		t.Fatalf("after delete = %s", got.State)
	}
}

func TestRedisStateStoreExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStateStore(t, 10*time.Minute)
	if err := s.Upsert(ctx, UserState{UserID: "7", State: StateAskingTime}); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(11 * time.Minute)
	if got, _ := s.Get(ctx, "7"); got.State != StateNone {
		t.Fatalf("expired state = %s, want NONE", got.State)
	}
}

func TestRedisStateStoreDeleteIdleBefore(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStateStore(t, 0)
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	_ = s.Upsert(ctx, UserState{UserID: "old", State: StateAskingTime})
	s.now = func() time.Time { return base.Add(3 * time.Hour) }
	_ = s.Upsert(ctx, UserState{UserID: "fresh", State: StateAskingTime})
	mr.Set("unrelated", "x")

	n, err := s.DeleteIdleBefore(ctx, base.Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteIdleBefore = %d, %v", n, err)
	}
	if mr.Exists("test:state:old") || !mr.Exists("test:state:fresh") || !mr.Exists("unrelated") {
		t.Fatalf("unexpected keys: %v", mr.Keys())
	}
}

func TestRedisStateStoreRejectsUnknownState(t *testing.T) {
	s, mr := newRedisStateStore(t, 0)
	mr.Set("test:state:9", `{"state":"DANCING","data":{}}`)
	if _, err := s.Get(context.Background(), "9"); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
