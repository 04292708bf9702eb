package storage

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/m3rciful/reservebot/bot/config"
)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestDraftJSON(t *testing.T) {
	at := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		draft Draft
		want  string
	}{
		{"empty", Draft{}, `{}`},
		{"time only", Draft{DateTime: timePtr(at)}, `{"datetime_iso":"2024-06-01T14:00:00"}`},
		{"complete", Draft{DateTime: timePtr(at), People: intPtr(3)}, `{"datetime_iso":"2024-06-01T14:00:00","people":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.draft)
			if err != nil {
				t.Fatal(err)
			}
			if string(b) != tt.want {
				t.Fatalf("json = %s, want %s", b, tt.want)
			}
			var back Draft
			if err := json.Unmarshal(b, &back); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(back, tt.draft) {
				t.Fatalf("round trip = %+v, want %+v", back, tt.draft)
			}
		})
	}
}

func TestDraftUnmarshalInvalidTime(t *testing.T) {
	var d Draft
	if err := json.Unmarshal([]byte(`{"datetime_iso":"tomorrow"}`), &d); err == nil {
		t.Fatal("expected error for malformed datetime_iso")
	}
}

func TestInLocationKeepsWallClock(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	got := InLocation(time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC), tokyo)
	if got.Format(WallClockLayout) != "2024-06-01T14:00:00" || got.Location() != tokyo {
		t.Fatalf("InLocation = %v", got)
	}
}

func TestMemoryStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStateStore()

	got, err := s.Get(ctx, "u1")
	if err != nil || got.State != StateNone {
		t.Fatalf("missing user = %+v, %v", got, err)
	}

	want := UserState{
		UserID: "u1",
		State:  StateConfirmingReservation,
		Data:   Draft{DateTime: timePtr(time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)), People: intPtr(3)},
	}
	if err := s.Upsert(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, "u1")
	if got.State != want.State || !reflect.DeepEqual(got.Data, want.Data) {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}

	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if got, _ = s.Get(ctx, "u1"); got.State != StateNone {
		t.Fatalf("after delete state = %s", got.State)
	}
}

func TestMemoryStateStoreDeleteIdleBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStateStore()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	_ = s.Upsert(ctx, UserState{UserID: "old", State: StateAskingTime})
	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	_ = s.Upsert(ctx, UserState{UserID: "fresh", State: StateAskingPeople})

	n, err := s.DeleteIdleBefore(ctx, base.Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteIdleBefore = %d, %v", n, err)
	}
	if got, _ := s.Get(ctx, "fresh"); got.State != StateAskingPeople {
		t.Fatalf("fresh state dropped: %+v", got)
	}
}

func TestMemoryReservationCounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryReservationStore()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, r := range []Reservation{
		{UserID: "a", DateTime: day.Add(12 * time.Hour), NumPeople: 2},
		{UserID: "b", DateTime: day.Add(14 * time.Hour), NumPeople: 4},
		{UserID: "c", DateTime: day.Add(14 * time.Hour), NumPeople: 1, Status: StatusCancelled},
		{UserID: "d", DateTime: day.Add(36 * time.Hour), NumPeople: 2},
	} {
		r := r
		if err := s.Create(ctx, &r); err != nil {
			t.Fatal(err)
		}
		if r.ID == 0 || r.Reference == "" {
			t.Fatalf("Create did not fill id/reference: %+v", r)
		}
	}

	if n, _ := s.CountConfirmedOnDate(ctx, day.Add(10*time.Hour)); n != 2 {
		t.Fatalf("CountConfirmedOnDate = %d, want 2", n)
	}
	if n, _ := s.CountConfirmedAt(ctx, day.Add(14*time.Hour)); n != 1 {
		t.Fatalf("CountConfirmedAt = %d, want 1", n)
	}
	list, _ := s.ListConfirmedOnDate(ctx, day)
	if len(list) != 2 || list[0].UserID != "a" || list[1].UserID != "b" {
		t.Fatalf("ListConfirmedOnDate = %+v", list)
	}
}

func TestMemoryCreateIfCapacity(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		scope   config.CapacityScope
		at      time.Time
		wantErr error
	}{
		{"day scope same date is full", config.ScopeDay, day.Add(18 * time.Hour), ErrFullyBooked},
		{"day scope other date is open", config.ScopeDay, day.Add(42 * time.Hour), nil},
		{"slot scope other slot is open", config.ScopeSlot, day.Add(18 * time.Hour), nil},
		{"slot scope same slot is full", config.ScopeSlot, day.Add(12 * time.Hour), ErrFullyBooked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryReservationStore()
			for i := 0; i < 2; i++ {
				r := Reservation{UserID: "seed", DateTime: day.Add(12 * time.Hour), NumPeople: 2}
				if err := s.Create(ctx, &r); err != nil {
					t.Fatal(err)
				}
			}
			r := Reservation{UserID: "u", DateTime: tt.at, NumPeople: 2}
			err := s.CreateIfCapacity(ctx, &r, tt.scope, 2)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateIfCapacity err = %v, want %v", err, tt.wantErr)
			}
			wantRows := 3
			if tt.wantErr != nil {
				wantRows = 2
			}
			if got := len(s.All()); got != wantRows {
				t.Fatalf("rows = %d, want %d", got, wantRows)
			}
		})
	}
}
