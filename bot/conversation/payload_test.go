package conversation

import (
	"testing"
	"time"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		raw  string
		want Payload
	}{
		{"select_time|2024-06-01T14:00:00", Payload{Intent: IntentSelectTime, Value: "2024-06-01T14:00:00"}},
		{"confirm_yes", Payload{Intent: IntentConfirmYes}},
		{" confirm_no| ", Payload{Intent: IntentConfirmNo}},
		{"a|b|c", Payload{Intent: "a", Value: "b|c"}},
		{"", Payload{}},
	}
	for _, tt := range tests {
		if got := ParsePayload(tt.raw); got != tt.want {
			t.Errorf("ParsePayload(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
	if got := (Payload{Intent: IntentConfirmYes}).String(); got != "confirm_yes" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseSlotTime(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-06-01T14:00:00", "2024-06-01 14:00:00 +0900", false},
		{"2024-06-01T14:00", "2024-06-01 14:00:00 +0900", false},
		{"2024-06-01 14:30", "2024-06-01 14:30:00 +0900", false},
		{"2024-06-01T05:00:00Z", "2024-06-01 14:00:00 +0900", false},
		{"2024-06-01T14:00:00+09:00", "2024-06-01 14:00:00 +0900", false},
		{"14:00", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSlotTime(tt.in, tokyo)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseSlotTime(%q) err = %v", tt.in, err)
		}
		if tt.wantErr {
			continue
		}
		if s := got.Format("2006-01-02 15:04:05 -0700"); s != tt.want {
			t.Errorf("ParseSlotTime(%q) = %s, want %s", tt.in, s, tt.want)
		}
	}
}

func TestSelectTimePayloadRoundTrip(t *testing.T) {
	tokyo, _ := time.LoadLocation("Asia/Tokyo")
	slot := time.Date(2024, 6, 1, 18, 30, 0, 0, tokyo)
	p := ParsePayload(SelectTimePayload(slot))
	if p.Intent != IntentSelectTime {
		t.Fatalf("intent = %q", p.Intent)
	}
	got, err := ParseSlotTime(p.Value, tokyo)
	if err != nil || !got.Equal(slot) {
		t.Fatalf("round trip = %v, %v", got, err)
	}
}
