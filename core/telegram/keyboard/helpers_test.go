package keyboard

import "testing"

func TestInlineButtonsNPerRow(t *testing.T) {
	buttons := make([]InlineBtn, 10)
	for i := range buttons {
		buttons[i] = InlineBtn{Text: "b", Unique: "select_time", Data: "x"}
	}
	tests := []struct {
		n        int
		wantRows []int
	}{
		{4, []int{4, 4, 2}},
		{5, []int{5, 5}},
		{1, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
		{0, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
	}
	for _, tt := range tests {
		m := InlineButtonsNPerRow(buttons, tt.n)
		if len(m.InlineKeyboard) != len(tt.wantRows) {
			t.Fatalf("n=%d rows = %d, want %d", tt.n, len(m.InlineKeyboard), len(tt.wantRows))
		}
		for i, want := range tt.wantRows {
			if got := len(m.InlineKeyboard[i]); got != want {
				t.Fatalf("n=%d row %d has %d buttons, want %d", tt.n, i, got, want)
			}
		}
	}
}

func TestInlineButtonsRowsKeepsUnique(t *testing.T) {
	m := InlineButtonsRows([]InlineBtn{{Text: "はい", Unique: "confirm_yes"}, {Text: "いいえ", Unique: "confirm_no"}})
	row := m.InlineKeyboard[0]
	if row[0].Unique != "confirm_yes" || row[1].Unique != "confirm_no" || row[0].Data != "" {
		t.Fatalf("row = %+v", row)
	}
}
