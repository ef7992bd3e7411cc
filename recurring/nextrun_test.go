package recurring_test

import (
	"errors"
	"testing"
	"time"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/recurring"
)

// mustTime builds a UTC instant for test fixtures.
func mustTime(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func TestNext_EveryMinute(t *testing.T) {
	from := mustTime(2024, time.March, 15, 10, 30, 45)
	got := recurring.Next("* * * * *", from)
	want := mustTime(2024, time.March, 15, 10, 31, 0)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestNext_TopOfHour(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{
			name: "mid hour rolls to next hour",
			from: mustTime(2024, time.March, 15, 10, 30, 45),
			want: mustTime(2024, time.March, 15, 11, 0, 0),
		},
		{
			name: "end of hour snaps to boundary",
			from: mustTime(2024, time.March, 15, 10, 59, 10),
			want: mustTime(2024, time.March, 15, 11, 0, 0),
		},
		{
			name: "exact top of hour moves to the next",
			from: mustTime(2024, time.March, 15, 10, 0, 0),
			want: mustTime(2024, time.March, 15, 11, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recurring.Next("0 * * * *", tt.from)
			if !got.Equal(tt.want) {
				t.Errorf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNext_DailyMidnight(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{
			name: "afternoon rolls to tomorrow",
			from: mustTime(2024, time.March, 15, 14, 22, 0),
			want: mustTime(2024, time.March, 16, 0, 0, 0),
		},
		{
			name: "one minute before midnight snaps to it",
			from: mustTime(2024, time.March, 15, 23, 59, 30),
			want: mustTime(2024, time.March, 16, 0, 0, 0),
		},
		{
			name: "exactly midnight yields the next midnight",
			from: mustTime(2024, time.March, 15, 0, 0, 0),
			want: mustTime(2024, time.March, 16, 0, 0, 0),
		},
		{
			name: "month boundary",
			from: mustTime(2024, time.March, 31, 12, 0, 0),
			want: mustTime(2024, time.April, 1, 0, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recurring.Next("0 0 * * *", tt.from)
			if !got.Equal(tt.want) {
				t.Errorf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNext_WeeklySunday(t *testing.T) {
	// 2024-03-15 is a Friday; the following Sunday is the 17th.
	from := mustTime(2024, time.March, 15, 10, 0, 0)
	got := recurring.Next("0 0 * * 0", from)
	want := mustTime(2024, time.March, 17, 0, 0, 0)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
	if got.Weekday() != time.Sunday {
		t.Errorf("expected Sunday, got %v", got.Weekday())
	}

	// From a Saturday just before midnight, Sunday midnight is minutes away.
	from = mustTime(2024, time.March, 16, 23, 59, 0)
	got = recurring.Next("0 0 * * 0", from)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestNext_MonthlyFirst(t *testing.T) {
	from := mustTime(2024, time.March, 15, 10, 0, 0)
	got := recurring.Next("0 0 1 * *", from)
	want := mustTime(2024, time.April, 1, 0, 0, 0)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}

	// December rolls into January of the next year.
	from = mustTime(2024, time.December, 20, 8, 0, 0)
	got = recurring.Next("0 0 1 * *", from)
	want = mustTime(2025, time.January, 1, 0, 0, 0)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestNext_FallbackFiveMinutes(t *testing.T) {
	from := mustTime(2024, time.March, 15, 10, 30, 45)
	for _, expr := range []string{
		"*/15 * * * *",
		"30 2 * * 1-5",
		"0 0 * * 3",
		"not a cron",
	} {
		got := recurring.Next(expr, from)
		want := from.Add(recurring.FallbackDelay)
		if !got.Equal(want) {
			t.Errorf("Next(%q) = %v, want fallback %v", expr, got, want)
		}
	}
}

func TestNext_Deterministic(t *testing.T) {
	from := mustTime(2024, time.March, 15, 10, 30, 45)
	for _, expr := range []string{"* * * * *", "0 * * * *", "0 0 * * *", "0 0 * * 0", "0 0 1 * *", "*/7 * * * *"} {
		a := recurring.Next(expr, from)
		b := recurring.Next(expr, from)
		if !a.Equal(b) {
			t.Errorf("Next(%q) not deterministic: %v != %v", expr, a, b)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := []string{
		"* * * * *",
		"0 0 * * *",
		"*/15 * * * *",
		"30 2 1,15 * 1-5",
	}
	for _, expr := range valid {
		if err := recurring.Validate(expr); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", expr, err)
		}
	}

	invalid := []string{
		"",
		"* * * *",
		"* * * * * *",
		"a b c d e",
		"0 0 * * mon",
	}
	for _, expr := range invalid {
		err := recurring.Validate(expr)
		if err == nil {
			t.Errorf("Validate(%q) = nil, want error", expr)
			continue
		}
		if !errors.Is(err, tempo.ErrInvalidExpression) {
			t.Errorf("Validate(%q) error %v does not wrap ErrInvalidExpression", expr, err)
		}
	}
}

func TestNextFull(t *testing.T) {
	from := mustTime(2024, time.March, 15, 10, 30, 45)

	// The full grammar evaluates step expressions the heuristic cannot.
	got := recurring.NextFull("*/15 * * * *", from)
	want := mustTime(2024, time.March, 15, 10, 45, 0)
	if !got.Equal(want) {
		t.Errorf("NextFull = %v, want %v", got, want)
	}

	// Invalid expressions keep the conservative fallback.
	got = recurring.NextFull("bogus", from)
	if !got.Equal(from.Add(recurring.FallbackDelay)) {
		t.Errorf("NextFull(bogus) = %v, want fallback", got)
	}

	if err := recurring.ValidateFull("*/15 * * * *"); err != nil {
		t.Errorf("ValidateFull: %v", err)
	}
	if err := recurring.ValidateFull("every day"); err == nil {
		t.Error("ValidateFull accepted garbage")
	}
}
