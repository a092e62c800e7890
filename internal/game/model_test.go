package game

import (
	"testing"
	"time"
)

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"tony_m", "tony_m"},
		{"Tony Montana", "tony_montana"},
		{"  El Chapo!  ", "el_chapo"},
		{"x", "dealer_x"},
		{"", "dealer_"},
		{"this_is_a_very_long_username_indeed", "this_is_a_very_long_user"},
	}
	for _, tc := range tests {
		if got := SanitizeUsername(tc.in); got != tc.want {
			t.Fatalf("%q: got %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestCustomerPoolMax(t *testing.T) {
	tests := []struct {
		rep  int64
		want int64
	}{
		{rep: 0, want: 60},
		{rep: 499, want: 60},
		{rep: 500, want: 80},
		{rep: 2500, want: 160},
		{rep: 5000, want: 260},
		{rep: 1_000_000, want: 260}, // tier capped
	}
	for _, tc := range tests {
		if got := CustomerPoolMax(tc.rep); got != tc.want {
			t.Fatalf("rep=%d got=%d want=%d", tc.rep, got, tc.want)
		}
	}
}

func TestSameUTCDay(t *testing.T) {
	a := time.Date(2026, 5, 10, 23, 59, 59, 0, time.UTC)
	b := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	if SameUTCDay(a, b) {
		t.Fatalf("expected midnight boundary to split days")
	}
	if !SameUTCDay(a, a.Add(-23*time.Hour)) {
		t.Fatalf("expected same calendar day")
	}
	// The comparison is pinned to UTC regardless of the wall-clock zone.
	zone := time.FixedZone("UTC+5", 5*3600)
	c := time.Date(2026, 5, 11, 3, 0, 0, 0, zone) // 22:00 UTC May 10
	if !SameUTCDay(a, c) {
		t.Fatalf("zone-local dates must not leak into the comparison")
	}
}

func TestNewReferralCode(t *testing.T) {
	i := 0
	code := newReferralCode(func(n int) int {
		i++
		return i % n
	})
	if len(code) != 8 {
		t.Fatalf("code length %d want 8", len(code))
	}
	for _, r := range code {
		if !((r >= 'A' && r <= 'Z') || (r >= '2' && r <= '9')) {
			t.Fatalf("unexpected rune %q in code %q", r, code)
		}
	}
}
