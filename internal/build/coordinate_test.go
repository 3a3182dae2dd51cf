package build

import (
	"testing"
	"time"
)

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in      string
		want    Coordinate
		wantErr bool
	}{
		{"20250310.1", Coordinate{Date: "20250310", Seq: 1}, false},
		{"20250310.142", Coordinate{Date: "20250310", Seq: 142}, false},
		{"20250310", Coordinate{}, true},   // no sequence
		{"2025031.1", Coordinate{}, true},  // short date
		{"20251340.1", Coordinate{}, true}, // impossible date
		{"20250310.0", Coordinate{}, true}, // sequence below 1
		{"20250310.-3", Coordinate{}, true},
		{"20250310.x", Coordinate{}, true},
		{"", Coordinate{}, true},
	}
	for _, tt := range tests {
		got, err := ParseCoordinate(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCoordinate(%q): expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCoordinate(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCoordinate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCoordinateStringRoundTrip(t *testing.T) {
	c := Coordinate{Date: "20250310", Seq: 7}
	parsed, err := ParseCoordinate(c.String())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if parsed != c {
		t.Fatalf("round trip: got %v, want %v", parsed, c)
	}
}

func TestCoordinateOrdering(t *testing.T) {
	tests := []struct {
		a, b Coordinate
		want int
	}{
		{Coordinate{"20250310", 1}, Coordinate{"20250310", 1}, 0},
		{Coordinate{"20250310", 1}, Coordinate{"20250310", 2}, -1},
		{Coordinate{"20250310", 9}, Coordinate{"20250310", 2}, 1},
		// Date wins over sequence.
		{Coordinate{"20250309", 99}, Coordinate{"20250310", 1}, -1},
		{Coordinate{"20250401", 1}, Coordinate{"20250331", 50}, 1},
	}
	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%v.Compare(%v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := tt.a.Before(tt.b); got != (tt.want < 0) {
			t.Errorf("%v.Before(%v) = %v", tt.a, tt.b, got)
		}
		if got := tt.a.After(tt.b); got != (tt.want > 0) {
			t.Errorf("%v.After(%v) = %v", tt.a, tt.b, got)
		}
	}
}

func TestNewCoordinateUsesLocalDate(t *testing.T) {
	at := time.Date(2025, 3, 10, 23, 30, 0, 0, time.Local)
	c := NewCoordinate(at, 3)
	if c.Date != "20250310" || c.Seq != 3 {
		t.Fatalf("NewCoordinate = %v", c)
	}
}

func TestCoordinateIsZero(t *testing.T) {
	if !(Coordinate{}).IsZero() {
		t.Error("zero coordinate should report IsZero")
	}
	if (Coordinate{Date: "20250310", Seq: 1}).IsZero() {
		t.Error("set coordinate should not report IsZero")
	}
}
