package build

import (
	"testing"
	"time"
)

func TestPollingConfigInterval(t *testing.T) {
	def := 300 * time.Second
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, def},                 // unset falls back
		{-10, def},               // nonsense falls back
		{5, 30 * time.Second},    // clamped up
		{30, 30 * time.Second},   // floor is allowed
		{600, 600 * time.Second}, // explicit value wins
	}
	for _, tt := range tests {
		p := PollingConfig{IntervalSeconds: tt.seconds}
		if got := p.Interval(def); got != tt.want {
			t.Errorf("Interval(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestTupleKeyStability(t *testing.T) {
	a := Tuple{Component: Component{ID: 3, Name: "Svc"}, Branch: Branch{ID: 9, Name: "main"}}
	b := Tuple{Component: Component{ID: 3, Name: "Renamed"}, Branch: Branch{ID: 9, Name: "renamed"}}
	if a.Key() != b.Key() {
		t.Fatalf("key must depend on IDs only: %q vs %q", a.Key(), b.Key())
	}
	other := Tuple{Component: Component{ID: 3}, Branch: Branch{ID: 10}}
	if a.Key() == other.Key() {
		t.Fatalf("distinct branches must produce distinct keys")
	}
}
