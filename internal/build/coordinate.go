package build

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for build dates (local wall-clock date).
const DateLayout = "20060102"

// Coordinate identifies a build within a branch: a YYYYMMDD date plus a
// positive sequence number. Ordering is lexicographic on date, then numeric
// on sequence.
type Coordinate struct {
	Date string
	Seq  int
}

// NewCoordinate builds a coordinate from a time and sequence number.
func NewCoordinate(t time.Time, seq int) Coordinate {
	return Coordinate{Date: t.Format(DateLayout), Seq: seq}
}

// ParseCoordinate parses the "YYYYMMDD.seq" form produced by String.
func ParseCoordinate(s string) (Coordinate, error) {
	date, seqStr, ok := strings.Cut(s, ".")
	if !ok {
		return Coordinate{}, fmt.Errorf("invalid build coordinate %q", s)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Coordinate{}, fmt.Errorf("invalid build date in %q: %w", s, err)
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil || seq < 1 {
		return Coordinate{}, fmt.Errorf("invalid build sequence in %q", s)
	}
	return Coordinate{Date: date, Seq: seq}, nil
}

// IsZero reports whether the coordinate is unset.
func (c Coordinate) IsZero() bool {
	return c.Date == "" && c.Seq == 0
}

// String returns the "YYYYMMDD.seq" form, which is also the per-build
// directory name in the on-disk layout.
func (c Coordinate) String() string {
	return fmt.Sprintf("%s.%d", c.Date, c.Seq)
}

// Compare returns -1, 0 or 1 ordering by date first, then sequence.
func (c Coordinate) Compare(other Coordinate) int {
	if c.Date != other.Date {
		if c.Date < other.Date {
			return -1
		}
		return 1
	}
	switch {
	case c.Seq < other.Seq:
		return -1
	case c.Seq > other.Seq:
		return 1
	}
	return 0
}

// Before reports whether c orders strictly before other.
func (c Coordinate) Before(other Coordinate) bool {
	return c.Compare(other) < 0
}

// After reports whether c orders strictly after other.
func (c Coordinate) After(other Coordinate) bool {
	return c.Compare(other) > 0
}
