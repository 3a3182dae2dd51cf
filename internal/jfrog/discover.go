package jfrog

import (
	"context"
	"log/slog"
	"time"

	"github.com/buildforge/wincore/internal/build"
)

// stepCap bounds the exponential probe doubling to keep worst-case discovery
// latency predictable on branches with very high sequence numbers.
const stepCap = 1024

// LatestFor discovers the greatest build coordinate that exists for the
// tuple. Discovery starts at today's local date and walks back up to the
// lookback window; within a date it probes sequences exponentially from the
// hint, then binary-searches between the last hit and the first miss.
// Returns nil when the branch has no build inside the window.
func (c *Client) LatestFor(ctx context.Context, comp build.Component, branch string, hint *build.Coordinate) (*build.Coordinate, error) {
	today := c.clock.Now()

	for offset := 0; offset < c.lookbackDays; offset++ {
		date := today.AddDate(0, 0, -offset).Format(build.DateLayout)

		start := 1
		if hint != nil && hint.Date == date {
			start = hint.Seq + 1
		}

		best, err := c.latestInDate(ctx, comp, branch, date, start)
		if err != nil {
			return nil, err
		}
		if best > 0 {
			return &build.Coordinate{Date: date, Seq: best}, nil
		}
		// start > 1 and the first probe missed: the hint itself is still the
		// newest build on its date.
		if start > 1 {
			coord := *hint
			return &coord, nil
		}
	}

	c.log.Debug("no build found within lookback window",
		slog.String("component", comp.Name),
		slog.String("branch", branch),
		slog.Int("lookback_days", c.lookbackDays))
	return nil, nil
}

// latestInDate returns the largest existing sequence for the date, or 0 when
// the starting sequence does not exist.
func (c *Client) latestInDate(ctx context.Context, comp build.Component, branch, date string, start int) (int, error) {
	exists, err := c.probe(ctx, comp, branch, date, start)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	// Exponential climb: 1, 2, 4, ... capped, until a probe misses.
	lastHit := start
	step := 1
	next := start + step
	for {
		exists, err := c.probe(ctx, comp, branch, date, next)
		if err != nil {
			return 0, err
		}
		if !exists {
			break
		}
		lastHit = next
		if step < stepCap {
			step *= 2
		}
		next += step
	}

	// Binary search in (lastHit, next) for the largest existing sequence.
	lo, hi := lastHit, next
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		exists, err := c.probe(ctx, comp, branch, date, mid)
		if err != nil {
			return 0, err
		}
		if exists {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}

func (c *Client) probe(ctx context.Context, comp build.Component, branch, date string, seq int) (bool, error) {
	url, err := c.BuildURL(comp, branch, build.Coordinate{Date: date, Seq: seq})
	if err != nil {
		return false, err
	}
	started := time.Now()
	exists, err := c.Exists(ctx, url)
	if err != nil {
		return false, err
	}
	c.log.Debug("probe",
		slog.String("url", url),
		slog.Bool("exists", exists),
		slog.Duration("took", time.Since(started)))
	return exists, nil
}
