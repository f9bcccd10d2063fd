// Package tracksync associates photo capture times with track points.
package tracksync

import (
	"time"

	"github.com/phototrack/phototrack/internal/model"
)

// DefaultTolerance is the maximum photo/track time difference accepted
// as a match.
const DefaultTolerance = time.Hour

// Match is the outcome of pairing a photo timestamp with a track.
type Match struct {
	Point model.TrackPoint
	Delta time.Duration
}

// Closest finds the track point whose timestamp is nearest to t. The
// scan is linear and the first point achieving the minimum delta wins,
// so the result is stable with respect to input order. When the minimum
// delta exceeds tol (or the list is empty) ok is false; the delta is
// still returned so callers can log why the photo was skipped.
func Closest(t time.Time, points []model.TrackPoint, tol time.Duration) (m Match, ok bool) {
	if len(points) == 0 {
		return Match{}, false
	}

	best := 0
	bestDelta := absDuration(t.Sub(points[0].Time))
	for i := 1; i < len(points); i++ {
		if d := absDuration(t.Sub(points[i].Time)); d < bestDelta {
			best = i
			bestDelta = d
		}
	}

	m = Match{Point: points[best], Delta: bestDelta}
	if bestDelta > tol {
		return m, false
	}
	return m, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
