package store

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

var errMissingHash = eris.New("store: rating has no url hash")

func errInvalidScore(score int) error {
	return eris.Errorf("store: rating score %d out of range", score)
}

func newID() string {
	return uuid.New().String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// utcNow is truncated to microseconds so timestamps round-trip through
// Postgres unchanged.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
