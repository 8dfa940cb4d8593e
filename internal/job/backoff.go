package job

import (
	"math"
	"math/rand"
	"time"
)

// DefaultBackoffBase is the exponent base used when a job does not supply
// its own backoff.
const DefaultBackoffBase = 2.0

// MaxBackoff caps the exponential curve so a long-retrying job still gets a
// chance every few minutes.
const MaxBackoff = 5 * time.Minute

// Exponential computes the delay before the next attempt: base^attempt
// seconds plus up to one second of jitter, capped at max.
func Exponential(base float64, attempt int, max time.Duration) time.Duration {
	if base <= 1 {
		base = DefaultBackoffBase
	}
	if max <= 0 {
		max = MaxBackoff
	}

	d := time.Duration(math.Pow(base, float64(attempt)) * float64(time.Second))
	if d > max || d < 0 {
		d = max
	}
	return d + time.Duration(rand.Int63n(int64(time.Second)))
}
