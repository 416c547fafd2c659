package relay

import (
	"math"
	"math/rand"
	"time"
)

func backoff(attempts int, baseDelay, maxBackoff time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	// baseDelay * 2^(attempts-1)
	d := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempts-1)))
	if d > maxBackoff || d < 0 {
		return maxBackoff
	}
	return d
}

func jitter(r *rand.Rand, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	if r == nil {
		return 0
	}
	// [0, maxJitter]
	return time.Duration(r.Int63n(int64(maxJitter) + 1)) //nolint:gosec
}
