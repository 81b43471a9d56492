package executor

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	backoffBase   = 5 * time.Second
	backoffMax    = 60 * time.Second
	backoffJitter = 0.1
)

// BackoffDelay computes the retry delay for the given (zero-based) retry
// count: min(MAX_DELAY, BASE*2^retries), jittered by ±JITTER.
func BackoffDelay(retries int) time.Duration {
	raw := float64(backoffBase) * math.Pow(2, float64(retries))
	if raw > float64(backoffMax) {
		raw = float64(backoffMax)
	}
	jitter := 1 + (rand.Float64()*2-1)*backoffJitter
	return time.Duration(raw * jitter)
}
