package worker

import (
	"math/rand"
	"time"
)

// backoffDelay returns an exponentially increasing delay with ±25% jitter.
// retry counts from 1; the exponent is capped to prevent overflow before
// the cap clamps the result.
func backoffDelay(retry int, base, max time.Duration) time.Duration {
	shift := retry - 1
	if shift > 20 {
		shift = 20
	}
	d := base * time.Duration(1<<shift)
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d/2)+1)) - d/4
	return d + jitter
}
