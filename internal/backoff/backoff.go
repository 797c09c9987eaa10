package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns the wait before the next attempt according to policy.
// attempt is expected to be >= 0.
func Delay(policy string, base, max time.Duration, attempt int, rng *rand.Rand) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	switch policy {
	case "fixed":
		return minDur(base, max)
	case "linear":
		n := attempt
		if n < 1 {
			n = 1
		}
		return minDur(base*time.Duration(n), max)
	case "exponential":
		return minDur(scale(base, attempt), max)
	case "exp_equal_jitter":
		d := minDur(scale(base, attempt), max)
		half := d / 2
		return half + time.Duration(rng.Int63n(int64(half)+1))
	default: // exp_full_jitter
		d := minDur(scale(base, attempt), max)
		if d <= 0 {
			return 0
		}
		return time.Duration(rng.Int63n(int64(d) + 1))
	}
}

func scale(base time.Duration, attempt int) time.Duration {
	f := float64(base) * math.Pow(2, float64(attempt))
	if f > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f)
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
