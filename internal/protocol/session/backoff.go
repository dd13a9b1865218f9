package session

import (
	"math"
	"math/rand"
	"time"
)

// Delay is the wait before reconnect attempt n (1-based). The first attempt
// waits InitialDelay exactly; later attempts grow by Multiplier up to
// MaxDelay, and with Jitter land in [0.5, 1.5) of that value, still capped.
func (c BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || c.InitialDelay <= 0 {
		return max(c.InitialDelay, 0)
	}
	growth := math.Max(c.Multiplier, 1)
	nominal := float64(c.InitialDelay) * math.Pow(growth, float64(attempt-1))
	ceiling := math.Inf(1)
	if c.MaxDelay > 0 {
		ceiling = float64(c.MaxDelay)
	}
	nominal = math.Min(nominal, ceiling)
	if c.Jitter && rng != nil {
		nominal = math.Min(nominal*(0.5+rng.Float64()), ceiling)
	}
	return time.Duration(nominal)
}

// NextBackoffDelay is cfg.Delay(attempt, rng).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	return cfg.Delay(attempt, rng)
}
