package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines exchange reliability defaults.
type Config struct {
	InterestLifetime  time.Duration
	HolderMaxRetries  int
	LedgerMaxRetries  int
	CheckerMaxRetries int
	NackFreshness     time.Duration
	// Backoff paces transport reconnects, not protocol retries.
	Backoff BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		InterestLifetime:  4 * time.Second,
		HolderMaxRetries:  3,
		LedgerMaxRetries:  6,
		CheckerMaxRetries: 3,
		NackFreshness:     24 * time.Hour,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig. Negative retry bounds
// mean no retries.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.InterestLifetime <= 0 {
		c.InterestLifetime = def.InterestLifetime
	}
	if c.HolderMaxRetries == 0 {
		c.HolderMaxRetries = def.HolderMaxRetries
	}
	if c.LedgerMaxRetries == 0 {
		c.LedgerMaxRetries = def.LedgerMaxRetries
	}
	if c.CheckerMaxRetries == 0 {
		c.CheckerMaxRetries = def.CheckerMaxRetries
	}
	if c.NackFreshness <= 0 {
		c.NackFreshness = def.NackFreshness
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

// RetryCounter bounds retransmissions of one exchange step.
type RetryCounter struct {
	Max   int
	Count int
}

// Next consumes one retry and reports whether it was available.
func (r *RetryCounter) Next() bool {
	if r.Count >= r.Max {
		return false
	}
	r.Count++
	return true
}

// Reset is called after a successful round trip.
func (r *RetryCounter) Reset() { r.Count = 0 }
