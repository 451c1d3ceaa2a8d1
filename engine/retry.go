package engine

import "time"

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 200 * time.Millisecond
	defaultBackoffFactor  = 2.0
	defaultMaxBackoff     = 30 * time.Second
)

// RetryPolicy bounds how the dispatcher retries a single activity.
// The zero value is normalized to sane defaults.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, including the first try.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64 `yaml:"backoff_factor"`
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// AttemptTimeout bounds a single attempt. Zero means no per-attempt
	// deadline beyond the dispatcher's context.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// NetworkRetryPolicy is the default policy for activities that talk to
// external backends (AI composition, persistence). These get a larger
// budget because transient network failure is expected.
func NetworkRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		BackoffFactor:  2.0,
		MaxBackoff:     30 * time.Second,
		AttemptTimeout: time.Minute,
	}
}

// ComputeRetryPolicy is the default policy for pure computation
// (grocery consolidation, validation). A second attempt only covers the
// rare case of resource pressure; computation failures are usually
// deterministic.
func ComputeRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    2,
		InitialBackoff: 100 * time.Millisecond,
		BackoffFactor:  2.0,
		MaxBackoff:     time.Second,
		AttemptTimeout: 15 * time.Second,
	}
}

// Backoff returns the delay to wait after the given failed attempt
// (1-based). The delay grows exponentially and is capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.BackoffFactor)
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// normalized fills zero fields with defaults.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = defaultBackoffFactor
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}
