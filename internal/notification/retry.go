package notification

import (
	"time"

	"notify-delivery-backend/config"
)

// RetryPolicy bounds the local retries of one delivery.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// SendTimeout caps a single gateway call. Zero means no limit.
	SendTimeout time.Duration
}

// DefaultRetryPolicy allows three attempts of at most 30s each, waiting 3s
// then 9s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 3 * time.Second,
		MaxDelay:     15 * time.Second,
		Multiplier:   3,
		SendTimeout:  30 * time.Second,
	}
}

// RetryPolicyFromConfig builds the policy from the delivery settings.
func RetryPolicyFromConfig(cfg config.DeliveryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialBackoff,
		MaxDelay:     cfg.MaxBackoff,
		Multiplier:   cfg.BackoffMultiplier,
		SendTimeout:  cfg.SendTimeout,
	}
}

// Delay returns the wait after the given failed attempt (1-based) before the
// next one.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Start returns the backoff state for a delivery that already made the
// given number of attempts.
func (p RetryPolicy) Start(made int) *Backoff {
	return &Backoff{policy: p, made: made}
}

// Backoff is the retry state of one delivery: attempts made so far and the
// delay before the next one.
type Backoff struct {
	policy RetryPolicy
	made   int
}

// Remaining reports whether another attempt is allowed.
func (b *Backoff) Remaining() bool {
	return b.made < b.policy.MaxAttempts
}

// Attempt is the 1-based number of the attempt about to be made.
func (b *Backoff) Attempt() int {
	return b.made + 1
}

// Made is the number of attempts counted so far.
func (b *Backoff) Made() int {
	return b.made
}

// Next counts a failed attempt. It returns the delay before the next attempt
// and false once the attempt budget is spent.
func (b *Backoff) Next() (time.Duration, bool) {
	b.made++
	if !b.Remaining() {
		return 0, false
	}
	return b.policy.Delay(b.made), true
}
