package processmanagement

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultRestartBaseDelay          = 1 * time.Second
	DefaultRestartMaxDelay           = 30 * time.Second
	DefaultRestartStabilityThreshold = 60 * time.Second
)

// RestartOptions configures the crash restart backoff
type RestartOptions struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`

	// A run lasting at least this long resets the delay to BaseDelay
	StabilityThreshold time.Duration `yaml:"stability_threshold"`
}

func (o RestartOptions) withDefaults() RestartOptions {
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultRestartBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultRestartMaxDelay
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay
	}
	if o.StabilityThreshold <= 0 {
		o.StabilityThreshold = DefaultRestartStabilityThreshold
	}
	return o
}

// restartBackoff yields base, 2*base, 4*base ... capped at max, with no jitter
// and no elapsed-time limit. It is only touched under the handle's operation lock.
type restartBackoff struct {
	policy  *backoff.ExponentialBackOff
	base    time.Duration
	current time.Duration
}

func newRestartBackoff(options RestartOptions) *restartBackoff {
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     options.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         options.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	policy.Reset()

	return &restartBackoff{
		policy:  policy,
		base:    options.BaseDelay,
		current: options.BaseDelay,
	}
}

// Next returns the delay for the next restart and advances the sequence
func (b *restartBackoff) Next() time.Duration {
	next := b.policy.NextBackOff()
	if next == backoff.Stop {
		// unreachable with MaxElapsedTime disabled
		next = b.policy.MaxInterval
	}
	b.current = next
	return next
}

// Current returns the most recent delay without advancing
func (b *restartBackoff) Current() time.Duration {
	return b.current
}

// Reset restarts the sequence at the base delay
func (b *restartBackoff) Reset() {
	b.policy.Reset()
	b.current = b.base
}
