package job

import (
	"fmt"
	"time"
)

// BackoffKind selects the delay curve between retry attempts.
type BackoffKind string

// Backoff kind constants.
const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
	BackoffLinear      BackoffKind = "linear"
	// BackoffCustom delegates to a function registered with the worker pool.
	// The function is resolved by name at dispatch time; it is never stored
	// in the job record or config as executable code.
	BackoffCustom BackoffKind = "custom"
)

// BackoffPolicy is a tagged variant describing the delay before the next
// attempt of a failed job. The zero value means "no delay".
type BackoffPolicy struct {
	Kind BackoffKind   `json:"kind"           yaml:"kind"           mapstructure:"kind"`
	Base time.Duration `json:"base"           yaml:"base"           mapstructure:"base"`
	Cap  time.Duration `json:"cap,omitempty"  yaml:"cap,omitempty"  mapstructure:"cap"`
	// Name selects a registered custom function when Kind is "custom".
	Name string `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
}

// CustomBackoffFunc maps a retry attempt number (1-based) to a delay.
type CustomBackoffFunc func(attempt int) time.Duration

// Validate checks the policy's invariants.
func (p BackoffPolicy) Validate() error {
	switch p.Kind {
	case "", BackoffFixed, BackoffExponential, BackoffLinear:
		if p.Base < 0 {
			return fmt.Errorf("backoff base cannot be negative")
		}
		if p.Cap < 0 {
			return fmt.Errorf("backoff cap cannot be negative")
		}
		return nil
	case BackoffCustom:
		if p.Name == "" {
			return fmt.Errorf("custom backoff requires a name")
		}
		return nil
	default:
		return fmt.Errorf("invalid backoff kind: %s", p.Kind)
	}
}

// Delay computes the delay before the given attempt (1-based). Custom
// policies are resolved by the caller via the registered function; Delay
// falls back to exponential for them so an unregistered name still backs
// off sanely.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration
	switch p.Kind {
	case BackoffLinear:
		delay = time.Duration(attempt) * p.Base
	case BackoffFixed:
		delay = p.Base
	case BackoffExponential, BackoffCustom, "":
		delay = p.Base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if p.Cap > 0 && delay >= p.Cap {
				delay = p.Cap
				break
			}
		}
	}

	if p.Cap > 0 && delay > p.Cap {
		delay = p.Cap
	}
	return delay
}
