package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBackoffPolicy_Delay verifies each curve, including the cap.
func TestBackoffPolicy_Delay(t *testing.T) {
	tests := []struct {
		name    string
		policy  BackoffPolicy
		attempt int
		want    time.Duration
	}{
		{"fixed always base", BackoffPolicy{Kind: BackoffFixed, Base: 5 * time.Second}, 4, 5 * time.Second},
		{"exponential first attempt", BackoffPolicy{Kind: BackoffExponential, Base: 2 * time.Second}, 1, 2 * time.Second},
		{"exponential doubles", BackoffPolicy{Kind: BackoffExponential, Base: 2 * time.Second}, 3, 8 * time.Second},
		{"exponential capped", BackoffPolicy{Kind: BackoffExponential, Base: 10 * time.Second, Cap: time.Minute}, 10, time.Minute},
		{"linear scales with attempt", BackoffPolicy{Kind: BackoffLinear, Base: 30 * time.Second}, 3, 90 * time.Second},
		{"linear capped", BackoffPolicy{Kind: BackoffLinear, Base: 30 * time.Second, Cap: time.Minute}, 5, time.Minute},
		{"attempt below one clamps", BackoffPolicy{Kind: BackoffLinear, Base: time.Second}, 0, time.Second},
		{"custom falls back to exponential", BackoffPolicy{Kind: BackoffCustom, Name: "x", Base: time.Second}, 3, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

// TestBackoffPolicy_DelayNonDecreasing verifies exponential and linear
// curves never shrink between consecutive attempts.
func TestBackoffPolicy_DelayNonDecreasing(t *testing.T) {
	policies := []BackoffPolicy{
		{Kind: BackoffExponential, Base: time.Second, Cap: time.Minute},
		{Kind: BackoffLinear, Base: time.Second, Cap: time.Minute},
		{Kind: BackoffFixed, Base: time.Second},
	}

	for _, policy := range policies {
		prev := time.Duration(0)
		for attempt := 1; attempt <= 20; attempt++ {
			delay := policy.Delay(attempt)
			assert.GreaterOrEqual(t, delay, prev, "kind %s attempt %d", policy.Kind, attempt)
			prev = delay
		}
	}
}

// TestBackoffPolicy_Validate verifies the per-kind validation rules.
func TestBackoffPolicy_Validate(t *testing.T) {
	assert.NoError(t, BackoffPolicy{Kind: BackoffFixed, Base: time.Second}.Validate())
	assert.NoError(t, BackoffPolicy{Kind: BackoffCustom, Name: "slow-provider"}.Validate())
	assert.NoError(t, BackoffPolicy{}.Validate())

	require.Error(t, BackoffPolicy{Kind: BackoffCustom}.Validate(), "custom needs a name")
	require.Error(t, BackoffPolicy{Kind: "quadratic"}.Validate())
	require.Error(t, BackoffPolicy{Kind: BackoffFixed, Base: -time.Second}.Validate())
}
