package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestError_Kinds verifies that each constructor assigns its kind and that
// only transient errors report retryable.
func TestError_Kinds(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		wantKind  Kind
		retryable bool
	}{
		{"validation", NewValidation("bad payload", nil), KindValidation, false},
		{"transient", NewTransient("provider timeout", nil), KindTransient, true},
		{"terminal", NewTerminal("bad credentials", nil), KindTerminal, false},
		{"not found", NewNotFound("entity missing", nil), KindNotFound, false},
		{"configuration", NewConfiguration("no provider", nil), KindConfiguration, false},
		{"stall", NewStall("lease expired"), KindStall, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, tt.err.Kind)
			assert.Equal(t, tt.retryable, tt.err.Retryable())
			assert.Equal(t, tt.wantKind, KindOf(tt.err))
		})
	}
}

// TestError_MessageAndUnwrap verifies formatting and error chain behavior.
func TestError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransient("embedding request failed", cause)

	assert.Equal(t, "embedding request failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := NewValidation("text is empty", nil)
	assert.Equal(t, "text is empty", bare.Error())
	assert.NoError(t, bare.Unwrap())
}

// TestKindOf_UnclassifiedDefaultsToTerminal verifies that an unknown failure
// is never retried blindly.
func TestKindOf_UnclassifiedDefaultsToTerminal(t *testing.T) {
	plain := errors.New("something broke")

	assert.Equal(t, KindTerminal, KindOf(plain))
	assert.False(t, IsRetryable(plain))
}

// TestKindOf_Wrapped verifies that classification survives fmt.Errorf
// wrapping.
func TestKindOf_Wrapped(t *testing.T) {
	inner := NewTransient("rate limited", nil)
	wrapped := fmt.Errorf("handler failed: %w", inner)

	assert.Equal(t, KindTransient, KindOf(wrapped))
	assert.True(t, IsRetryable(wrapped))
}

// TestSentinels verifies the sentinel errors survive wrapping in classified
// errors.
func TestSentinels(t *testing.T) {
	err := NewNotFound("entity 42", ErrEntityNotFound)

	require.ErrorIs(t, err, ErrEntityNotFound)
	assert.NotErrorIs(t, err, ErrVectorMissing)
	assert.Equal(t, KindNotFound, KindOf(err))
}
