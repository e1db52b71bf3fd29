package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"not_found", ErrNotFound, KindNotFound},
		{"wrapped_not_found", fmt.Errorf("load run: %w", ErrNotFound), KindNotFound},
		{"validation", fmt.Errorf("config: %w", ErrValidation), KindValidation},
		{"timeout_sentinel", ErrTimeout, KindTimeout},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"dependency", fmt.Errorf("cloudwatch: %w", ErrDependencyFailure), KindDependencyFailure},
		{"internal", ErrInternal, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKindOf_PriorityOnJoin(t *testing.T) {
	// Cancellation wins over any sentinel when both are present.
	joined := errors.Join(ErrDependencyFailure, context.Canceled)
	assert.Equal(t, KindCanceled, KindOf(joined))

	joined = errors.Join(ErrInternal, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(joined))
}

func TestMarkKind(t *testing.T) {
	base := errors.New("connection refused")

	marked := MarkKind(base, KindDependencyFailure)
	require.Error(t, marked)
	assert.True(t, errors.Is(marked, ErrDependencyFailure))
	assert.True(t, errors.Is(marked, base), "original error must stay in the chain")

	// Idempotent: re-marking with the same kind does not double wrap.
	again := MarkKind(marked, KindDependencyFailure)
	assert.Equal(t, marked, again)

	// Nil error yields the bare sentinel.
	assert.Equal(t, ErrValidation, MarkKind(nil, KindValidation))

	// Unknown and Canceled leave the error untouched.
	assert.Equal(t, base, MarkKind(base, KindUnknown))
	assert.Equal(t, base, MarkKind(base, KindCanceled))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ctx"))

	base := errors.New("boom")
	assert.Equal(t, base, Wrap(base, ""))

	wrapped := Wrap(base, "stage one")
	assert.EqualError(t, wrapped, "stage one: boom")
	assert.True(t, errors.Is(wrapped, base))

	wrapped = Wrapf(base, "step %d", 2)
	assert.EqualError(t, wrapped, "step 2: boom")
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, IsTimeout(nil))
	assert.False(t, IsTimeout(errors.New("boom")))
	assert.True(t, IsTimeout(ErrTimeout))
	assert.True(t, IsTimeout(fmt.Errorf("wait: %w", context.DeadlineExceeded)))
}

func TestHasKind(t *testing.T) {
	assert.True(t, HasKind(fmt.Errorf("x: %w", ErrValidation), KindValidation))
	assert.False(t, HasKind(ErrValidation, KindNotFound))
}
