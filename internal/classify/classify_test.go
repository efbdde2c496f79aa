package classify

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	err := New(KindPermissionDenied, "channel \"random\" is not in the allowlist")
	assert.Equal(t, "permission_denied: channel \"random\" is not in the allowlist", err.Error())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "unknown", Kind(999).String())
}

func TestWrapPreservesInnerKind(t *testing.T) {
	inner := New(KindSyntax, "line 1:8: mismatched input")
	outer := Wrap(KindUnknown, "execute query", inner)

	assert.Equal(t, KindSyntax, outer.Kind)
	assert.Equal(t, "execute query: line 1:8: mismatched input", outer.Message)
	assert.False(t, outer.Retryable)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Wrap(KindUnavailable, "poll status", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable)
	// the raw cause must not leak into the rendered message
	assert.NotContains(t, err.Error(), "connection reset")
}

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindTimeout, "deadline elapsed"))
	assert.ErrorIs(t, err, &Error{Kind: KindTimeout})
	assert.NotErrorIs(t, err, &Error{Kind: KindCancelled})
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindUnavailable, true},
		{KindExhausted, true},
		{KindTimeout, true},
		{KindSyntax, false},
		{KindPermissionDenied, false},
		{KindConfiguration, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(New(tt.kind, "x")))
		})
	}
	assert.False(t, Retryable(errors.New("unclassified")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(New(KindNotFound, "no such table")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}
