package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, 404, NewFunctionNotFound("hi").HTTPStatus())
	assert.Equal(t, 401, NewAPIKeyRequired().HTTPStatus())
	assert.Equal(t, 504, NewTimeout(500).HTTPStatus())
	assert.Equal(t, 502, NewPolicyDenied("allowlist").HTTPStatus())
}

func TestOfKindUnwrapsWrapped(t *testing.T) {
	base := NewReadOnlyFilesystem("/tmp/x")
	wrapped := errors.New("boom")
	err := Wrap(ReadOnlyFilesystem, base.Message, wrapped)

	assert.True(t, OfKind(err, ReadOnlyFilesystem))
	assert.False(t, OfKind(err, Timeout))
}

func TestWithDetailsMerges(t *testing.T) {
	e := New(PolicyDenied, "denied").WithDetails(map[string]any{"a": 1})
	e2 := e.WithDetails(map[string]any{"b": 2})

	assert.Equal(t, 1, e2.Details["a"])
	assert.Equal(t, 2, e2.Details["b"])
	// original unaffected
	_, hasB := e.Details["b"]
	assert.False(t, hasB)
}

func TestIsComparesKindOnly(t *testing.T) {
	err := NewTimeout(30000)
	assert.True(t, errors.Is(err, New(Timeout, "")))
	assert.False(t, errors.Is(err, New(UserError, "")))
}
