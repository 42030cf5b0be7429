package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("invalid persona")))

	assert.True(t, IsTransient(NewTransientError(errors.New("429"), 429)))
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", NewTransientError(errors.New("503"), 503))))
	assert.True(t, IsTransient(syscall.ECONNRESET))
	assert.True(t, IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(errors.New("lookup acme.example: no such host")))
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("too many requests")
	te := NewTransientError(inner, 429)

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "too many requests", te.Error())
	assert.Equal(t, 429, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
