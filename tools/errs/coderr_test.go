package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDetailCopies(t *testing.T) {
	e := ErrTokenInvalid.WithDetail("bad signature")
	assert.Equal(t, ErrTokenInvalid.Code, e.Code)
	assert.Equal(t, "bad signature", e.Detail)
	// 预定义错误不被污染
	assert.Empty(t, ErrTokenInvalid.Detail)

	e2 := e.WithDetail("again")
	assert.Equal(t, "bad signature, again", e2.Detail)
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrRateLimited.WithDetail("key k"))
	assert.True(t, errors.Is(wrapped, ErrRateLimited))
	assert.False(t, errors.Is(wrapped, ErrTokenInvalid))
}

func TestAsCodeError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrRecordNotFound)
	ce := AsCodeError(wrapped)
	assert.NotNil(t, ce)
	assert.Equal(t, ErrRecordNotFound.Code, ce.Code)

	assert.Nil(t, AsCodeError(errors.New("plain")))
}
