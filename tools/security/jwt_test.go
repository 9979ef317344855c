package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))

	token, exp, err := Generate(opts, "user-1", []string{"chat"})
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	sub, err := Verify(opts, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := Generate(DefaultOptions([]byte("secret-a")), "user-1", nil)
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("secret-b")), token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	// TTL<=0 会被 Generate 归一为默认值，给个立刻过期的正值
	opts.TTL = time.Nanosecond
	token, _, err := Generate(opts, "user-1", nil)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = Verify(opts, token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := Verify(DefaultOptions([]byte("test-secret")), "not.a.token")
	assert.Error(t, err)
}

func TestUnsupportedAlgRejected(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	opts.Alg = "RS256"
	_, _, err := Generate(opts, "user-1", nil)
	assert.Error(t, err)
}
