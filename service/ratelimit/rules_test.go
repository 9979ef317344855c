package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleSetLongestPrefixWins(t *testing.T) {
	rs := NewRuleSet(
		Rule{Window: time.Minute, Max: 60},
		[]Rule{
			{Prefix: "/api/", Window: time.Minute, Max: 30},
			{Prefix: "/api/rooms/", Window: time.Minute, Max: 10},
		},
		nil,
	)

	r, limited := rs.Match("/api/rooms/general/messages")
	require.True(t, limited)
	assert.Equal(t, 10, r.Max)

	r, limited = rs.Match("/api/notifications/unread")
	require.True(t, limited)
	assert.Equal(t, 30, r.Max)

	r, limited = rs.Match("/ws/general")
	require.True(t, limited)
	assert.Equal(t, 60, r.Max, "unmatched path falls back to default rule")
}

func TestRuleSetAllowList(t *testing.T) {
	rs := NewRuleSet(
		Rule{Window: time.Minute, Max: 60},
		nil,
		[]string{"/health", "/static/"},
	)

	_, limited := rs.Match("/health")
	assert.False(t, limited)
	_, limited = rs.Match("/static/app.js")
	assert.False(t, limited)
	_, limited = rs.Match("/api/rooms")
	assert.True(t, limited)
}

func TestRuleNormDefaults(t *testing.T) {
	r := Rule{WindowSec: 30, Max: 5}
	r.norm()
	assert.Equal(t, 30*time.Second, r.Window)

	r = Rule{}
	r.norm()
	assert.Equal(t, time.Minute, r.Window)
	assert.Equal(t, 60, r.Max)
}
