package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock：手动推进的时钟。
type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock {
	// 对齐到分钟边界，断言 Reset 时不用管纪元偏移
	return &fakeClock{now: time.Unix(1_700_000_040, 0)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(t *testing.T) (*Limiter, *fakeClock) {
	t.Helper()
	store := NewMemoryStore()
	t.Cleanup(store.Close)
	clk := newFakeClock()
	return NewLimiter(store, WithClock(clk.Now)), clk
}

func TestAllowSequence(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "k", time.Minute, 5, 0)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d within limit", i+1)
		assert.Equal(t, 5, d.Limit)
		assert.Equal(t, 4-i, d.Remaining)
		assert.Equal(t, 0, d.RetryAfter)
		assert.Equal(t, 60, d.Window)
	}

	d, err := l.Allow(ctx, "k", time.Minute, 5, 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, 0)
	assert.LessOrEqual(t, d.RetryAfter, 60)
}

func TestWindowSlides(t *testing.T) {
	l, clk := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "k", time.Minute, 3, 0)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "k", time.Minute, 3, 0)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// 旧条目滑出窗口后恢复放行
	clk.Advance(61 * time.Second)
	d, err = l.Allow(ctx, "k", time.Minute, 3, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	d, err := l.Allow(ctx, "a", time.Minute, 1, 0)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = l.Allow(ctx, "a", time.Minute, 1, 0)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = l.Allow(ctx, "b", time.Minute, 1, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "another key keeps its own window")
}

func TestBurstTakesPrecedence(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	// 主窗口远未满（max=100），burst=3 先命中
	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "k", 10*time.Minute, 100, 3)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "k", 10*time.Minute, 100, 3)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	// burst 拒绝的冷却上限是 60s，不是主窗口
	assert.Greater(t, d.RetryAfter, 0)
	assert.LessOrEqual(t, d.RetryAfter, 60)
}

func TestBurstRecoversAfterTrailingWindow(t *testing.T) {
	l, clk := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "k", 10*time.Minute, 100, 3)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "k", 10*time.Minute, 100, 3)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	clk.Advance(61 * time.Second)
	d, err = l.Allow(ctx, "k", 10*time.Minute, 100, 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "burst window is the trailing 60s only")
}

func TestSubSecondWindow(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	// 次秒窗口不是常规配置，但 Allow 是公开入口，不允许崩
	d, err := l.Allow(ctx, "k", 500*time.Millisecond, 1, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Window)
	assert.Equal(t, 1, d.Reset)

	d, err = l.Allow(ctx, "k", 500*time.Millisecond, 1, 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.RetryAfter)
}

func TestRejectedRequestNotCounted(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	// burst 拒绝不占主窗口名额
	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, "k", 10*time.Minute, 3, 0)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "k", 10*time.Minute, 3, 0)
		require.NoError(t, err)
		require.False(t, d.Allowed)
		// 连续拒绝不会把计数越推越高
		assert.Equal(t, 0, d.Remaining)
	}
}
