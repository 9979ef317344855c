package ratelimit

import (
	"context"
	"time"
)

// 滑动窗口限流：一个 key 对应一个按时间戳排序的请求集合。
// Store 负责一次原子的 prune+count+insert；多实例共用一个后端时
// 不允许实例本地缓存计数。

const (
	// Burst 统计固定走最近 60s，与主窗口无关。
	BurstWindow = 60 * time.Second

	defaultStoreTimeout = 2 * time.Second
)

// TakeResult 是一次原子提交的结果。
type TakeResult struct {
	Allowed      bool
	Count        int  // 主窗口内（不含本次）的请求数
	BurstLimited bool // 因 burst 命中而拒绝
}

// Store is the shared ordered backing store for the sliding window.
// Take must be atomic per key: prune entries older than now-window,
// evaluate burst (trailing 60s) before the main window, and only then
// insert the new timestamp with the key expiry refreshed to window+1s.
type Store interface {
	Take(ctx context.Context, key string, now time.Time, window time.Duration, max, burst int) (TakeResult, error)
}

// Decision 对外返回的判定结果。
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int // seconds; 0 when allowed
	Reset      int // seconds until the fixed window boundary
	Window     int // seconds
}

type Limiter struct {
	store   Store
	clock   func() time.Time
	timeout time.Duration
}

type Option func(*Limiter)

// WithClock 注入时钟（单测用）。
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) { l.clock = clock }
}

// WithStoreTimeout bounds every backing-store round trip.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.timeout = d }
}

func NewLimiter(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		clock:   time.Now,
		timeout: defaultStoreTimeout,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow 判定 key 的一次请求。burst<=0 表示不启用突发限制。
// Store 出错时返回 err，由调用方决定 fail-open 还是 fail-closed。
func (l *Limiter) Allow(ctx context.Context, key string, window time.Duration, max, burst int) (Decision, error) {
	now := l.clock()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.store.Take(ctx, key, now, window, max, burst)
	if err != nil {
		return Decision{}, err
	}

	winSec := int(window / time.Second)
	if winSec < 1 {
		// 次秒窗口按 1s 对齐，模运算不能除零
		winSec = 1
	}
	d := Decision{
		Allowed: res.Allowed,
		Limit:   max,
		Window:  winSec,
	}

	// Reset 按固定纪元对齐的窗口边界计算，不按最老条目推算。
	mainReset := winSec - int(now.Unix()%int64(winSec))
	burstReset := 60 - int(now.Unix()%60)

	switch {
	case res.Allowed:
		d.Remaining = max - res.Count - 1
		if d.Remaining < 0 {
			d.Remaining = 0
		}
		d.Reset = mainReset
	case res.BurstLimited:
		d.Remaining = 0
		d.Reset = burstReset
		d.RetryAfter = burstReset
	default:
		d.Remaining = 0
		d.Reset = mainReset
		d.RetryAfter = mainReset
	}
	return d, nil
}
