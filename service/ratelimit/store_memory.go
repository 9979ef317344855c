package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内实现：单机部署与单测用。
// 语义与 RedisStore 一致；互斥锁保证单 key 的 prune+count+insert 原子。
type MemoryStore struct {
	mu       sync.Mutex
	windows  map[string]*memWindow
	stopOnce sync.Once
	stopCh   chan struct{}
}

type memWindow struct {
	stamps   []time.Time
	expireAt time.Time
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		windows: make(map[string]*memWindow),
		stopCh:  make(chan struct{}),
	}
	go s.sweeper()
	return s
}

func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) Take(_ context.Context, key string, now time.Time, window time.Duration, max, burst int) (TakeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil {
		w = &memWindow{}
		s.windows[key] = w
	}

	// prune < now-window
	cut := now.Add(-window)
	dst := w.stamps[:0]
	for _, t := range w.stamps {
		if !t.Before(cut) {
			dst = append(dst, t)
		}
	}
	w.stamps = dst

	if burst > 0 {
		burstCut := now.Add(-BurstWindow)
		bc := 0
		for _, t := range w.stamps {
			if !t.Before(burstCut) {
				bc++
			}
		}
		if bc >= burst {
			return TakeResult{Allowed: false, Count: len(w.stamps), BurstLimited: true}, nil
		}
	}

	c := len(w.stamps)
	if c >= max {
		return TakeResult{Allowed: false, Count: c}, nil
	}

	w.stamps = append(w.stamps, now)
	w.expireAt = now.Add(window + time.Second)
	return TakeResult{Allowed: true, Count: c}, nil
}

func (s *MemoryStore) sweeper() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-t.C:
			s.mu.Lock()
			for k, w := range s.windows {
				if now.After(w.expireAt) {
					delete(s.windows, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
