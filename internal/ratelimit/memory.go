package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps request logs in process memory. It suits a single server
// process; use RedisStore when several processes share one limit.
type MemoryStore struct {
	mu        sync.Mutex
	logs      map[string][]time.Time
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]time.Time), now: time.Now}
}

// Allow implements Store.
func (s *MemoryStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= window {
		s.sweep(now, window)
		s.lastSweep = now
	}

	log := prune(s.logs[key], now.Add(-window))
	res := Result{Limit: limit}
	if len(log) >= limit {
		s.logs[key] = log
		res.Reset = log[0].Add(window)
		return res, nil
	}

	log = append(log, now)
	s.logs[key] = log
	res.Allowed = true
	res.Remaining = limit - len(log)
	res.Reset = log[0].Add(window)
	return res, nil
}

// Len returns the number of keys currently tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

// sweep drops keys whose every request has left the window.
func (s *MemoryStore) sweep(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	for key, log := range s.logs {
		if len(log) == 0 || !log[len(log)-1].After(cutoff) {
			delete(s.logs, key)
		}
	}
}

// prune drops timestamps at or before cutoff. log is sorted ascending.
func prune(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}
