package ratelimit

import (
	"math"
	"sync"
	"time"
)

// maxIdleKeys bounds memory: past it, buckets that have refilled completely are dropped.
const maxIdleKeys = 10000

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a token bucket per key, all sharing one capacity and refill rate.
type Limiter struct {
	capacity float64
	refill   float64 // tokens per second

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func New(capacity, refillPerSec float64) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		capacity: capacity,
		refill:   refillPerSec,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow takes one token from key's bucket. When it is empty, Allow reports
// how long until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxIdleKeys {
			l.sweep(now)
		}
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[key] = b
	}
	b.tokens = l.level(b, now)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.refill <= 0 {
		return false, time.Duration(math.MaxInt64)
	}
	wait := (1 - b.tokens) / l.refill
	return false, time.Duration(wait * float64(time.Second))
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) level(b *bucket, now time.Time) float64 {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return b.tokens
	}
	return math.Min(l.capacity, b.tokens+elapsed*l.refill)
}

func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if l.level(b, now) >= l.capacity {
			delete(l.buckets, k)
		}
	}
}
