package builtin

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxTracked = 10000

// tracker keeps per-source state for the most recently seen sources only,
// so a flood of spoofed addresses cannot grow it without bound.
type tracker[T any] struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *T]
}

func newTracker[T any](size int) *tracker[T] {
	if size <= 0 {
		size = defaultMaxTracked
	}
	cache, err := lru.New[string, *T](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &tracker[T]{cache: cache}
}

// with runs fn on the state for key, creating it on first use.
func (t *tracker[T]) with(key string, fn func(state *T)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.cache.Get(key)
	if !ok {
		state = new(T)
		t.cache.Add(key, state)
	}
	fn(state)
}

func (t *tracker[T]) len() int {
	return t.cache.Len()
}

// timeline is a sliding window of event times capped at limit entries.
type timeline struct {
	times []time.Time
}

// add records ts, drops entries older than window and returns the count.
func (tl *timeline) add(ts time.Time, window time.Duration, limit int) int {
	tl.times = append(tl.times, ts)

	cutoff := ts.Add(-window)
	keep := tl.times[:0]
	for _, t := range tl.times {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	if limit > 0 && len(keep) > limit {
		keep = keep[len(keep)-limit:]
	}
	tl.times = keep
	return len(tl.times)
}

// portSet tracks the last time each destination port was touched.
type portSet struct {
	ports map[int]time.Time
}

func (ps *portSet) add(port int, ts time.Time, window time.Duration) int {
	if ps.ports == nil {
		ps.ports = make(map[int]time.Time)
	}
	ps.ports[port] = ts

	cutoff := ts.Add(-window)
	for p, seen := range ps.ports {
		if !seen.After(cutoff) {
			delete(ps.ports, p)
		}
	}
	return len(ps.ports)
}

func eventTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}
