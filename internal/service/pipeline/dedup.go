package pipeline

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedup remembers recently seen message ids. The platform re-delivers an
// event when the webhook is slow to acknowledge; those copies are dropped.
type Dedup struct {
	mu     sync.Mutex
	seen   *lru.Cache[string, time.Time]
	window time.Duration
}

// NewDedup keeps up to size ids for window. A non-positive size disables it.
func NewDedup(size int, window time.Duration) (*Dedup, error) {
	if size <= 0 {
		return nil, nil
	}
	cache, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &Dedup{seen: cache, window: window}, nil
}

// Seen records id at now and reports whether it was already recorded within
// the window. Blank ids are never considered duplicates.
func (d *Dedup) Seen(id string, now time.Time) bool {
	if d == nil || id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if at, ok := d.seen.Get(id); ok && (d.window <= 0 || now.Sub(at) < d.window) {
		return true
	}
	d.seen.Add(id, now)
	return false
}
