package pipeline

import (
	"context"
	"sync"
)

// Locker serializes work per session key. Different keys never block each
// other; waiters on the same key queue on a one-slot semaphore.
type Locker struct {
	mu      sync.Mutex
	records map[string]*record
}

// record is the processing record of one session: the slot plus the number of
// tasks holding or waiting for it.
type record struct {
	slot chan struct{}
	refs int
}

// NewLocker returns an empty Locker.
func NewLocker() *Locker {
	return &Locker{records: make(map[string]*record)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the slot and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	rec, ok := l.records[key]
	if !ok {
		rec = &record{slot: make(chan struct{}, 1)}
		l.records[key] = rec
	}
	rec.refs++
	l.mu.Unlock()

	select {
	case rec.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(key, rec)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-rec.slot
			l.release(key, rec)
		})
	}, nil
}

func (l *Locker) release(key string, rec *record) {
	l.mu.Lock()
	rec.refs--
	if rec.refs == 0 {
		delete(l.records, key)
	}
	l.mu.Unlock()
}

// InFlight reports whether a task currently holds key.
func (l *Locker) InFlight(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	return ok && len(rec.slot) == 1
}

// Pending returns how many tasks hold or wait for key.
func (l *Locker) Pending(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[key]; ok {
		return rec.refs
	}
	return 0
}

// Sessions returns the number of keys with at least one task.
func (l *Locker) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
