// Package joblock provides an in-process registry of named exclusive locks.
//
// Callers working on the same key serialize; callers on different keys never
// contend. Lock entries are created lazily on first use and live for the
// process lifetime, so the registry grows with the number of distinct keys
// seen, not with lock traffic.
package joblock

import (
	"context"
	"sync"
)

// Registry hands out one exclusive lock per key.
type Registry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]chan struct{})}
}

// Acquire blocks until the lock for key is held or ctx is done. On success
// it returns a release func; calling release more than once is safe and the
// extra calls do nothing.
func (r *Registry) Acquire(ctx context.Context, key string) (func(), error) {
	ch := r.lockChan(key)

	select {
	case ch <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() { <-ch })
		}
		return release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the number of keys the registry has seen.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

func (r *Registry) lockChan(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[key] = ch
	}
	return ch
}
