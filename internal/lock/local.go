package lock

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	sem  chan struct{}
	refs int
}

// LocalLocker holds keys in process memory. It serializes a single
// instance only.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	wait    time.Duration
}

// NewLocalLocker creates a locker that gives up after wait.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		entries: make(map[string]*localEntry),
		wait:    wait,
	}
}

func (l *LocalLocker) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(ctx context.Context, keys ...string) (Release, error) {
	keys = normalize(keys)
	waitCtx, cancel := withWait(ctx, l.wait)
	defer cancel()

	type holding struct {
		key   string
		entry *localEntry
	}
	held := make([]holding, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].entry.sem
			l.unref(held[i].key)
		}
		held = held[:0]
	}

	for _, key := range keys {
		e := l.ref(key)
		select {
		case e.sem <- struct{}{}:
			held = append(held, holding{key: key, entry: e})
		case <-waitCtx.Done():
			l.unref(key)
			release()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrNotAcquired
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
