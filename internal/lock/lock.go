// Package lock serializes work per key so that a check-then-write sequence
// on a resource or student cannot interleave with another one.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNotAcquired is returned when the keys could not be held within the
// configured wait.
var ErrNotAcquired = errors.New("lock not acquired")

// Release frees every key held by one Acquire call. It is safe to call more
// than once.
type Release func()

// Locker acquires a set of keys atomically with respect to other callers.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (Release, error)
}

// ResourceKey is the key serializing a resource on a date, e.g. seat:5:2025-03-17.
func ResourceKey(kind string, id int64, date string) string {
	return fmt.Sprintf("%s:%d:%s", kind, id, date)
}

// StudentKey is the key serializing a student's bookings and quota row.
func StudentKey(studentID int64) string {
	return fmt.Sprintf("student:%d", studentID)
}

// normalize sorts and dedupes keys. Acquiring in a global order keeps two
// callers with overlapping key sets from deadlocking.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func withWait(ctx context.Context, wait time.Duration) (context.Context, context.CancelFunc) {
	if wait <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, wait)
}
