package service

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultLockStripes is the number of key lock stripes used when none is configured
const DefaultLockStripes = 256

// keyLocks is a fixed set of RW locks striped by key hash.
// Resolve misses hold a stripe's read lock while loading and populating;
// mutations hold the write lock while invalidating and writing the store.
type keyLocks struct {
	stripes []sync.RWMutex
}

func newKeyLocks(n int) *keyLocks {
	if n <= 0 {
		n = DefaultLockStripes
	}
	return &keyLocks{stripes: make([]sync.RWMutex, n)}
}

func (l *keyLocks) index(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(l.stripes)))
}

// reader returns the stripe lock for key
func (l *keyLocks) reader(key string) *sync.RWMutex {
	return &l.stripes[l.index(key)]
}

// lock write-locks every stripe covering keys, in ascending stripe order,
// and returns the matching unlock
func (l *keyLocks) lock(keys ...string) func() {
	seen := make(map[int]struct{}, len(keys))
	indexes := make([]int, 0, len(keys))
	for _, key := range keys {
		i := l.index(key)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	for _, i := range indexes {
		l.stripes[i].Lock()
	}
	return func() {
		for j := len(indexes) - 1; j >= 0; j-- {
			l.stripes[indexes[j]].Unlock()
		}
	}
}

// lockAll write-locks every stripe
func (l *keyLocks) lockAll() func() {
	for i := range l.stripes {
		l.stripes[i].Lock()
	}
	return func() {
		for i := len(l.stripes) - 1; i >= 0; i-- {
			l.stripes[i].Unlock()
		}
	}
}
