package manager

import (
	"slices"
	"sync"
)

// tableLocks serializes writers per table. Writers to different tables
// and readers never wait on each other.
type tableLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTableLocks() *tableLocks {
	return &tableLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the write locks of tables in sorted order, so that two
// writers sharing several tables cannot deadlock. It returns the function
// releasing them.
func (l *tableLocks) Lock(tables ...string) func() {
	if len(tables) == 0 {
		return func() {}
	}
	names := slices.Compact(slices.Sorted(slices.Values(tables)))
	held := make([]*sync.Mutex, len(names))
	for i, name := range names {
		held[i] = l.get(name)
		held[i].Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (l *tableLocks) get(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}
