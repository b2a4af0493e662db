package modbus

import "sync"

// LinkLocks serialises transactions per physical link. A serial bus can
// only carry one request/response exchange at a time, so every transaction
// on a link key holds that key's mutex from connect to close.
type LinkLocks struct {
	mu    sync.Mutex
	links map[string]*sync.Mutex
}

// NewLinkLocks creates an empty lock table.
func NewLinkLocks() *LinkLocks {
	return &LinkLocks{links: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its release function.
func (l *LinkLocks) Lock(key string) func() {
	l.mu.Lock()
	m, ok := l.links[key]
	if !ok {
		m = &sync.Mutex{}
		l.links[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Len returns the number of links seen so far.
func (l *LinkLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.links)
}
