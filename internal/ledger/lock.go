package ledger

import (
	"sync"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// KeyedMutex serializes mutations per portfolio inside one process. The
// store's row lock covers other processes.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[models.PortfolioKey]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[models.PortfolioKey]*keyedLock)}
}

// Lock blocks until the portfolio is free and returns its unlock function
func (m *KeyedMutex) Lock(key models.PortfolioKey) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}
