package ledger

import "sync"

// AccountLocks hands out one RWMutex per account. Trades take the write
// side, valuations the read side. Callers never hold two account locks at
// once, so lock ordering cannot deadlock.
//
// An entry lives while anyone holds or waits on it and is dropped when
// the last of them releases.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sync.RWMutex
	refs int
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]*accountLock)}
}

func (l *AccountLocks) acquire(accountID string) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[accountID]
	if !ok {
		m = &accountLock{}
		l.locks[accountID] = m
	}
	m.refs++
	return m
}

func (l *AccountLocks) release(accountID string, m *accountLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, accountID)
	}
}

// Lock takes the account's exclusive lock and returns its release func.
func (l *AccountLocks) Lock(accountID string) (unlock func()) {
	m := l.acquire(accountID)
	m.Lock()
	return func() {
		m.Unlock()
		l.release(accountID, m)
	}
}

// RLock takes the account's shared lock and returns its release func.
func (l *AccountLocks) RLock(accountID string) (unlock func()) {
	m := l.acquire(accountID)
	m.RLock()
	return func() {
		m.RUnlock()
		l.release(accountID, m)
	}
}
