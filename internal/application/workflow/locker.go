package workflow

import "sync"

// expenseLocker serialises work on the same expense inside one process
type expenseLocker struct {
	mu    sync.Mutex
	locks map[int64]*expenseLock
}

type expenseLock struct {
	mu   sync.Mutex
	refs int
}

func newExpenseLocker() *expenseLocker {
	return &expenseLocker{locks: make(map[int64]*expenseLock)}
}

// Lock blocks until the expense is free and returns the unlock function
func (l *expenseLocker) Lock(expenseID int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[expenseID]
	if !ok {
		lock = &expenseLock{}
		l.locks[expenseID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, expenseID)
		}
		l.mu.Unlock()
	}
}

// size returns how many expenses currently hold or wait for a lock
func (l *expenseLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
