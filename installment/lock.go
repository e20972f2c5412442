package installment

import "sync"

// keyedLocks serializes operations per contract. Entries are dropped when the
// last holder releases them. The zero value is ready to use.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[ContractID]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedLocks) lock(id ContractID) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[ContractID]*keyedLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
