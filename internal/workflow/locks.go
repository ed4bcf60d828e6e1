package workflow

import (
	"sync"

	id "cdigit/pkg/domain"
)

// voucherLocks serializes approval processing per voucher. Entries are
// reference counted and removed once no caller holds or waits on them.
type voucherLocks struct {
	mu    sync.Mutex
	locks map[id.VoucherID]*voucherLock
}

type voucherLock struct {
	mu   sync.Mutex
	refs int
}

func newVoucherLocks() *voucherLocks {
	return &voucherLocks{locks: make(map[id.VoucherID]*voucherLock)}
}

// lock blocks until the caller owns voucherID and returns the unlock func.
func (l *voucherLocks) lock(voucherID id.VoucherID) func() {
	l.mu.Lock()
	entry, ok := l.locks[voucherID]
	if !ok {
		entry = &voucherLock{}
		l.locks[voucherID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, voucherID)
		}
		l.mu.Unlock()
	}
}

func (l *voucherLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
