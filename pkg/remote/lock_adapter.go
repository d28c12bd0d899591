package remote

import (
	"time"

	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// retryBackoff is the short pause before the single bounded retry on lock
// contention (spec §4.5.1: "a single bounded retry with short back-off;
// fail fast otherwise").
const retryBackoff = 100 * time.Millisecond

// LockAdapter narrows a Lock down to the two-method shape
// (Acquire/Release) txn.Coordinator depends on, folding the reclaim
// decision into a single Acquire call: TryAcquire already reclaims a
// stale holder internally, so the coordinator never needs to see the
// distinction between a fresh acquire and a reclaim.
type LockAdapter struct {
	Lock Lock
}

// Acquire implements txn.Lock. On contention it waits retryBackoff and
// retries exactly once before giving up, rather than queuing (spec
// §4.5.1).
func (a LockAdapter) Acquire(operation string) (string, error) {
	token, err := a.Lock.TryAcquire(operation)
	if err == nil {
		return token, nil
	}
	if kind, ok := errkind.KindOf(err); !ok || kind != errkind.LockContended {
		return "", err
	}
	time.Sleep(retryBackoff)
	return a.Lock.TryAcquire(operation)
}

// Release implements txn.Lock.
func (a LockAdapter) Release(token string) error {
	return a.Lock.Release(token)
}
