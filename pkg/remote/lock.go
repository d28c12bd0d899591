// Package remote implements the distributed coordination primitives of
// §4.5: a remote lock serializing sync/clone/init operations, plus the
// append-only snapshot log, tag table, and local archive index those
// operations produce. Grounded on the teacher's filesystem.Locker
// (open-file-then-Flock shape), generalized from a local advisory lock to
// a remote lock record with staleness detection, since this system's lock
// must be visible to every client rather than just the process holding an
// open file descriptor.
package remote

import (
	"fmt"
	"os"
	"time"
)

// Record is the on-disk shape of a lock held at the remote (spec §4.5.1).
type Record struct {
	HolderUser string    `json:"holder_user"`
	HolderHost string    `json:"holder_host"`
	PID        int       `json:"pid"`
	Operation  string    `json:"operation"`
	AcquiredAt time.Time `json:"acquired_at"`
	TxID       string    `json:"tx_id"`
}

// id returns a string identifying this record's holder, used to confirm a
// reclaim targeted the expected stale holder.
func (r Record) id() string {
	return fmt.Sprintf("%s@%s:%d:%d", r.HolderUser, r.HolderHost, r.PID, r.AcquiredAt.UnixNano())
}

// Lock is the distributed lock collaborator of §4.5.1. TryAcquire fails
// fast against a live holder; Reclaim is the explicit, narrower operation
// of taking over a confirmed-stale holder's record. Neither method blocks
// on contention itself (LockAdapter layers the single bounded retry on
// top); the overall per-operation wait bound is enforced by the caller via
// context.Context (txn.Coordinator.acquireLock), not by this package.
type Lock interface {
	// TryAcquire attempts to create the lock record for operation,
	// failing immediately (no queuing) if a live holder is present.
	TryAcquire(operation string) (token string, err error)
	// Reclaim attempts to take over a stale holder's record, presenting
	// staleToken as proof the caller already observed it as stale. It
	// fails if a concurrent reclaimer won the race first.
	Reclaim(operation string, staleToken string) (token string, err error)
	// Release gives up the lock identified by token.
	Release(token string) error
}

// staleThreshold is how old an unconfirmed-live lock record must be before
// it is eligible for reclamation (spec §4.5.1: "older than a threshold").
const staleThreshold = 30 * time.Second

func currentHolder(operation, txID string) Record {
	host, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	return Record{
		HolderUser: user,
		HolderHost: host,
		PID:        os.Getpid(),
		Operation:  operation,
		AcquiredAt: time.Now(),
		TxID:       txID,
	}
}

// isStale reports whether r's holder is confirmed dead: its process is not
// running on its own host (checked only when HolderHost matches the local
// host; a lock held from a different host is judged on age alone, since a
// plain file or key-value record carries no way to probe a remote PID) and
// the record is older than staleThreshold.
func isStale(r Record) bool {
	if time.Since(r.AcquiredAt) < staleThreshold {
		return false
	}
	localHost, _ := os.Hostname()
	if r.HolderHost == localHost {
		return !processAlive(r.PID)
	}
	return true
}
