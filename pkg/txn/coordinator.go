package txn

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/go-events"
	"github.com/dustin/go-humanize"

	"github.com/HRDAG/dsg-sub001/pkg/errkind"
	"github.com/HRDAG/dsg-sub001/pkg/logging"
	"github.com/HRDAG/dsg-sub001/pkg/manifest"
	"github.com/HRDAG/dsg-sub001/pkg/merge"
	"github.com/HRDAG/dsg-sub001/pkg/metrics"
)

// countingReader tallies bytes read through it, so the coordinator can log
// a human-readable transfer total without threading byte counts through
// every collaborator method.
type countingReader struct {
	r     io.Reader
	count *int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	*c.count += int64(n)
	return n, err
}

// defaultTransferInactivityTimeout bounds how long a single Read on a
// transfer's content reader may take before the transfer is considered
// stalled (spec §5: "file transfers have an inactivity timeout
// (caller-configurable); exhaustion triggers rollback").
const defaultTransferInactivityTimeout = 60 * time.Second

// lockTimeout returns the per-operation distributed-lock timeout (spec §5:
// "short for sync ≈10s, longer for clone ≈30s"). Operations other than
// sync (init, clone) move a full tree and get the longer bound.
func lockTimeout(operation string) time.Duration {
	if operation == "sync" {
		return 10 * time.Second
	}
	return 30 * time.Second
}

// inactivityReader wraps a transfer's content reader so that a Read call
// taking longer than timeout fails instead of blocking forever, and so
// that a canceled ctx aborts the in-flight transfer (spec §5: "cancel
// signal causes the current in-flight transfer to abort").
type inactivityReader struct {
	ctx     context.Context
	r       io.Reader
	timeout time.Duration
}

func (r *inactivityReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := r.r.Read(p)
		done <- result{n, err}
	}()
	select {
	case res := <-done:
		return res.n, res.err
	case <-time.After(r.timeout):
		return 0, errkind.New(errkind.Transport, "file transfer inactivity timeout exceeded")
	case <-r.ctx.Done():
		return 0, errkind.Wrap(errkind.Transport, r.ctx.Err(), "transfer canceled")
	}
}

// Coordinator executes a sync plan atomically across a ClientFilesystem, a
// RemoteFilesystem, and a Transport (spec §4.4). It owns no storage of its
// own; all durable state lives with its collaborators.
type Coordinator struct {
	Client    ClientFilesystem
	Remote    RemoteFilesystem
	Transport Transport
	Lock      Lock
	Events    events.Sink
	Logger    *logging.Logger

	// TransferInactivityTimeout overrides defaultTransferInactivityTimeout
	// when non-zero (spec §5: "caller-configurable").
	TransferInactivityTimeout time.Duration
}

// NewCoordinator builds a Coordinator. A nil Events sink is replaced with a
// discarding sink so callers may omit instrumentation.
func NewCoordinator(client ClientFilesystem, remote RemoteFilesystem, transport Transport, lock Lock, sink events.Sink, logger *logging.Logger) *Coordinator {
	if sink == nil {
		sink = events.Sink(nullSink{})
	}
	if logger == nil {
		logger = logging.RootLogger.Sublogger("txn")
	}
	return &Coordinator{Client: client, Remote: remote, Transport: transport, Lock: lock, Events: sink, Logger: logger}
}

func (c *Coordinator) transferTimeout() time.Duration {
	if c.TransferInactivityTimeout > 0 {
		return c.TransferInactivityTimeout
	}
	return defaultTransferInactivityTimeout
}

type nullSink struct{}

func (nullSink) Write(events.Event) error { return nil }
func (nullSink) Close() error             { return nil }

// Execute runs the protocol of spec §4.4.2 for plan, installing newManifest
// as the repository's next snapshot. operation names the action for lock
// bookkeeping (e.g. "sync", "clone", "init"), and also selects the lock's
// per-operation timeout (spec §5). ctx governs both that timeout and
// cooperative cancellation of the transfer stage; a canceled ctx aborts
// the in-flight transfer and the coordinator executes the rollback path.
func (c *Coordinator) Execute(ctx context.Context, plan *merge.Plan, newManifest []byte, tx ID, operation string) error {
	if !plan.Executable() {
		metrics.ConflictsTotal.Inc(1)
		paths := make([]string, len(plan.Conflicts))
		for i, conflict := range plan.Conflicts {
			paths[i] = conflict.Path
		}
		return &ErrConflict{Paths: paths}
	}

	lockCtx, cancelLock := context.WithTimeout(ctx, lockTimeout(operation))
	defer cancelLock()

	lockWaitStart := time.Now()
	token, err := c.acquireLock(lockCtx, operation)
	metrics.LockWaitSeconds.WithValues(operation).UpdateSince(lockWaitStart)
	if err != nil {
		return errkind.Wrap(errkind.LockContended, err, "unable to acquire distributed lock")
	}
	defer func() {
		if releaseErr := c.Lock.Release(token); releaseErr != nil {
			c.Logger.Warn(fmt.Errorf("releasing lock: %w", releaseErr))
		}
	}()

	if err := c.Client.Begin(tx); err != nil {
		return errkind.Wrap(errkind.ClientCommit, err, "client begin failed")
	}
	if err := c.Remote.Begin(tx); err != nil {
		c.rollbackAll(tx)
		return errkind.Wrap(errkind.RemoteCommit, err, "remote begin failed")
	}
	if err := c.Transport.Begin(); err != nil {
		c.rollbackAll(tx)
		return errkind.Wrap(errkind.Transport, err, "transport begin failed")
	}

	if err := c.stagePlan(ctx, plan, newManifest, tx); err != nil {
		c.rollbackAll(tx)
		_ = c.Transport.End()
		return err
	}

	if err := c.Remote.StageManifest(tx, newManifest); err != nil {
		c.rollbackAll(tx)
		_ = c.Transport.End()
		return errkind.Wrap(errkind.RemoteCommit, err, "staging remote manifest failed")
	}
	if err := c.Client.StageManifest(tx, newManifest); err != nil {
		c.rollbackAll(tx)
		_ = c.Transport.End()
		return errkind.Wrap(errkind.ClientCommit, err, "staging client manifest failed")
	}

	// Remote commit is the point of no return (spec §4.4.2 step 10): once
	// it succeeds, the new snapshot is authoritative regardless of what
	// happens to the client below.
	if err := c.Remote.Commit(tx); err != nil {
		c.rollbackAll(tx)
		_ = c.Transport.End()
		return errkind.Wrap(errkind.RemoteCommit, err, "remote commit failed")
	}
	c.emit("remote-committed", tx)

	if err := c.Client.Commit(tx); err != nil {
		// The repository is in the new snapshot remotely; the client is
		// now inconsistent. This is recoverable on the next operation via
		// ClientFilesystem.Recover, so we flag it rather than pretend the
		// whole transaction failed.
		metrics.RecoverableFailuresTotal.Inc(1)
		_ = c.Transport.End()
		return errkind.Recoverable(errkind.ClientCommit, err, "client commit failed after remote commit succeeded")
	}

	if err := c.Transport.End(); err != nil {
		c.Logger.Warn(fmt.Errorf("transport end: %w", err))
	}
	metrics.CommitsTotal.WithValues(operation).Inc(1)
	c.emit("committed", tx)

	return nil
}

// acquireLock waits for c.Lock.Acquire to return or for ctx to expire,
// whichever comes first, so a contended lock times out instead of
// blocking the caller indefinitely (spec §5).
func (c *Coordinator) acquireLock(ctx context.Context, operation string) (string, error) {
	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		token, err := c.Lock.Acquire(operation)
		done <- result{token, err}
	}()
	select {
	case r := <-done:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// stagePlan performs steps 3-7 of the protocol: streaming content for
// uploads and downloads, and staging deletions and cache-only updates.
// newManifest is consulted to short-circuit a download whose content
// already sits locally under a different path (a rename or duplicate),
// copying it straight from the client instead of pulling it over Transport.
func (c *Coordinator) stagePlan(ctx context.Context, plan *merge.Plan, newManifest []byte, tx ID) error {
	var bytesTransferred, uploadBytes, downloadBytes int64
	timeout := c.transferTimeout()
	reverse := localContentIndex(plan)
	target, _ := manifest.Parse(newManifest)

	for _, path := range plan.Uploads {
		local, err := c.Client.Open(path)
		if err != nil {
			return errkind.Wrap(errkind.ClientCommit, err, "opening local file for upload: "+path)
		}
		counted := &countingReader{r: local, count: &bytesTransferred}
		watched := &inactivityReader{ctx: ctx, r: counted, timeout: timeout}
		before := bytesTransferred
		handle, err := c.Transport.TransferToRemote(path, watched)
		closeErr := local.Close()
		if err != nil {
			return errkind.Wrap(errkind.Transport, err, "transferring upload: "+path)
		}
		if closeErr != nil {
			return errkind.Wrap(errkind.ClientCommit, closeErr, "closing local file after upload: "+path)
		}
		if err := c.Remote.Stage(tx, path, handle); err != nil {
			return errkind.Wrap(errkind.RemoteCommit, err, "staging upload on remote: "+path)
		}
		uploadBytes += bytesTransferred - before
		metrics.TransfersTotal.WithValues("upload").Inc(1)
	}

	for _, path := range plan.Downloads {
		if copied, err := c.stageLocalCopy(tx, path, target, reverse); err != nil {
			return err
		} else if copied {
			metrics.TransfersTotal.WithValues("download-local-copy").Inc(1)
			continue
		}

		remoteContent, err := c.Remote.Read(path)
		if err != nil {
			return errkind.Wrap(errkind.RemoteCommit, err, "reading remote file for download: "+path)
		}
		counted := &countingReader{r: remoteContent, count: &bytesTransferred}
		watched := &inactivityReader{ctx: ctx, r: counted, timeout: timeout}
		before := bytesTransferred
		handle, err := c.Transport.TransferToLocal(path, watched)
		closeErr := remoteContent.Close()
		if err != nil {
			return errkind.Wrap(errkind.Transport, err, "transferring download: "+path)
		}
		if closeErr != nil {
			return errkind.Wrap(errkind.RemoteCommit, closeErr, "closing remote reader after download: "+path)
		}
		if err := c.Client.Stage(tx, path, handle); err != nil {
			return errkind.Wrap(errkind.ClientCommit, err, "staging download on client: "+path)
		}
		downloadBytes += bytesTransferred - before
		metrics.TransfersTotal.WithValues("download").Inc(1)
	}

	if uploadBytes > 0 {
		metrics.BytesTransferredTotal.WithValues("upload").Inc(float64(uploadBytes))
	}
	if downloadBytes > 0 {
		metrics.BytesTransferredTotal.WithValues("download").Inc(float64(downloadBytes))
	}

	for _, path := range plan.DeleteRemote {
		if err := c.Remote.StageDelete(tx, path); err != nil {
			return errkind.Wrap(errkind.RemoteCommit, err, "staging remote deletion: "+path)
		}
	}
	for _, path := range plan.DeleteLocal {
		if err := c.Client.StageDelete(tx, path); err != nil {
			return errkind.Wrap(errkind.ClientCommit, err, "staging local deletion: "+path)
		}
	}
	for _, update := range plan.CacheUpdates {
		entry := CacheEntry{}
		if update.Entry != nil {
			entry = CacheEntry{
				Digest:           update.Entry.Digest.Hex(),
				Size:             update.Entry.Size,
				ModificationTime: update.Entry.ModificationTime,
			}
		}
		if err := c.Client.StageCacheUpdate(tx, update.Path, entry); err != nil {
			return errkind.Wrap(errkind.ClientCommit, err, "staging cache update: "+update.Path)
		}
	}

	c.Logger.Debug(fmt.Sprintf(
		"staged %s transfer plan: %d uploads, %d downloads, %d deletions",
		humanize.Bytes(uint64(bytesTransferred)), len(plan.Uploads), len(plan.Downloads), len(plan.DeleteLocal)+len(plan.DeleteRemote),
	))

	return nil
}

// localContentIndex builds a reverse lookup of content already present on
// the client, keyed by digest, from the plan's cache updates: a
// CacheUpdate's Entry describes a path whose content is correct and
// already sitting locally, making it a candidate source for copy
// detection on a download scheduled for different path with identical
// content.
func localContentIndex(plan *merge.Plan) *manifest.ReverseLookupMap {
	local := &manifest.Manifest{Entries: make(map[string]*manifest.Entry, len(plan.CacheUpdates))}
	for _, update := range plan.CacheUpdates {
		if update.Entry != nil {
			local.Entries[update.Path] = update.Entry
		}
	}
	return manifest.GenerateReverseLookupMap(local)
}

// stageLocalCopy checks whether path's target content (per target, the
// manifest being installed) already exists locally under a different path
// according to reverse. If so it stages that content directly from the
// client, skipping the remote read and Transport round trip entirely (spec
// §4.4: renamed or duplicated content should not be re-transferred).
func (c *Coordinator) stageLocalCopy(tx ID, path string, target *manifest.Manifest, reverse *manifest.ReverseLookupMap) (bool, error) {
	if target == nil {
		return false, nil
	}
	entry := target.Get(path)
	if entry == nil || entry.Kind != manifest.KindFile || entry.Digest.IsEmpty() {
		return false, nil
	}
	source, ok := reverse.Lookup(entry.Digest)
	if !ok || source == path {
		return false, nil
	}

	content, err := c.Client.Open(source)
	if err != nil {
		return false, nil
	}
	defer content.Close()

	if err := c.Client.Stage(tx, path, content); err != nil {
		return false, errkind.Wrap(errkind.ClientCommit, err, "staging local copy: "+path)
	}
	return true, nil
}

// rollbackAll rolls back both collaborators, logging (not raising) any
// rollback failure, since a failure during error-path cleanup must never
// mask the original error.
func (c *Coordinator) rollbackAll(tx ID) {
	if err := c.Remote.Rollback(tx); err != nil {
		c.Logger.Warn(fmt.Errorf("remote rollback: %w", err))
	}
	if err := c.Client.Rollback(tx); err != nil {
		c.Logger.Warn(fmt.Errorf("client rollback: %w", err))
	}
}

func (c *Coordinator) emit(kind string, tx ID) {
	if c.Events == nil {
		return
	}
	_ = c.Events.Write(events.Event(lifecycleEvent{kind: kind, tx: tx}))
}

// lifecycleEvent is a minimal docker/go-events payload describing a
// transaction lifecycle transition.
type lifecycleEvent struct {
	kind string
	tx   ID
}
