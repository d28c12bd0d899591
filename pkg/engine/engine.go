// Package engine composes the path validator, scanner, three-way merger,
// transaction coordinator, and distributed lock into the six external
// invocations of spec.md §6.6: status, init, clone, sync, log, blame.
// cmd/dsgsync is the only caller; everything else in this repository is a
// collaborator Engine wires together.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-events"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/errkind"
	"github.com/HRDAG/dsg-sub001/pkg/logging"
	"github.com/HRDAG/dsg-sub001/pkg/manifest"
	"github.com/HRDAG/dsg-sub001/pkg/merge"
	"github.com/HRDAG/dsg-sub001/pkg/remote"
	"github.com/HRDAG/dsg-sub001/pkg/txn"
)

// Config wires one engine instance: a working directory, the remote
// collaborators a transport has already been configured to reach, and the
// policy knobs spec §4.2/§4.3 leave to the caller.
type Config struct {
	// LocalRoot is the working directory. For clone it must already exist
	// (empty) by the time New is called; for init/sync it is the
	// repository root.
	LocalRoot string
	// RemoteRoot is the filesystem path backing the remote's bookkeeping
	// (snapshot log, tag table, lock, archive). It coincides with the path
	// a local or SSH-mounted RemoteFilesystem serves; S3-backed remotes
	// still need a local mirror path for these records per spec §4.5.2
	// ("mirrored on clone").
	RemoteRoot string

	Remote    txn.RemoteFilesystem
	Transport txn.Transport
	Lock      txn.Lock

	// User attributes newly observed content and new snapshots to this id.
	User string
	// Exclude is the scan's exclusion predicate. Nil excludes nothing.
	Exclude manifest.ExclusionPredicate
	// HashCache avoids rehashing unchanged files between scans. Nil
	// disables caching.
	HashCache *manifest.HashCache
	// Normalize enables path normalization during scanning (spec §4.1). It
	// is ordinarily left on; disabling it surfaces normalization violations
	// as validation errors instead of silently repairing them.
	Normalize bool

	Events events.Sink
	Logger *logging.Logger
}

// Engine is the stateless-between-calls façade over one repository's
// collaborators. A new Engine is cheap to construct; all durable state
// lives on disk or in the injected collaborators.
type Engine struct {
	cfg Config

	client      *txn.LocalClientFilesystem
	coordinator *txn.Coordinator

	localLog  *remote.SnapshotLog
	remoteLog *remote.SnapshotLog
	tags      *remote.TagTable
	archive   *remote.ArchiveIndex

	logger *logging.Logger
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.RootLogger.Sublogger("engine")
	}
	client := txn.NewLocalClientFilesystem(cfg.LocalRoot)
	coordinator := txn.NewCoordinator(client, cfg.Remote, cfg.Transport, cfg.Lock, cfg.Events, cfg.Logger)
	return &Engine{
		cfg:         cfg,
		client:      client,
		coordinator: coordinator,
		localLog:    remote.NewSnapshotLog(cfg.LocalRoot),
		remoteLog:   remote.NewSnapshotLog(cfg.RemoteRoot),
		tags:        remote.NewTagTable(cfg.LocalRoot),
		archive:     remote.NewArchiveIndex(cfg.LocalRoot),
		logger:      cfg.Logger,
	}
}

// PlanSummary is the read-only result of Status (spec §6.6: "sync plan
// summary + conflicts (no mutation)").
type PlanSummary struct {
	Uploads, Downloads        int
	DeleteLocal, DeleteRemote int
	CacheUpdates              int
	Kind                      merge.PlanKind
	Conflicts                 []merge.ConflictEntry
	Diagnostics               []manifest.Diagnostic
}

// Result is the outcome of a mutating operation (init/clone/sync).
type Result struct {
	SnapshotID string
	Plan       *merge.Plan
}

// recoverIfNeeded completes or rolls back a transaction left in progress by
// a prior crashed process, per ClientFilesystem.Recover's contract.
func (e *Engine) recoverIfNeeded() error {
	outcome, err := e.client.Recover()
	if err != nil {
		return errkind.Wrap(errkind.Consistency, err, "recovering prior transaction")
	}
	if outcome.Found {
		e.logger.Debug(fmt.Sprintf("recovered transaction %s (completed=%v)", outcome.TransactionID, outcome.Completed))
	}
	return nil
}

func (e *Engine) scanLocal() (*manifest.Manifest, []manifest.Diagnostic, error) {
	result, err := manifest.Scan(manifest.ScanOptions{
		Root:          e.cfg.LocalRoot,
		Exclude:       e.cfg.Exclude,
		ComputeHashes: true,
		Normalize:     e.cfg.Normalize,
		HashCache:     e.cfg.HashCache,
		User:          e.cfg.User,
	})
	if err != nil {
		return nil, nil, err
	}
	return result.Manifest, result.Diagnostics, nil
}

func (e *Engine) loadCache() (*manifest.Manifest, error) {
	data, err := os.ReadFile(dsg.CacheManifestPath(e.cfg.LocalRoot))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return manifest.Parse(data)
}

// fetchRemoteManifest reads the remote's current manifest. A not-yet-
// initialized remote (nothing at the well-known manifest path) is treated
// as an empty manifest rather than an error, so Build's clone/init
// shortcuts (spec §4.3.5) see it the same way they see an absent cache.
func (e *Engine) fetchRemoteManifest() (*manifest.Manifest, error) {
	reader, err := e.cfg.Remote.Read(dsg.CacheManifestName)
	if err != nil {
		return nil, nil
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return manifest.Parse(data)
}

// Status computes the sync plan without mutating anything (spec §6.6).
func (e *Engine) Status() (*PlanSummary, error) {
	if err := e.recoverIfNeeded(); err != nil {
		return nil, err
	}
	local, diags, err := e.scanLocal()
	if err != nil {
		return nil, err
	}
	cache, err := e.loadCache()
	if err != nil {
		return nil, err
	}
	remoteManifest, err := e.fetchRemoteManifest()
	if err != nil {
		return nil, err
	}

	plan := merge.Build(local, cache, remoteManifest, merge.ConflictPolicyNormal)
	return &PlanSummary{
		Uploads:      len(plan.Uploads),
		Downloads:    len(plan.Downloads),
		DeleteLocal:  len(plan.DeleteLocal),
		DeleteRemote: len(plan.DeleteRemote),
		CacheUpdates: len(plan.CacheUpdates),
		Kind:         plan.Kind,
		Conflicts:    plan.Conflicts,
		Diagnostics:  diags,
	}, nil
}

// Init creates a new repository: the remote is expected empty, so Build's
// init shortcut (spec §4.3.5) uploads every local path as snapshot "s1".
func (e *Engine) Init(message string) (*Result, error) {
	return e.commit("init", message, merge.ConflictPolicyNormal)
}

// Sync reconciles local, cache, and remote, committing a new snapshot.
// policy selects how conflicting states are resolved (spec §4.3.3).
func (e *Engine) Sync(message string, policy merge.ConflictPolicy) (*Result, error) {
	return e.commit("sync", message, policy)
}

// Clone populates an empty working directory from the remote's current
// state (spec §6.6: "working dir populated from remote HEAD"). Unlike
// init/sync, clone produces no new snapshot: the remote's existing
// manifest becomes the new cache manifest verbatim, and history is
// mirrored locally rather than extended.
func (e *Engine) Clone() (*Result, error) {
	if err := e.recoverIfNeeded(); err != nil {
		return nil, err
	}

	remoteManifest, err := e.fetchRemoteManifest()
	if err != nil {
		return nil, err
	}
	if remoteManifest == nil {
		return nil, errkind.New(errkind.Validation, "remote has no committed snapshot to clone")
	}
	local, diags, err := e.scanLocal()
	if err != nil {
		return nil, err
	}
	for _, d := range diags {
		e.logger.Warn(fmt.Errorf("scan diagnostic: %s", d))
	}

	plan := merge.Build(local, nil, remoteManifest, merge.ConflictPolicyNormal)
	data, err := remoteManifest.Marshal()
	if err != nil {
		return nil, err
	}

	tx := txn.DeriveID(remoteManifest.Metadata.ManifestHash)
	if err := e.coordinator.Execute(context.Background(), plan, data, tx, "clone"); err != nil {
		return nil, err
	}

	if err := e.mirrorHistory(); err != nil {
		e.logger.Warn(fmt.Errorf("mirroring history after clone: %w", err))
	}

	return &Result{SnapshotID: remoteManifest.Metadata.SnapshotID, Plan: plan}, nil
}

// mirrorHistory copies snapshot log entries and archived manifests the
// remote already holds into the local mirrors, so log and blame work
// against a freshly cloned repository without a further round trip.
func (e *Engine) mirrorHistory() error {
	remoteSnapshots, err := e.remoteLog.Load()
	if err != nil {
		return err
	}
	localSnapshots, err := e.localLog.Load()
	if err != nil {
		return err
	}
	for _, snapshot := range remoteSnapshots[len(localSnapshots):] {
		if err := e.localLog.Append(snapshot); err != nil {
			return err
		}
	}

	remoteArchive := remote.NewArchiveIndex(e.cfg.RemoteRoot)
	remoteEntries, err := remoteArchive.Load()
	if err != nil {
		return err
	}
	localEntries, err := e.archive.Load()
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(localEntries))
	for _, entry := range localEntries {
		have[entry.SnapshotID] = true
	}
	for _, entry := range remoteEntries {
		if have[entry.SnapshotID] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dsg.ArchiveDirectoryPath(e.cfg.RemoteRoot), entry.FileName))
		if err != nil {
			return err
		}
		if err := writeArchiveFile(e.cfg.LocalRoot, entry.FileName, data); err != nil {
			return err
		}
		if err := e.archive.Append(entry); err != nil {
			return err
		}
	}
	return nil
}

// commit implements the shared body of init/sync: compute the plan,
// derive the next snapshot's manifest, hand both to the coordinator, and
// record history bookkeeping once the coordinator's commit succeeds.
func (e *Engine) commit(operation, message string, policy merge.ConflictPolicy) (*Result, error) {
	if err := e.recoverIfNeeded(); err != nil {
		return nil, err
	}

	local, diags, err := e.scanLocal()
	if err != nil {
		return nil, err
	}
	for _, d := range diags {
		e.logger.Warn(fmt.Errorf("scan diagnostic: %s", d))
	}
	cache, err := e.loadCache()
	if err != nil {
		return nil, err
	}
	remoteManifest, err := e.fetchRemoteManifest()
	if err != nil {
		return nil, err
	}
	plan := merge.Build(local, cache, remoteManifest, policy)

	previous, err := e.remoteLog.Latest()
	if err != nil {
		return nil, err
	}
	snapshotID, err := e.remoteLog.NextID()
	if err != nil {
		return nil, err
	}

	next := manifest.New()
	next.Entries = local.Entries
	next.Metadata = manifest.Metadata{
		SnapshotID: snapshotID,
		CreatedBy:  e.cfg.User,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
	if previous != nil {
		next.Metadata.Previous = previous.SnapshotID
	}
	if err := next.Finalize(); err != nil {
		return nil, err
	}
	data, err := next.Marshal()
	if err != nil {
		return nil, err
	}

	tx := txn.DeriveID(next.Metadata.ManifestHash)
	if err := e.coordinator.Execute(context.Background(), plan, data, tx, operation); err != nil {
		return nil, err
	}

	if err := e.recordSnapshot(next, data); err != nil {
		// The transaction already committed; this only affects the log,
		// tag, and archive mirrors, so a failure here is logged rather
		// than surfaced as an operation failure.
		e.logger.Warn(fmt.Errorf("recording snapshot bookkeeping: %w", err))
	}

	return &Result{SnapshotID: next.Metadata.SnapshotID, Plan: plan}, nil
}

// recordSnapshot appends the new snapshot to both the remote and local
// logs and archives the committed manifest, per spec §4.5.2's "appended by
// each successful remote.commit" and §3's archive-directory layout.
func (e *Engine) recordSnapshot(m *manifest.Manifest, data []byte) error {
	entry := remote.Snapshot{
		SnapshotID: m.Metadata.SnapshotID,
		CreatedAt:  m.Metadata.CreatedAt,
		CreatedBy:  m.Metadata.CreatedBy,
		Message:    m.Metadata.Message,
	}
	if m.Metadata.Previous != "" {
		previous := m.Metadata.Previous
		entry.Previous = &previous
	}

	if err := e.remoteLog.Append(entry); err != nil {
		return err
	}
	if err := e.localLog.Append(entry); err != nil {
		return err
	}

	fileName := m.Metadata.SnapshotID + ".json"
	if err := writeArchiveFile(e.cfg.RemoteRoot, fileName, data); err != nil {
		return err
	}
	if err := writeArchiveFile(e.cfg.LocalRoot, fileName, data); err != nil {
		return err
	}

	archiveEntry := remote.ArchiveEntry{
		SnapshotID: m.Metadata.SnapshotID,
		FileName:   fileName,
		Digest:     m.Metadata.ManifestHash,
	}
	remoteArchive := remote.NewArchiveIndex(e.cfg.RemoteRoot)
	if err := remoteArchive.Append(archiveEntry); err != nil {
		return err
	}
	return e.archive.Append(archiveEntry)
}

// writeArchiveFile stores a manifest's serialized bytes under root's
// archive directory, creating the directory if necessary.
func writeArchiveFile(root, fileName string, data []byte) error {
	dir := dsg.ArchiveDirectoryPath(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fileName), data, 0o644)
}

// Tag records a named reference to a snapshot (spec §4.5.3/§6.3), mirrored
// to both the remote and local tag tables.
func (e *Engine) Tag(name, snapshotID, message string) error {
	tag := remote.Tag{SnapshotID: snapshotID, CreatedAt: time.Now().UTC(), Message: message}
	remoteTags := remote.NewTagTable(e.cfg.RemoteRoot)
	if err := remoteTags.Set(name, tag); err != nil {
		return err
	}
	return e.tags.Set(name, tag)
}

// Log returns the ordered snapshot history (spec §6.6), preferring the
// local mirror and falling back to the remote's log when no local mirror
// exists yet (e.g. before any clone or sync has run locally).
func (e *Engine) Log() ([]remote.Snapshot, error) {
	snapshots, err := e.localLog.Load()
	if err != nil {
		return nil, err
	}
	if len(snapshots) > 0 {
		return snapshots, nil
	}
	return e.remoteLog.Load()
}

// Blame returns the id of the most recent snapshot that introduced or
// changed path's content (spec §6.6), walking the snapshot history newest
// to oldest and comparing each archived manifest's entry against its
// predecessor. A path absent from every snapshot returns an error; a path
// that was later deleted is not distinguished from one that never
// existed, since the invocation's contract names only "last snapshot that
// touched path".
func (e *Engine) Blame(path string) (string, error) {
	snapshots, err := e.localLog.Load()
	if err != nil {
		return "", err
	}
	if len(snapshots) == 0 {
		snapshots, err = e.remoteLog.Load()
		if err != nil {
			return "", err
		}
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		current, err := e.loadArchivedManifest(snapshots[i].SnapshotID)
		if err != nil {
			return "", err
		}
		entry := current.Get(path)
		if entry == nil {
			continue
		}
		if i == 0 {
			return snapshots[i].SnapshotID, nil
		}
		previous, err := e.loadArchivedManifest(snapshots[i-1].SnapshotID)
		if err != nil {
			return "", err
		}
		if !entry.Equal(previous.Get(path)) {
			return snapshots[i].SnapshotID, nil
		}
	}
	return "", errkind.New(errkind.Validation, "path never appears in history: "+path)
}

func (e *Engine) loadArchivedManifest(snapshotID string) (*manifest.Manifest, error) {
	entry, ok, err := e.archive.Lookup(snapshotID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errkind.New(errkind.Consistency, "no archived manifest for snapshot "+snapshotID)
	}
	data, err := os.ReadFile(filepath.Join(dsg.ArchiveDirectoryPath(e.cfg.LocalRoot), entry.FileName))
	if err != nil {
		return nil, err
	}
	return manifest.Parse(data)
}
