package merge

import (
	"sort"

	"github.com/HRDAG/dsg-sub001/pkg/manifest"
	"github.com/HRDAG/dsg-sub001/pkg/pathspec"
)

// CacheUpdate is a path whose cache record must be rewritten without any
// content transfer, because local and remote already agree (state S3).
type CacheUpdate struct {
	Path  string
	Entry *manifest.Entry
}

// ConflictEntry describes one path that could not be resolved
// automatically, carrying enough context for a caller to report it or
// attempt manual resolution.
type ConflictEntry struct {
	Path                 string
	State                State
	Local, Cache, Remote *manifest.Entry
}

// Plan is the output of merging three manifests (spec §4.3.4): ordered
// lists of the work the transaction coordinator must perform, plus the set
// of unresolved conflicts. The plan is executable only when Conflicts is
// empty.
type Plan struct {
	Uploads      []string
	Downloads    []string
	DeleteLocal  []string
	DeleteRemote []string
	CacheUpdates []CacheUpdate
	Conflicts    []ConflictEntry

	// Kind records which bulk shortcut, if any, produced this plan (spec
	// §4.3.5).
	Kind PlanKind
}

// Executable reports whether the plan can be carried out without manual
// conflict resolution.
func (p *Plan) Executable() bool {
	return len(p.Conflicts) == 0
}

// PlanKind identifies which of spec §4.3.5's bulk shortcuts, if any,
// produced a plan.
type PlanKind int

const (
	// PlanKindSync is the general per-file classification path.
	PlanKindSync PlanKind = iota
	// PlanKindClone means the cache was empty and the remote was not:
	// every remote path becomes a download.
	PlanKindClone
	// PlanKindInit means both cache and remote were empty and local was
	// not: every local path becomes an upload.
	PlanKindInit
)

// Build merges local, cache, and remote manifests into a Plan under the
// given conflict policy (spec §4.3).
func Build(local, cache, remote *manifest.Manifest, policy ConflictPolicy) *Plan {
	if cache == nil || len(cache.Entries) == 0 {
		if remote != nil && len(remote.Entries) > 0 {
			return buildClone(remote)
		}
		if local != nil && len(local.Entries) > 0 {
			return buildInit(local)
		}
	}
	return buildSync(local, cache, remote, policy)
}

// buildClone implements the clone shortcut: cache is empty, remote is not.
func buildClone(remote *manifest.Manifest) *Plan {
	plan := &Plan{Kind: PlanKindClone}
	plan.Downloads = remote.Paths()
	return plan
}

// buildInit implements the init shortcut: cache and remote are both empty,
// local is not.
func buildInit(local *manifest.Manifest) *Plan {
	plan := &Plan{Kind: PlanKindInit}
	plan.Uploads = local.Paths()
	return plan
}

// buildSync performs the general per-path classification.
func buildSync(local, cache, remote *manifest.Manifest, policy ConflictPolicy) *Plan {
	plan := &Plan{Kind: PlanKindSync}

	paths := unionPaths(local, cache, remote)
	for _, path := range paths {
		l := entryOrNil(local, path)
		c := entryOrNil(cache, path)
		r := entryOrNil(remote, path)

		state := Classify(l, c, r)
		action := ActionFor(state, policy)

		switch action {
		case ActionNoop:
			// Nothing to do.
		case ActionDownload:
			plan.Downloads = append(plan.Downloads, path)
		case ActionUpload:
			plan.Uploads = append(plan.Uploads, path)
		case ActionDeleteLocal:
			plan.DeleteLocal = append(plan.DeleteLocal, path)
		case ActionDeleteRemote:
			plan.DeleteRemote = append(plan.DeleteRemote, path)
		case ActionRefreshCache:
			plan.CacheUpdates = append(plan.CacheUpdates, CacheUpdate{Path: path, Entry: l})
		case ActionConflict:
			plan.Conflicts = append(plan.Conflicts, ConflictEntry{
				Path: path, State: state, Local: l, Cache: c, Remote: r,
			})
		}
	}

	return plan
}

func entryOrNil(m *manifest.Manifest, path string) *manifest.Entry {
	if m == nil {
		return nil
	}
	return m.Get(path)
}

// unionPaths returns the sorted union of paths present in any of the three
// manifests.
func unionPaths(local, cache, remote *manifest.Manifest) []string {
	seen := make(map[string]bool)
	add := func(m *manifest.Manifest) {
		if m == nil {
			return
		}
		for path := range m.Entries {
			seen[path] = true
		}
	}
	add(local)
	add(cache)
	add(remote)

	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		return pathspec.Less(paths[i], paths[j])
	})
	return paths
}
