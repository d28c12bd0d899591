package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/HRDAG/dsg-sub001/pkg/errkind"
	"github.com/HRDAG/dsg-sub001/pkg/pathspec"
)

// Diagnostic records a single scan-time problem: either an illegal path
// that failed validation, or an I/O error encountered while reading an
// entry. Diagnostics never abort a scan (spec §4.2: "Failure semantics…
// collected, not raised"); the manifest is built from whatever was
// readable.
type Diagnostic struct {
	// Path is the (unnormalized) relative path at which the problem
	// occurred.
	Path string
	// Err describes the problem.
	Err error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Path, d.Err)
}

// ScanOptions configures a single scan (spec §4.2).
type ScanOptions struct {
	// Root is the absolute path to the directory to walk.
	Root string
	// Exclude is the exclusion predicate over root-relative paths. Nil
	// means nothing is excluded.
	Exclude ExclusionPredicate
	// ComputeHashes controls whether file entries are hashed. When false,
	// entries carry no content hash (a fast scan for planning only).
	ComputeHashes bool
	// Normalize controls whether illegal-but-repairable paths are
	// repaired rather than reported as validation errors (spec §4.2 step
	// 2, and E6 in spec.md).
	Normalize bool
	// HashCache is an optional cache of previously computed digests; see
	// HashCache for details. May be nil.
	HashCache *HashCache
	// User attributes any newly observed content to this user id, since
	// "last modified by" is an application-level fact the filesystem does
	// not record.
	User string
	// Workers bounds the number of concurrent file-hashing goroutines.
	// Zero means runtime.NumCPU().
	Workers int
}

// ScanResult is the output of a scan (spec §4.2: "Manifest (without
// envelope) plus a list of validation diagnostics").
type ScanResult struct {
	Manifest    *Manifest
	Diagnostics []Diagnostic
}

// scanItem is an entry discovered by the directory walk, pending
// validation and (for files) hashing.
type scanItem struct {
	rawRelPath string
	absPath    string
	info       os.FileInfo
	isSymlink  bool
	linkTarget string
}

// Scan walks opts.Root and builds a Manifest, per spec §4.2.
func Scan(opts ScanOptions) (*ScanResult, error) {
	if opts.Root == "" {
		return nil, errkind.New(errkind.Validation, "scan root must not be empty")
	}

	items, diagnostics, err := walk(opts)
	if err != nil {
		return nil, err
	}

	m := New()
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}

	type built struct {
		entry *Entry
		diag  *Diagnostic
	}

	results := make([]built, len(items))
	work := make(chan int, len(items))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				entry, diag := buildEntry(items[i], opts)
				results[i] = built{entry: entry, diag: diag}
			}
		}()
	}
	for i := range items {
		work <- i
	}
	close(work)
	wg.Wait()

	for i, item := range items {
		result := results[i]
		if result.diag != nil {
			diagnostics = append(diagnostics, *result.diag)
			continue
		}

		validation := pathspec.Validate(item.rawRelPath)
		normalizedPath := validation.Normalized
		if !validation.Accepted() {
			diagnostics = append(diagnostics, Diagnostic{
				Path: item.rawRelPath,
				Err:  errkind.New(errkind.Validation, validation.Verdict.String()),
			})
			continue
		}
		if len(validation.Repairs) > 0 && !opts.Normalize {
			diagnostics = append(diagnostics, Diagnostic{
				Path: item.rawRelPath,
				Err:  errkind.New(errkind.Validation, "path requires normalization but normalize is disabled"),
			})
			continue
		}

		result.entry.Path = normalizedPath
		m.Entries[normalizedPath] = result.entry
	}

	return &ScanResult{Manifest: m, Diagnostics: diagnostics}, nil
}

// walk performs the depth-first traversal described in spec §4.2 step 1,
// returning discovered items and any diagnostics from devices/sockets/
// pipes encountered along the way.
func walk(opts ScanOptions) ([]scanItem, []Diagnostic, error) {
	var items []scanItem
	var diagnostics []Diagnostic

	err := filepath.Walk(opts.Root, func(path string, info os.FileInfo, err error) error {
		if path == opts.Root {
			return nil
		}
		relPath, relErr := filepath.Rel(opts.Root, path)
		if relErr != nil {
			return relErr
		}
		relPath = filepath.ToSlash(relPath)

		if err != nil {
			diagnostics = append(diagnostics, Diagnostic{Path: relPath, Err: err})
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if opts.Exclude != nil && opts.Exclude(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			// Directories are not tracked (spec §3.1); descend into them.
			return nil
		}

		mode := info.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			target, readErr := os.Readlink(path)
			if readErr != nil {
				diagnostics = append(diagnostics, Diagnostic{
					Path: relPath,
					Err:  errkind.Wrap(errkind.Validation, readErr, "unable to read symlink target"),
				})
				return nil
			}
			items = append(items, scanItem{
				rawRelPath: relPath,
				absPath:    path,
				info:       info,
				isSymlink:  true,
				linkTarget: target,
			})
		case mode.IsRegular():
			items = append(items, scanItem{
				rawRelPath: relPath,
				absPath:    path,
				info:       info,
			})
		default:
			diagnostics = append(diagnostics, Diagnostic{
				Path: relPath,
				Err:  errkind.New(errkind.Validation, "unsupported file type (device, socket, or pipe)"),
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return items, diagnostics, nil
}

// buildEntry constructs the Entry for a single scan item, hashing file
// content if requested. It returns either an entry or a diagnostic, never
// both.
func buildEntry(item scanItem, opts ScanOptions) (*Entry, *Diagnostic) {
	if item.isSymlink {
		switch pathspec.ValidateSymlink(item.rawRelPath, item.linkTarget) {
		case pathspec.SymlinkRejectAbsolute:
			return nil, &Diagnostic{Path: item.rawRelPath, Err: errkind.New(errkind.Validation, "absolute symlink target")}
		case pathspec.SymlinkRejectEscapes:
			return nil, &Diagnostic{Path: item.rawRelPath, Err: errkind.New(errkind.Validation, "symlink escapes repository root")}
		case pathspec.SymlinkRejectEmpty:
			return nil, &Diagnostic{Path: item.rawRelPath, Err: errkind.New(errkind.Validation, "empty symlink target")}
		}
		if _, statErr := os.Stat(item.absPath); statErr != nil {
			return nil, &Diagnostic{Path: item.rawRelPath, Err: errkind.Wrap(errkind.Validation, statErr, "broken symlink target")}
		}
		return &Entry{
			Path:   item.rawRelPath,
			Kind:   KindSymlink,
			Target: item.linkTarget,
		}, nil
	}

	entry := &Entry{
		Path:             item.rawRelPath,
		Kind:             KindFile,
		Size:             item.info.Size(),
		ModificationTime: item.info.ModTime(),
		User:             opts.User,
	}

	if !opts.ComputeHashes {
		return entry, nil
	}

	if cached, ok := opts.HashCache.Lookup(item.absPath, entry.Size, entry.ModificationTime); ok {
		entry.Digest = cached
		return entry, nil
	}

	digest, err := hashWithRaceCheck(item.absPath, entry.Size, entry.ModificationTime)
	if err != nil {
		return nil, &Diagnostic{Path: item.rawRelPath, Err: errkind.Wrap(errkind.Validation, err, "unable to read file")}
	}

	entry.Digest = digest
	opts.HashCache.Store(item.absPath, entry.Size, entry.ModificationTime, digest)
	return entry, nil
}

// hashWithRaceCheck computes a file's SHA-256 digest and re-stats the file
// afterward, rejecting the read if size or modification time changed
// during hashing (spec §9's open question: "if mtime/size changed, re-hash
// or treat as unreadable-for-this-pass"). It re-hashes once before giving
// up; both attempts are checked against the size and modification time
// the walk observed, so a file whose size or mtime stays changed is
// reported as unreadable for this pass.
func hashWithRaceCheck(path string, expectedSize int64, expectedModTime interface{ Unix() int64 }) (Digest, error) {
	for attempt := 0; attempt < 2; attempt++ {
		file, err := os.Open(path)
		if err != nil {
			return EmptyDigest, err
		}
		digest, hashErr := HashFile(file)
		closeErr := file.Close()
		if hashErr != nil {
			return EmptyDigest, hashErr
		}
		if closeErr != nil {
			return EmptyDigest, closeErr
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			return EmptyDigest, statErr
		}
		if info.Size() == expectedSize && info.ModTime().Unix() == expectedModTime.Unix() {
			return digest, nil
		}
		// Content changed during hashing; retry once, then give up.
	}
	return EmptyDigest, errkind.New(errkind.Validation, "file content changed during hashing")
}
