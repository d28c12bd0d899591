package pathspec

import (
	"path/filepath"
	"strings"
)

// SymlinkVerdict classifies a symbolic link target.
type SymlinkVerdict uint8

const (
	// SymlinkAccept indicates the link target is acceptable.
	SymlinkAccept SymlinkVerdict = iota
	// SymlinkRejectAbsolute indicates the link target is an absolute path.
	SymlinkRejectAbsolute
	// SymlinkRejectEscapes indicates the link target resolves outside the
	// repository root.
	SymlinkRejectEscapes
	// SymlinkRejectEmpty indicates the link target is empty.
	SymlinkRejectEmpty
	// SymlinkRejectBroken indicates the link target does not resolve to
	// any existing file. ValidateSymlink never returns this verdict itself
	// (it only classifies the target string); it exists so callers that
	// stat the resolved target can report brokenness using the same
	// vocabulary as the other illegal cases (spec §4.1: "broken symlinks"
	// are illegal alongside absolute and escaping ones).
	SymlinkRejectBroken
)

// ValidateSymlink classifies a symbolic link target found at linkPath
// (root-relative, normalized) within a repository rooted at root. It
// rejects absolute targets and targets that, once resolved relative to the
// link's directory, escape the repository root (spec §4.1: "absolute
// symlinks, or symlinks escaping the repository root"). It does not
// dereference the link or check for brokenness; callers that can stat the
// resolved target should do so separately and report SymlinkRejectBroken
// (a broken symlink is a scan-time I/O diagnostic, not a pure
// path-classification concern).
func ValidateSymlink(linkPath, target string) SymlinkVerdict {
	if target == "" {
		return SymlinkRejectEmpty
	}
	if filepath.IsAbs(target) || strings.HasPrefix(target, "/") {
		return SymlinkRejectAbsolute
	}

	linkDir := Dir(linkPath)
	resolved := filepath.ToSlash(filepath.Join(linkDir, target))

	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return SymlinkRejectEscapes
	}

	return SymlinkAccept
}
