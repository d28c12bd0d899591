package pathspec

import "strings"

// Join is a fast alternative to path.Join designed specifically for
// root-relative synchronization paths. It avoids the unnecessary path
// cleaning overhead incurred by path.Join. The provided leaf name must be
// non-empty, otherwise this function will panic.
func Join(base, leaf string) string {
	if leaf == "" {
		panic("empty leaf name")
	}
	if base == "" {
		return leaf
	}
	return base + "/" + leaf
}

// Dir is a fast alternative to path.Dir designed specifically for
// root-relative synchronization paths. The provided path must be
// non-empty, otherwise this function will panic.
func Dir(path string) string {
	if path == "" {
		panic("empty path")
	}
	lastSlashIndex := strings.LastIndexByte(path, '/')
	if lastSlashIndex == -1 {
		return ""
	}
	if lastSlashIndex == 0 {
		panic("empty parent path")
	}
	return path[:lastSlashIndex]
}

// Base is a fast alternative to path.Base designed specifically for
// root-relative synchronization paths. If the provided path is empty (the
// root path), this function returns an empty string.
func Base(path string) string {
	if path == "" {
		return ""
	}
	lastSlashIndex := strings.LastIndexByte(path, '/')
	if lastSlashIndex == -1 {
		return path
	}
	if lastSlashIndex == len(path)-1 {
		panic("empty base name")
	}
	return path[lastSlashIndex+1:]
}

// Less performs a sort comparison between two root-relative synchronization
// paths. It returns true if first sorts before second in code-point
// (component-wise) order, matching the canonical serialization order
// required by spec §6.1.
func Less(first, second string) bool {
	if first == second {
		return false
	} else if first == "" {
		return true
	} else if second == "" {
		return false
	}

	for {
		firstSlash := strings.IndexByte(first, '/')
		var firstComponent string
		if firstSlash == -1 {
			firstComponent = first
		} else {
			firstComponent = first[:firstSlash]
		}

		secondSlash := strings.IndexByte(second, '/')
		var secondComponent string
		if secondSlash == -1 {
			secondComponent = second
		} else {
			secondComponent = second[:secondSlash]
		}

		if firstComponent < secondComponent {
			return true
		} else if secondComponent < firstComponent {
			return false
		}

		if firstSlash == -1 {
			return true
		} else if secondSlash == -1 {
			return false
		}
		first = first[firstSlash+1:]
		second = second[secondSlash+1:]
	}
}
