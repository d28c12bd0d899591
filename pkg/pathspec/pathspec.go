// Package pathspec implements the path validator and normalizer (spec §4.1):
// it canonicalizes a root-relative path string to Unicode NFC, applies a
// small set of repair steps, and rejects paths that can never be safely
// represented across the filesystems this engine targets.
package pathspec

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Verdict classifies the outcome of validating a path.
type Verdict uint8

const (
	// Accept indicates the path (possibly after repair) is valid.
	Accept Verdict = iota
	// RejectControlCharacter indicates a component contains a control
	// character.
	RejectControlCharacter
	// RejectIllegalCharacter indicates a component contains one of the
	// characters this engine never allows on disk.
	RejectIllegalCharacter
	// RejectUnicodeControl indicates a component contains a line/paragraph
	// separator, bidi control, or disallowed zero-width format character.
	RejectUnicodeControl
	// RejectReservedName indicates a component matches a Windows reserved
	// device name.
	RejectReservedName
	// RejectTempPattern indicates a component matches a common
	// office-lockfile temp-file pattern.
	RejectTempPattern
	// RejectDotComponent indicates a "." or ".." component survived
	// repair (i.e. was present verbatim and not collapsible).
	RejectDotComponent
	// RejectEmpty indicates the path is empty after normalization.
	RejectEmpty
)

// String returns a human-readable description of the verdict.
func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case RejectControlCharacter:
		return "control character in path component"
	case RejectIllegalCharacter:
		return "illegal character in path component"
	case RejectUnicodeControl:
		return "disallowed unicode control or format character in path component"
	case RejectReservedName:
		return "reserved device name used as path component"
	case RejectTempPattern:
		return "temporary-file pattern used as path component"
	case RejectDotComponent:
		return "dot or dot-dot path component"
	case RejectEmpty:
		return "empty path after normalization"
	default:
		return "unknown rejection"
	}
}

// Repair describes a single normalization step that was applied while
// producing the normalized path, recording the original and repaired form
// of the affected component for diagnostics.
type Repair struct {
	// Component is the index of the path component that was repaired.
	Component int
	// Original is the component's value before repair.
	Original string
	// Repaired is the component's value after repair.
	Repaired string
	// Description names the repair step that was applied.
	Description string
}

// Result is the outcome of validating and normalizing a path.
type Result struct {
	// Normalized is the normalized path. It is only meaningful when
	// Verdict is Accept.
	Normalized string
	// Repairs lists every repair step that was applied, in order.
	Repairs []Repair
	// Verdict classifies the outcome.
	Verdict Verdict
}

// Accepted reports whether the result represents an accepted path.
func (r Result) Accepted() bool {
	return r.Verdict == Accept
}

// reservedNames is the table of Windows reserved device names, matched
// case-insensitively against a component with its extension stripped.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// isReservedName reports whether component matches a Windows reserved
// device name, with or without a trailing extension, case-insensitively.
func isReservedName(component string) bool {
	base := component
	if idx := strings.IndexByte(component, '.'); idx != -1 {
		base = component[:idx]
	}
	return reservedNames[strings.ToUpper(base)]
}

// isTempPattern reports whether component matches a common office
// lockfile/temp-file pattern: a leading "~", a trailing "~", or a "~$"
// prefix.
func isTempPattern(component string) bool {
	if component == "" {
		return false
	}
	if strings.HasPrefix(component, "~$") {
		return true
	}
	if strings.HasPrefix(component, "~") || strings.HasSuffix(component, "~") {
		return true
	}
	return false
}

// illegalCharacters are characters that are never permitted in a path
// component regardless of platform, because at least one target
// filesystem cannot represent them.
const illegalCharacters = `<>"|?*`

// containsControlCharacter reports whether s contains a C0 control
// character (U+0000-U+001F) or DEL (U+007F).
func containsControlCharacter(s string) bool {
	for _, r := range s {
		if r <= 0x1F || r == 0x7F {
			return true
		}
	}
	return false
}

// containsIllegalCharacter reports whether s contains one of the
// platform-unsafe punctuation characters.
func containsIllegalCharacter(s string) bool {
	return strings.ContainsAny(s, illegalCharacters)
}

const (
	// lineSeparator is U+2028 LINE SEPARATOR.
	lineSeparator rune = 0x2028
	// paragraphSeparator is U+2029 PARAGRAPH SEPARATOR.
	paragraphSeparator rune = 0x2029
	// bidiControlStart/bidiControlEnd bound the U+202A-U+202E explicit
	// bidirectional formatting control block.
	bidiControlStart rune = 0x202A
	bidiControlEnd   rune = 0x202E
	// zeroWidthSpace is U+200B ZERO WIDTH SPACE.
	zeroWidthSpace rune = 0x200B
	// zeroWidthNoBreakSpace is U+FEFF ZERO WIDTH NO-BREAK SPACE (BOM).
	zeroWidthNoBreakSpace rune = 0xFEFF
)

// zeroWidthFormatChars are zero-width format characters that serve no
// linguistic purpose in a plain file name and are rejected outright. This
// intentionally excludes ZWJ (U+200D) and ZWNJ (U+200C), which are
// linguistically significant in scripts that rely on them (e.g. Indic
// scripts, emoji ZWJ sequences), matching spec §4.1's "where they serve no
// linguistic purpose" carve-out.
var zeroWidthFormatChars = map[rune]bool{
	zeroWidthSpace:        true,
	zeroWidthNoBreakSpace: true,
}

// containsUnicodeControl reports whether s contains a Unicode line or
// paragraph separator, a bidi control character, or a disallowed
// zero-width format character.
func containsUnicodeControl(s string) bool {
	for _, r := range s {
		switch {
		case r == lineSeparator || r == paragraphSeparator:
			return true
		case r >= bidiControlStart && r <= bidiControlEnd:
			return true
		case zeroWidthFormatChars[r]:
			return true
		}
	}
	return false
}

// trimASCIISpace trims leading and trailing ASCII whitespace from s.
// Unicode whitespace is intentionally left alone since it may be
// linguistically significant.
func trimASCIISpace(s string) string {
	return strings.Trim(s, " \t\r\n\v\f")
}

// Validate canonicalizes and classifies a raw root-relative path string
// using forward slash as the separator (spec §3.1: "Separator is forward
// slash regardless of host OS"). Repair steps are applied in the order
// given in spec §4.1: NFC normalization, ASCII whitespace trimming, then
// redundant-separator collapse with dot-component rejection. Illegal paths
// are rejected without repair.
func Validate(raw string) Result {
	if raw == "" {
		return Result{Verdict: RejectEmpty}
	}

	rawComponents := strings.Split(raw, "/")
	normalized := make([]string, 0, len(rawComponents))
	var repairs []Repair

	for i, original := range rawComponents {
		if original == "" {
			// Redundant separator; collapse by omission.
			if i != 0 && i != len(rawComponents)-1 {
				repairs = append(repairs, Repair{
					Component:   i,
					Original:    original,
					Repaired:    "",
					Description: "collapsed redundant separator",
				})
			}
			continue
		}

		if containsControlCharacter(original) {
			return Result{Verdict: RejectControlCharacter}
		}
		if containsIllegalCharacter(original) {
			return Result{Verdict: RejectIllegalCharacter}
		}
		if containsUnicodeControl(original) {
			return Result{Verdict: RejectUnicodeControl}
		}

		component := original

		// Step 1: NFC normalization.
		if nfc := norm.NFC.String(component); nfc != component {
			repairs = append(repairs, Repair{
				Component:   i,
				Original:    component,
				Repaired:    nfc,
				Description: "normalized to NFC",
			})
			component = nfc
		}

		// Step 2: trim ASCII whitespace.
		if trimmed := trimASCIISpace(component); trimmed != component {
			repairs = append(repairs, Repair{
				Component:   i,
				Original:    component,
				Repaired:    trimmed,
				Description: "trimmed ASCII whitespace",
			})
			component = trimmed
		}

		// Step 3: reject dot components (not repairable).
		if component == "." || component == ".." {
			return Result{Verdict: RejectDotComponent}
		}

		if component == "" {
			continue
		}

		if isReservedName(component) {
			return Result{Verdict: RejectReservedName}
		}
		if isTempPattern(component) {
			return Result{Verdict: RejectTempPattern}
		}

		normalized = append(normalized, component)
	}

	if len(normalized) == 0 {
		return Result{Verdict: RejectEmpty}
	}

	return Result{
		Normalized: strings.Join(normalized, "/"),
		Repairs:    repairs,
		Verdict:    Accept,
	}
}
