package pathspec

import "testing"

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"simple", "a.txt", "a.txt"},
		{"nested", "task1/import/input/data.csv", "task1/import/input/data.csv"},
		{"redundant separator", "a//b.txt", "a/b.txt"},
		{"trim whitespace", " a.txt ", "a.txt"},
		{"nfd input normalizes to nfc", "café.txt", "café.txt"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Validate(test.path)
			if !result.Accepted() {
				t.Fatalf("expected accept, got verdict %v", result.Verdict)
			}
			if result.Normalized != test.want {
				t.Errorf("normalized = %q, want %q", result.Normalized, test.want)
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Verdict
	}{
		{"empty", "", RejectEmpty},
		{"control character", "a\x01b.txt", RejectControlCharacter},
		{"illegal character", "a<b>.txt", RejectIllegalCharacter},
		{"dot component", "a/./b.txt", RejectDotComponent},
		{"dot dot component", "a/../b.txt", RejectDotComponent},
		{"reserved name", "CON.txt", RejectReservedName},
		{"reserved name no extension", "nul", RejectReservedName},
		{"temp pattern leading tilde", "~a.txt", RejectTempPattern},
		{"temp pattern office lock", "~$a.docx", RejectTempPattern},
		{"trailing separator only", "/", RejectEmpty},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Validate(test.path)
			if result.Verdict != test.want {
				t.Errorf("verdict = %v, want %v", result.Verdict, test.want)
			}
		})
	}
}

func TestLess(t *testing.T) {
	tests := []struct {
		first, second string
		want           bool
	}{
		{"a.txt", "b.txt", true},
		{"b.txt", "a.txt", false},
		{"a.txt", "a.txt", false},
		{"", "a.txt", true},
		{"a/b.txt", "a.txt", false},
		{"a.txt", "a/b.txt", true},
	}
	for _, test := range tests {
		if got := Less(test.first, test.second); got != test.want {
			t.Errorf("Less(%q, %q) = %v, want %v", test.first, test.second, got, test.want)
		}
	}
}

func TestJoinDirBase(t *testing.T) {
	if got := Join("a", "b.txt"); got != "a/b.txt" {
		t.Errorf("Join = %q", got)
	}
	if got := Join("", "b.txt"); got != "b.txt" {
		t.Errorf("Join = %q", got)
	}
	if got := Dir("a/b.txt"); got != "a" {
		t.Errorf("Dir = %q", got)
	}
	if got := Dir("b.txt"); got != "" {
		t.Errorf("Dir = %q", got)
	}
	if got := Base("a/b.txt"); got != "b.txt" {
		t.Errorf("Base = %q", got)
	}
	if got := Base(""); got != "" {
		t.Errorf("Base = %q", got)
	}
}

func TestValidateSymlink(t *testing.T) {
	tests := []struct {
		name   string
		link   string
		target string
		want   SymlinkVerdict
	}{
		{"relative within root", "task1/analysis/out/link", "../input/data.csv", SymlinkAccept},
		{"absolute target", "a/link", "/etc/passwd", SymlinkRejectAbsolute},
		{"escapes root", "a/link", "../../outside", SymlinkRejectEscapes},
		{"empty target", "a/link", "", SymlinkRejectEmpty},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ValidateSymlink(test.link, test.target); got != test.want {
				t.Errorf("ValidateSymlink = %v, want %v", got, test.want)
			}
		})
	}
}
