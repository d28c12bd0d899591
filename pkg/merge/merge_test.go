package merge

import (
	"strings"
	"testing"
	"time"

	"github.com/HRDAG/dsg-sub001/pkg/manifest"
)

func entry(content string, mtime time.Time) *manifest.Entry {
	d, err := manifest.HashFile(strings.NewReader(content))
	if err != nil {
		panic(err)
	}
	return &manifest.Entry{Kind: manifest.KindFile, Digest: d, Size: int64(len(content)), ModificationTime: mtime}
}

// TestClassifyAllAgree verifies the S1 no-op state.
func TestClassifyAllAgree(t *testing.T) {
	now := time.Now()
	e := entry("same", now)
	if state := Classify(e, e, e); state != S1 {
		t.Fatalf("expected S1, got %s", state)
	}
}

// TestClassifyStates checks every row of the fifteen-state table (spec
// §4.3.1) except S15, which is unreachable by construction.
func TestClassifyStates(t *testing.T) {
	now := time.Now()
	a := entry("a", now)
	b := entry("b", now)
	c := entry("c", now)

	tests := []struct {
		name                 string
		local, cache, remote *manifest.Entry
		want                 State
	}{
		{"S1 all agree", a, a, a, S1},
		{"S2 remote changed", a, a, b, S2},
		{"S3 cache stale", a, b, a, S3},
		{"S4 local changed", a, b, b, S4},
		{"S5 three way divergence", a, b, c, S5},
		{"S6 local deleted clean", nil, a, a, S6},
		{"S7 local deleted remote changed", nil, a, b, S7},
		{"S8 cache lost agree", a, nil, a, S8},
		{"S9 cache lost disagree", a, nil, b, S9},
		{"S10 remote deleted clean", a, a, nil, S10},
		{"S11 remote deleted local changed", a, b, nil, S11},
		{"S12 only remote", nil, nil, a, S12},
		{"S13 only cache", nil, a, nil, S13},
		{"S14 only local", a, nil, nil, S14},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.local, test.cache, test.remote); got != test.want {
				t.Fatalf("Classify() = %s, want %s", got, test.want)
			}
		})
	}
}

// TestClassifyUnreachable verifies that S15 panics rather than silently
// returning a bogus state.
func TestClassifyUnreachable(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for path absent from all three manifests")
		}
	}()
	Classify(nil, nil, nil)
}

// TestActionForNormalPolicy verifies the state-to-action mapping (spec
// §4.3.2) and that conflicts abort under the normal policy.
func TestActionForNormalPolicy(t *testing.T) {
	tests := []struct {
		state State
		want  Action
	}{
		{S1, ActionNoop},
		{S2, ActionDownload},
		{S3, ActionRefreshCache},
		{S4, ActionUpload},
		{S5, ActionConflict},
		{S6, ActionDeleteRemote},
		{S7, ActionConflict},
		{S8, ActionDownload},
		{S9, ActionConflict},
		{S10, ActionDeleteLocal},
		{S11, ActionConflict},
		{S12, ActionDownload},
		{S13, ActionDeleteLocal},
		{S14, ActionUpload},
	}
	for _, test := range tests {
		if got := ActionFor(test.state, ConflictPolicyNormal); got != test.want {
			t.Errorf("ActionFor(%s, normal) = %s, want %s", test.state, got, test.want)
		}
	}
}

// TestActionForForcePolicy verifies forced conflict resolution: local wins
// for S5/S9/S11, remote wins for S7.
func TestActionForForcePolicy(t *testing.T) {
	tests := []struct {
		state State
		want  Action
	}{
		{S5, ActionUpload},
		{S9, ActionUpload},
		{S11, ActionUpload},
		{S7, ActionDownload},
	}
	for _, test := range tests {
		if got := ActionFor(test.state, ConflictPolicyForce); got != test.want {
			t.Errorf("ActionFor(%s, force) = %s, want %s", test.state, got, test.want)
		}
	}
}

// TestBuildCloneShortcut verifies that an empty cache with a non-empty
// remote produces a clone plan (spec §4.3.5).
func TestBuildCloneShortcut(t *testing.T) {
	remote := manifest.New()
	remote.Entries["a.txt"] = &manifest.Entry{Path: "a.txt", Kind: manifest.KindFile}
	remote.Entries["b.txt"] = &manifest.Entry{Path: "b.txt", Kind: manifest.KindFile}

	plan := Build(nil, manifest.New(), remote, ConflictPolicyNormal)
	if plan.Kind != PlanKindClone {
		t.Fatalf("expected PlanKindClone, got %v", plan.Kind)
	}
	if len(plan.Downloads) != 2 {
		t.Fatalf("expected 2 downloads, got %d", len(plan.Downloads))
	}
	if !plan.Executable() {
		t.Fatal("expected clone plan to be executable")
	}
}

// TestBuildInitShortcut verifies that an empty cache and empty remote with
// a non-empty local produces an init plan.
func TestBuildInitShortcut(t *testing.T) {
	local := manifest.New()
	local.Entries["a.txt"] = &manifest.Entry{Path: "a.txt", Kind: manifest.KindFile}

	plan := Build(local, manifest.New(), manifest.New(), ConflictPolicyNormal)
	if plan.Kind != PlanKindInit {
		t.Fatalf("expected PlanKindInit, got %v", plan.Kind)
	}
	if len(plan.Uploads) != 1 || plan.Uploads[0] != "a.txt" {
		t.Fatalf("unexpected uploads: %v", plan.Uploads)
	}
}

// TestBuildSyncProducesConflict verifies that a genuine three-way
// divergence surfaces in Plan.Conflicts and makes the plan non-executable.
func TestBuildSyncProducesConflict(t *testing.T) {
	now := time.Now()
	local := manifest.New()
	cache := manifest.New()
	remote := manifest.New()

	local.Entries["x"] = entry("local", now)
	cache.Entries["x"] = entry("cache", now)
	remote.Entries["x"] = entry("remote", now)

	plan := Build(local, cache, remote, ConflictPolicyNormal)
	if plan.Executable() {
		t.Fatal("expected plan with divergence to be non-executable")
	}
	if len(plan.Conflicts) != 1 || plan.Conflicts[0].Path != "x" {
		t.Fatalf("unexpected conflicts: %+v", plan.Conflicts)
	}
}

// TestBuildSyncOrdersOutputDeterministically verifies that plan lists are
// sorted, matching spec §4.3.4's "ordered lists" requirement.
func TestBuildSyncOrdersOutputDeterministically(t *testing.T) {
	now := time.Now()
	local := manifest.New()
	cache := manifest.New()
	remote := manifest.New()

	for _, path := range []string{"z.txt", "a.txt", "m.txt"} {
		cache.Entries[path] = entry(path, now)
	}

	plan := Build(local, cache, remote, ConflictPolicyNormal)
	if len(plan.DeleteLocal) != 3 {
		t.Fatalf("expected 3 local deletions, got %d", len(plan.DeleteLocal))
	}
	if plan.DeleteLocal[0] != "a.txt" || plan.DeleteLocal[1] != "m.txt" || plan.DeleteLocal[2] != "z.txt" {
		t.Fatalf("expected sorted deletions, got %v", plan.DeleteLocal)
	}
}
