package merge

// Action is the operation the coordinator must perform for a path, derived
// from its State (spec §4.3.2).
type Action int

const (
	// ActionNoop means the path requires no work.
	ActionNoop Action = iota
	// ActionDownload means the remote's content should replace local and
	// cache.
	ActionDownload
	// ActionUpload means local's content should replace cache and remote.
	ActionUpload
	// ActionDeleteLocal means the path should be removed from the working
	// directory and cache.
	ActionDeleteLocal
	// ActionDeleteRemote means the path should be removed from the remote
	// and cache.
	ActionDeleteRemote
	// ActionRefreshCache means only the cache record needs updating, to
	// match local and remote which already agree.
	ActionRefreshCache
	// ActionConflict means the path cannot be resolved automatically.
	ActionConflict
)

func (a Action) String() string {
	switch a {
	case ActionNoop:
		return "noop"
	case ActionDownload:
		return "download"
	case ActionUpload:
		return "upload"
	case ActionDeleteLocal:
		return "delete_local"
	case ActionDeleteRemote:
		return "delete_remote"
	case ActionRefreshCache:
		return "refresh_cache"
	case ActionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// ConflictPolicy selects how conflicting states are resolved (spec §4.3.3).
type ConflictPolicy int

const (
	// ConflictPolicyNormal aborts the sync, reporting every conflicting
	// path.
	ConflictPolicyNormal ConflictPolicy = iota
	// ConflictPolicyForce resolves conflicts automatically: local wins for
	// S5/S9/S11, remote wins for S7.
	ConflictPolicyForce
)

// ActionFor maps a state to the action the coordinator should take, under
// the given conflict policy (spec §4.3.2, §4.3.3).
func ActionFor(state State, policy ConflictPolicy) Action {
	switch state {
	case S1:
		return ActionNoop
	case S2, S8, S12:
		return ActionDownload
	case S4, S14:
		return ActionUpload
	case S3:
		return ActionRefreshCache
	case S6:
		return ActionDeleteRemote
	case S10, S13:
		return ActionDeleteLocal
	case S5, S9, S11:
		if policy == ConflictPolicyForce {
			// Local wins: local content is uploaded and the cache record
			// is refreshed to match.
			return ActionUpload
		}
		return ActionConflict
	case S7:
		if policy == ConflictPolicyForce {
			// Remote wins: the deleted local copy is re-created.
			return ActionDownload
		}
		return ActionConflict
	default:
		return ActionConflict
	}
}
