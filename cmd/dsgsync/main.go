// Command dsgsync is a thin command-line front end over pkg/engine. It
// exists so every core operation (status/init/clone/sync/log/blame) is
// reachable from a binary; its only flags select the working directory,
// the remote, the acting user, and path normalization, plus a snapshot
// message (init, sync) and the force policy (sync).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/engine"
	"github.com/HRDAG/dsg-sub001/pkg/merge"
	"github.com/HRDAG/dsg-sub001/pkg/remote"
	"github.com/HRDAG/dsg-sub001/pkg/txn"
)

// planKindLabel renders a merge.PlanKind the way a person would ask for it
// on a command line, rather than as a bare integer.
func planKindLabel(kind merge.PlanKind) string {
	switch kind {
	case merge.PlanKindInit:
		return "init"
	case merge.PlanKindClone:
		return "clone"
	default:
		return "sync"
	}
}

var rootConfiguration struct {
	localRoot  string
	remoteRoot string
	user       string
	normalize  bool
}

var rootCommand = &cobra.Command{
	Use:           "dsgsync",
	Short:         "Content-addressed sync engine for research data repositories",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.StringVar(&rootConfiguration.localRoot, "local", ".", "working directory")
	flags.StringVar(&rootConfiguration.remoteRoot, "remote", "", "remote repository path (filesystem-backed)")
	flags.StringVar(&rootConfiguration.user, "user", os.Getenv("USER"), "identity attributed to new content and snapshots")
	flags.BoolVar(&rootConfiguration.normalize, "normalize", true, "normalize paths during scanning; disabling reports a validation error instead of repairing them")

	rootCommand.AddCommand(
		statusCommand,
		initCommand,
		cloneCommand,
		syncCommand,
		logCommand,
		blameCommand,
	)
}

// newEngine wires an Engine against a filesystem-mounted remote reached
// directly over the local filesystem, the same backend
// pkg/txn/remote_staged.go and pkg/txn/transport_local.go are built for.
// A networked remote (SSH, S3, HTTP) would substitute a different
// txn.RemoteFilesystem/txn.Transport pair here without any other change.
func newEngine() (*engine.Engine, error) {
	if rootConfiguration.remoteRoot == "" {
		return nil, fmt.Errorf("--remote is required")
	}
	if _, err := dsg.ControlDirectory(rootConfiguration.remoteRoot); err != nil {
		return nil, fmt.Errorf("preparing remote control directory: %w", err)
	}
	lock := remote.LockAdapter{Lock: remote.NewFileLock(rootConfiguration.remoteRoot)}
	transportStaging, err := dsg.ControlDirectory(rootConfiguration.remoteRoot, "transport")
	if err != nil {
		return nil, fmt.Errorf("preparing transport staging directory: %w", err)
	}
	return engine.New(engine.Config{
		LocalRoot:  rootConfiguration.localRoot,
		RemoteRoot: rootConfiguration.remoteRoot,
		Remote:     txn.NewStagedRemoteFilesystem(rootConfiguration.remoteRoot),
		Transport:  txn.NewLocalTransport(transportStaging),
		Lock:       lock,
		User:       rootConfiguration.user,
		Normalize:  rootConfiguration.normalize,
	}), nil
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dsgsync:", err)
		os.Exit(1)
	}
}
