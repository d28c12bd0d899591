package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HRDAG/dsg-sub001/pkg/merge"
)

var syncConfiguration struct {
	message string
	force   bool
}

var syncCommand = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the working directory with the remote and commit a new snapshot",
	RunE: func(command *cobra.Command, arguments []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		policy := merge.ConflictPolicyNormal
		if syncConfiguration.force {
			policy = merge.ConflictPolicyForce
		}
		result, err := eng.Sync(syncConfiguration.message, policy)
		if err != nil {
			return err
		}
		fmt.Printf("committed %s\n", result.SnapshotID)
		return nil
	},
}

func init() {
	flags := syncCommand.Flags()
	flags.StringVarP(&syncConfiguration.message, "message", "m", "", "snapshot message")
	flags.BoolVar(&syncConfiguration.force, "force", false, "resolve conflicting states by picking a winner instead of failing")
}
