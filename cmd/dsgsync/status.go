package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show the pending sync plan without mutating anything",
	RunE: func(command *cobra.Command, arguments []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		summary, err := eng.Status()
		if err != nil {
			return err
		}
		fmt.Printf("plan kind: %s\n", planKindLabel(summary.Kind))
		fmt.Printf("uploads: %d, downloads: %d, delete-local: %d, delete-remote: %d, cache-updates: %d\n",
			summary.Uploads, summary.Downloads, summary.DeleteLocal, summary.DeleteRemote, summary.CacheUpdates)
		for _, diagnostic := range summary.Diagnostics {
			fmt.Printf("diagnostic: %s: %v\n", diagnostic.Path, diagnostic.Err)
		}
		for _, conflict := range summary.Conflicts {
			fmt.Printf("conflict: %s (%v)\n", conflict.Path, conflict.State)
		}
		return nil
	},
}
