package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cloneCommand = &cobra.Command{
	Use:   "clone",
	Short: "Populate the working directory from the remote's current snapshot",
	RunE: func(command *cobra.Command, arguments []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		result, err := eng.Clone()
		if err != nil {
			return err
		}
		fmt.Printf("cloned %s\n", result.SnapshotID)
		return nil
	},
}
