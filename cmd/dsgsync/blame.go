package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var blameCommand = &cobra.Command{
	Use:   "blame <path>",
	Short: "Show the last snapshot that touched a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(command *cobra.Command, arguments []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		snapshotID, err := eng.Blame(arguments[0])
		if err != nil {
			return err
		}
		fmt.Println(snapshotID)
		return nil
	},
}
