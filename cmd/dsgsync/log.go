package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logCommand = &cobra.Command{
	Use:   "log",
	Short: "List snapshots oldest to newest",
	RunE: func(command *cobra.Command, arguments []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		snapshots, err := eng.Log()
		if err != nil {
			return err
		}
		for _, snapshot := range snapshots {
			previous := "-"
			if snapshot.Previous != nil {
				previous = *snapshot.Previous
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", snapshot.SnapshotID, previous, snapshot.CreatedBy, snapshot.Message)
		}
		return nil
	},
}
