package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initConfiguration struct {
	message string
}

var initCommand = &cobra.Command{
	Use:   "init",
	Short: "Create a new repository from the contents of the working directory",
	RunE: func(command *cobra.Command, arguments []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		result, err := eng.Init(initConfiguration.message)
		if err != nil {
			return err
		}
		fmt.Printf("created %s\n", result.SnapshotID)
		return nil
	},
}

func init() {
	initCommand.Flags().StringVarP(&initConfiguration.message, "message", "m", "", "snapshot message")
}
