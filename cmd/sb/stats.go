package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show message counts per status",
	GroupID: "board",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := boardClient.Stats(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(s)
			return nil
		}
		printStats(os.Stdout, s)
		return nil
	},
}

var viewersCmd = &cobra.Command{
	Use:     "viewers",
	Short:   "List viewers connected to the live stream",
	GroupID: "board",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vs, err := boardClient.Viewers(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(vs)
			return nil
		}
		printViewers(os.Stdout, vs)
		return nil
	},
}
