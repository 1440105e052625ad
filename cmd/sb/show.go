package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Short:   "Show a message and its display history",
	GroupID: "board",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		m, err := boardClient.GetMessage(ctx, args[0])
		if err != nil {
			return err
		}
		evs, err := boardClient.GetEvents(ctx, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]any{"message": m, "events": evs})
			return nil
		}
		printMessage(os.Stdout, m)
		fmt.Println()
		printEvents(os.Stdout, evs)
		return nil
	},
}
