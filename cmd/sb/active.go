package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var activeCmd = &cobra.Command{
	Use:     "active",
	Short:   "List the messages on the board now",
	GroupID: "board",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		msgs, err := boardClient.ListActive(context.Background(), limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(msgs)
			return nil
		}
		printActiveTable(os.Stdout, msgs, time.Now())
		return nil
	},
}

func init() {
	activeCmd.Flags().IntP("limit", "n", 0, "maximum messages (default: the board's ceiling)")
}
