package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/shoutboard/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check server health",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := boardClient.Health(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(h)
		} else {
			status := ui.RenderAccent(h.Status)
			if !h.OK() {
				status = ui.RenderError(h.Status)
			}
			fmt.Printf("Status: %s\n", status)
			names := make([]string, 0, len(h.Checks))
			for name := range h.Checks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %-8s %s\n", name+":", h.Checks[name])
			}
		}
		if !h.OK() {
			return fmt.Errorf("server is %s", h.Status)
		}
		return nil
	},
}
