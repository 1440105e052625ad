package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/shoutboard/internal/client"
)

var postCmd = &cobra.Command{
	Use:     "post <body...>",
	Short:   "Post a message to the board",
	GroupID: "board",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.PostMessageRequest{Body: strings.Join(args, " ")}
		if cmd.Flags().Changed("author") {
			author, _ := cmd.Flags().GetString("author")
			req.Author = &author
		}

		m, err := boardClient.PostMessage(context.Background(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(m)
			return nil
		}
		printMessage(os.Stdout, m)
		return nil
	},
}

func init() {
	postCmd.Flags().StringP("author", "a", "", "author name (anonymous when omitted)")
}
