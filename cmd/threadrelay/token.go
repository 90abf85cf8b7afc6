package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coralward/threadrelay/db"
	"github.com/coralward/threadrelay/store"
)

// token add exists for workspaces provisioned out of band, matching what the
// OAuth callback does for self-serve installs.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage workspace bot tokens",
	}
	cmd.AddCommand(newTokenAddCmd())
	return cmd
}

func newTokenAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <team-id> <bot-token>",
		Short: "Insert or replace the bot token for a workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := db.Open(dbConfigFromViper())
			if err != nil {
				return err
			}
			creds := store.NewCredentials(gdb)
			if err := creds.Upsert(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "token stored for team %s\n", args[0])
			return nil
		},
	}
}
