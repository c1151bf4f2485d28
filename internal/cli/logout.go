package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"storefront-session-agent/internal/credstore"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the persisted session",
		Long:  "Log out of the backend and remove the locally persisted credentials. Safe to run when already logged out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sess, err := credstore.Hydrate(ctx, creds)
			if err != nil {
				logger.Debug("discarded invalid persisted credentials", "error", err)
			}
			if sess != nil {
				store.Bootstrap(sess)
			}

			store.Logout(ctx)
			fmt.Println("Logged out.")
			return nil
		},
	}
}
