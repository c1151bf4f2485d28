package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"storefront-session-agent/internal/auth"
	"storefront-session-agent/internal/credstore"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Long:  "Validate the persisted session against the backend and print the account it belongs to.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sess, err := credstore.Hydrate(ctx, creds)
			if err != nil {
				return fmt.Errorf("persisted session is invalid, run 'sessionctl login'")
			}
			if sess == nil {
				return auth.ErrNotAuthenticated
			}

			store.Bootstrap(sess)
			if err := store.FetchCurrentUser(ctx); err != nil {
				return err
			}
			if !store.IsAuthenticated() {
				return fmt.Errorf("session rejected by the backend, run 'sessionctl login'")
			}

			current := store.Session()
			fmt.Printf("%s (%s)", current.User.Name, current.User.Email)
			if current.User.Role != "" {
				fmt.Printf(" [%s]", current.User.Role)
			}
			fmt.Println()
			return nil
		},
	}
}
