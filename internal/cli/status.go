package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storefront-session-agent/internal/credstore"
	"storefront-session-agent/internal/token"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Inspect the persisted session without calling the backend",
		Long:  "Print the locally persisted session and, for JWT credentials, the token validity window. Works offline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			snap, err := credstore.Read(ctx, creds)
			if err != nil {
				return fmt.Errorf("read credentials: %w", err)
			}
			if snap.User == nil && snap.Token == "" {
				fmt.Println("No persisted session.")
				return nil
			}
			if snap.User == nil || snap.Token == "" {
				fmt.Println("Persisted session is partial; it will be discarded on next login.")
				return nil
			}

			fmt.Printf("User:          %s (%s)\n", snap.User.Name, snap.User.Email)
			fmt.Printf("Refresh token: %v\n", snap.RefreshToken != "")

			info, err := token.Inspect(snap.Token)
			if errors.Is(err, token.ErrNotAToken) {
				fmt.Println("Token:         opaque (no readable claims)")
				return nil
			}
			if err != nil {
				return err
			}

			if !info.IssuedAt.IsZero() {
				fmt.Printf("Issued:        %s\n", info.IssuedAt.Local().Format(time.RFC1123))
			}
			if info.ExpiresAt.IsZero() {
				fmt.Println("Expires:       no exp claim")
				return nil
			}
			fmt.Printf("Expires:       %s\n", info.ExpiresAt.Local().Format(time.RFC1123))
			if token.ExpiresWithin(snap.Token, 0, time.Now()) {
				fmt.Println("Token has expired; the next request will attempt a refresh.")
			} else if token.ExpiresWithin(snap.Token, 5*time.Minute, time.Now()) {
				fmt.Println("Token expires soon.")
			}
			return nil
		},
	}
}
