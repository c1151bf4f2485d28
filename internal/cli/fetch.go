package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"storefront-session-agent/internal/transport"
)

func newFetchCmd() *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "fetch PATH",
		Short: "Call a protected backend endpoint",
		Long:  "Issue an authenticated request against the backend. The stored token is attached automatically and refreshed once on a 401.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expired := false
			httpClient := transport.NewClient(creds,
				func(ctx context.Context, refreshToken string) (string, string, error) {
					p, err := client.Refresh(ctx, refreshToken)
					if err != nil {
						return "", "", err
					}
					return p.Token, p.RefreshToken, nil
				},
				func() { expired = true },
				logger,
			)

			path := args[0]
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			req, err := http.NewRequestWithContext(cmd.Context(), method, cfg.APIBaseURL+path, nil)
			if err != nil {
				return err
			}

			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if expired {
				return fmt.Errorf("session expired, run 'sessionctl login'")
			}
			if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
				return err
			}
			fmt.Println()
			if resp.StatusCode >= 300 {
				return fmt.Errorf("backend returned %d", resp.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&method, "method", http.MethodGet, "HTTP method")
	return cmd
}
