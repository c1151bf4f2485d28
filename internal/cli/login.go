package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"storefront-session-agent/internal/auth"
)

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the storefront backend",
		Long:  "Log in with email and password. Credentials are persisted locally so the agent and sibling commands pick them up.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				var err error
				email, err = prompt("Email: ")
				if err != nil {
					return err
				}
			}
			if password == "" {
				var err error
				password, err = prompt("Password: ")
				if err != nil {
					return err
				}
			}

			if err := store.Login(cmd.Context(), email, password); err != nil {
				var fieldErr *auth.FieldError
				if errors.As(err, &fieldErr) {
					return fmt.Errorf("%s", fieldErr.Message)
				}
				if msg := store.LastError(); msg != "" {
					return errors.New(msg)
				}
				return err
			}

			sess := store.Session()
			fmt.Printf("Logged in as %s (%s)\n", sess.User.Name, sess.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted if omitted)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	return cmd
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
