package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"storefront-session-agent/internal/auth"
)

func newRegisterCmd() *cobra.Command {
	var email, password, confirm, name, picturePath string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a storefront account",
		Long:  "Register a new account. Registration does not log you in; run login afterwards.",
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
			if confirm == "" {
				var err error
				confirm, err = prompt("Confirm password: ")
				if err != nil {
					return err
				}
			}

			profile := auth.Profile{
				Email:           email,
				Password:        password,
				ConfirmPassword: confirm,
				Name:            name,
			}
			if picturePath != "" {
				data, err := os.ReadFile(picturePath)
				if err != nil {
					return fmt.Errorf("read picture: %w", err)
				}
				profile.Picture = data
				profile.PictureName = filepath.Base(picturePath)
			}

			user, err := store.Register(cmd.Context(), profile)
			if err != nil {
				var fieldErr *auth.FieldError
				if errors.As(err, &fieldErr) {
					return fmt.Errorf("%s", fieldErr.Message)
				}
				if msg := store.LastError(); msg != "" {
					return errors.New(msg)
				}
				return err
			}

			fmt.Printf("Account created for %s. Run 'sessionctl login' to sign in.\n", user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted if omitted)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	cmd.Flags().StringVar(&confirm, "confirm-password", "", "Password confirmation (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&picturePath, "picture", "", "Path to a profile picture")
	return cmd
}
