package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"zvision-console/internal/session"
)

func (a *app) loginCommand() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the ZVision backend",
		Long: `Authenticates with the backend and saves the token in the config file for
later commands.

Example:
  zvctl login --backend http://localhost:8000/api/v1 -u admin -p secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.gate.Authenticate(ctx, session.DiscardCookies{}, username, password); err != nil {
				return err
			}
			if err := a.storage.SetBackendURL(a.backendURL); err != nil {
				return fmt.Errorf("save backend url: %w", err)
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{"authenticated": true, "backend": a.backendURL})
			}
			fmt.Fprintf(a.out, "Logged in to %s as %s.\n", a.backendURL, username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "operator username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "operator password")
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.gate.Deauthenticate(cmd.Context(), session.DiscardCookies{}); err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{"authenticated": false})
			}
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}
