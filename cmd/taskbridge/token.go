package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"taskbridge/internal/credentials"
)

// newTokenCmd creates the token command group for keyring management.
func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the remote API token in the OS keyring",
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the remote API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !credentials.KeyringAvailable() {
				return fmt.Errorf("OS keyring is not available; use the TASKBRIDGE_REMOTE_TOKEN environment variable instead")
			}

			fmt.Fprint(os.Stderr, "API token: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
			token := strings.TrimSpace(string(raw))
			if token == "" {
				return fmt.Errorf("empty token")
			}

			if err := credentials.SetToken("remote", token); err != nil {
				return err
			}
			fmt.Println("Token stored in keyring.")
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentials.DeleteToken("remote"); err != nil {
				return err
			}
			fmt.Println("Token removed from keyring.")
			return nil
		},
	}

	tokenCmd.AddCommand(setCmd, deleteCmd)
	return tokenCmd
}
