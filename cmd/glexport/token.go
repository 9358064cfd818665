package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"glexport/pkg/auth"
	"glexport/pkg/ui"
)

// tokenCmd manages API tokens for the upstream service. Tokens live in
// the system keychain when one is available, otherwise in an encrypted
// file under the user config directory.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage stored API tokens",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <host>",
	Short: "Store an API token for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := strings.TrimSpace(args[0])

		fmt.Print("Token: ")
		value, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		if len(value) == 0 {
			return fmt.Errorf("empty token")
		}

		manager, err := auth.NewManager("")
		if err != nil {
			return err
		}
		if err := manager.Store(&auth.Token{
			Host:         host,
			Value:        string(value),
			LastModified: time.Now(),
		}); err != nil {
			return err
		}
		ui.PrintSuccess("token stored for " + host)
		return nil
	},
}

var tokenGetCmd = &cobra.Command{
	Use:   "get <host>",
	Short: "Check whether a token is stored for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager("")
		if err != nil {
			return err
		}
		token, err := manager.Retrieve(strings.TrimSpace(args[0]))
		if err != nil {
			ui.PrintWarning("no token stored", args[0])
			return nil
		}
		ui.PrintInfo("host", token.Host)
		ui.PrintInfo("stored", token.LastModified.Format(time.RFC3339))
		return nil
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete <host>",
	Short: "Remove the stored token for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager("")
		if err != nil {
			return err
		}
		if err := manager.Delete(strings.TrimSpace(args[0])); err != nil {
			return err
		}
		ui.PrintSuccess("token removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenGetCmd)
	tokenCmd.AddCommand(tokenDeleteCmd)
}
