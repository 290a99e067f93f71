package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var authUserID string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Show a user's Google authorization status",
	Long: `Auth reports whether the user has Google connected. When they are not
connected yet, it starts a device authorization flow and prints the
verification URL and code to complete it.

Examples:
  hearthfind auth
  hearthfind auth --user alice`,
	RunE: runAuth,
}

func init() {
	authCmd.Flags().StringVarP(&authUserID, "user", "u", "local", "user id to check")
}

func runAuth(cmd *cobra.Command, args []string) error {
	_, exporter, _, err := buildEngine()
	if err != nil {
		return err
	}

	status, err := exporter.AuthStatus(cmd.Context(), authUserID)
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}
