package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dakshaarvind-fetch/RealEstate/internal/agent"
	"github.com/dakshaarvind-fetch/RealEstate/internal/workflow"
)

var (
	searchUserID string
	searchFollow bool
)

var searchCmd = &cobra.Command{
	Use:   "search <request>",
	Short: "Run one search locally and print the result",
	Long: `Search runs a single request through the full workflow without any
transport: parse the request, drive the planner loop, and print the
summary.

Examples:
  hearthfind search "3 bed house for sale in Austin TX under $400k"
  hearthfind search --follow-up "what about 4 beds" --user alice
  hearthfind search "/google-auth" --user alice`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchUserID, "user", "u", "local", "user id keying the session")
	searchCmd.Flags().BoolVar(&searchFollow, "follow-up", false, "resume the user's previous session")
}

func runSearch(cmd *cobra.Command, args []string) error {
	engine, exporter, _, err := buildEngine()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	request := args[0]
	if agent.IsAuthCommand(request) {
		status, err := exporter.AuthStatus(ctx, searchUserID)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	}

	in := workflow.Input{UserRequest: request, UserID: searchUserID}
	run := engine.Run
	if searchFollow {
		run = engine.Resume
	}

	result, err := run(ctx, in)
	if err != nil {
		return err
	}

	fmt.Println(result.Summary)
	if result.SheetURL != "" {
		fmt.Printf("\nResults sheet: %s\n", result.SheetURL)
	}
	return nil
}
