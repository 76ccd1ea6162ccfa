package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alicanerdogan/livemarkdown/internal/identity"
)

var idCmd = &cobra.Command{
	Use:   "id PATH...",
	Short: "Print the document id derived from each path",
	Long: `Print the document id the server assigns to each path. Ids are stable
across restarts, so they can be used to build document URLs up front.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runID,
}

func init() {
	rootCmd.AddCommand(idCmd)
}

func runID(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", identity.DeriveID(path), identity.Canonicalize(path))
	}
	return nil
}
