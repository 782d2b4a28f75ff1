package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scoreLimit int

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Assign an LLM severity to stored messages and rebuild profiles",
	Long: `Score sends every stored message to the configured LLM for a severity
label. Messages without a valid answer are marked AMBIGUOUS and never counted
as flags. Contact profiles are rebuilt from the confirmed scores and saved
only when every stored message was scored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), llmRequired)
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		step(out, "Scoring stored messages...")
		summary, err := a.sentinel.ScoreStored(cmd.Context(), scoreLimit, func(current, total int) {
			progressBar(out, current, total, "")
		})
		if err != nil {
			return err
		}

		ok(out, "%d messages scored, %d confirmed", summary.Scored, summary.Confirmed)
		fmt.Fprintf(out, "  AMBIGUOUS rate : %s\n", yellow(fmt.Sprintf("%.1f%%", summary.AmbiguousRate*100)))
		fmt.Fprintf(out, "  Contacts       : %d\n", summary.ContactsProfiled)
		if !summary.ProfilesSaved {
			fmt.Fprintln(out, yellow("  Partial run: stored profiles were not updated. Drop --limit to save them."))
		}
		return nil
	},
}

func init() {
	scoreCmd.Flags().IntVar(&scoreLimit, "limit", 0, "score at most this many messages, oldest first (0 = all)")
	rootCmd.AddCommand(scoreCmd)
}
