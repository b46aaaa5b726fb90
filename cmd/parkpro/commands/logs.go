package commands

import (
	"time"

	"github.com/spf13/cobra"
)

var logsLimit int

func init() {
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 50, "The number of entries to show.")
	rootCmd.AddCommand(logsCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs [-n <limit>]",
	Short: "Shows the activity log of the account, newest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		entries, err := svc.Logs(cmd.Context(), email, logsLimit)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader([]any{"Time", "Message"})
		for _, entry := range entries {
			t.AppendRow([]any{entry.CreatedAt.Format(time.DateTime), entry.Message})
		}
		t.Render()
		return nil
	},
}
