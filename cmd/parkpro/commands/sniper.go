package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sniperCmd = &cobra.Command{
	Use:   "sniper",
	Short: "Manages snipers, which retry a reservation until a lot frees up.",
	Long: "Manages snipers, which retry a reservation until a lot frees up.\n\n" +
		"Snipers started from the command line are adopted by a running `parkpro serve`.",
}

func init() {
	sniperCmd.AddCommand(sniperStartCmd, sniperStopCmd, sniperListCmd)
	rootCmd.AddCommand(sniperCmd)
}

var sniperStartCmd = &cobra.Command{
	Use:   "start <YYYY-MM-DD> <plate>",
	Short: "Starts a sniper for one day.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		started, err := svc.StartSniper(cmd.Context(), email, args[0], args[1])
		if err != nil {
			return err
		}
		if !started {
			fmt.Printf("a sniper for %s is already running\n", args[0])
			return nil
		}
		fmt.Printf("sniper for %s is active\n", args[0])
		return nil
	},
}

var sniperStopCmd = &cobra.Command{
	Use:   "stop <YYYY-MM-DD>",
	Short: "Stops the sniper of one day.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		_, err = svc.StopSniper(cmd.Context(), email, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("sniper for %s is stopped\n", args[0])
		return nil
	},
}

var sniperListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the active snipers of the account.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		snipers, err := svc.ActiveSnipers(cmd.Context(), email)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader([]any{"Date", "Plate", "Attempts", "Last attempt", "Last error"})
		for _, s := range snipers {
			lastAttempt := ""
			if !s.LastAttempt.IsZero() {
				lastAttempt = s.LastAttempt.Format(time.Kitchen)
			}
			t.AppendRow([]any{s.Date, s.Plate, s.Attempts, lastAttempt, s.LastError})
		}
		t.Render()
		return nil
	},
}
