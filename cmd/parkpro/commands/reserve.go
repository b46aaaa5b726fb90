package commands

import (
	"fmt"

	"parkpro-backend/internal/portal"

	"github.com/spf13/cobra"
)

var reserveDelete bool

func init() {
	reserveCmd.Flags().BoolVarP(&reserveDelete, "delete", "d", false, "Cancel the reservation instead.")
	rootCmd.AddCommand(reserveCmd)
}

var reserveCmd = &cobra.Command{
	Use:   "reserve <YYYY-MM-DD> <plate> [--delete]",
	Short: "Reserves (or cancels) a lot for one day right now.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		command := portal.CommandAdd
		if reserveDelete {
			command = portal.CommandDelete
		}

		result, err := svc.InstantReserve(cmd.Context(), email, args[0], args[1], command)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("portal refused: %s", result.Message)
		}
		switch {
		case result.AlreadyReserved:
			fmt.Printf("%s was already reserved\n", args[0])
		case result.LotID != "":
			fmt.Printf("%s: %s (lot %s)\n", args[0], result.Message, result.LotID)
		default:
			fmt.Printf("%s: %s\n", args[0], result.Message)
		}
		return nil
	},
}
