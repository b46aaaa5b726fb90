package commands

import (
	"fmt"
	"slices"
	"strconv"

	"parkpro-backend/internal/portal"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(calendarCmd)
	rootCmd.AddCommand(refreshCmd)
}

func dayState(calendar portal.Calendar, day int) (string, string) {
	for _, reserved := range calendar.Reserved {
		if reserved.Day == day {
			if !reserved.Editable {
				return "reserved (locked)", reserved.LotID
			}
			return "reserved", reserved.LotID
		}
	}
	switch {
	case slices.Contains(calendar.Locked, day):
		return "locked", ""
	case slices.Contains(calendar.Full, day):
		return "full", ""
	case slices.Contains(calendar.Free, day):
		return "free", ""
	}
	return "", ""
}

var calendarCmd = &cobra.Command{
	Use:   "calendar [YYYY-MM]",
	Short: "Shows which days of a month are reserved, free or full.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		year, month, err := parseMonth(svc, args)
		if err != nil {
			return err
		}
		calendar, err := svc.Calendar(cmd.Context(), email, year, month)
		if err != nil {
			return err
		}

		t := newTable()
		t.SetTitle(fmt.Sprintf("%04d-%02d, ticket %s, plate %s", year, month, calendar.RealTicketID, calendar.ActivePlate))
		t.AppendHeader([]any{"Day", "State", "Lot"})
		for day := 1; day <= portal.DaysIn(year, month); day++ {
			state, lot := dayState(calendar, day)
			if state == "" {
				continue
			}
			t.AppendRow([]any{day, state, lot})
		}
		t.Render()
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [YYYY-MM]",
	Short: "Asks the portal which days of a month have no free lot.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		year, month, err := parseMonth(svc, args)
		if err != nil {
			return err
		}
		full, err := svc.Refresh(cmd.Context(), email, year, month)
		if err != nil {
			return err
		}
		if len(full) == 0 {
			fmt.Println("no full days")
			return nil
		}
		fmt.Printf("full days of %04d-%02d: %s\n", year, month, joinInts(full, strconv.Itoa))
		return nil
	},
}
