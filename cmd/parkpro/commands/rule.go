package commands

import (
	"fmt"
	"strconv"
	"time"

	"parkpro-backend/internal/rules"

	"github.com/spf13/cobra"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manages recurring reservation rules.",
}

var (
	ruleID     int64
	ruleName   string
	rulePlate  string
	ruleDays   []int
	ruleMonths []int
)

func init() {
	ruleSaveCmd.Flags().Int64Var(&ruleID, "id", 0, "Edit the rule with this id instead of creating one.")
	ruleSaveCmd.Flags().StringVar(&ruleName, "name", "", "A name for the rule.")
	ruleSaveCmd.Flags().StringVar(&rulePlate, "plate", "", "The plate to reserve for.")
	ruleSaveCmd.Flags().IntSliceVar(&ruleDays, "days", nil, "Weekdays to reserve, 0 = sunday.")
	ruleSaveCmd.Flags().IntSliceVar(&ruleMonths, "months", nil, "Months to reserve, 1 = january.")
	ruleSaveCmd.MarkFlagRequired("plate")
	ruleSaveCmd.MarkFlagRequired("days")
	ruleSaveCmd.MarkFlagRequired("months")

	ruleCmd.AddCommand(ruleSaveCmd, ruleDeleteCmd, ruleListCmd, ruleRunCmd)
	rootCmd.AddCommand(ruleCmd)
}

func weekdayName(day int) string {
	return time.Weekday(day).String()[:3]
}

func monthName(month int) string {
	return time.Month(month).String()[:3]
}

func renderOutcomes(title string, outcomes []rules.Outcome) {
	t := newTable()
	t.SetTitle(title)
	t.AppendHeader([]any{"Date", "Result", "Lot", "Message"})
	for _, outcome := range outcomes {
		result := "failed"
		switch {
		case outcome.AlreadyReserved:
			result = "already reserved"
		case outcome.Success:
			result = "reserved"
		case outcome.Sniper:
			result = "sniping"
		}
		t.AppendRow([]any{outcome.Date, result, outcome.LotID, outcome.Message})
	}
	t.Render()
}

var ruleSaveCmd = &cobra.Command{
	Use:   "save --plate <plate> --days 1,3 --months 1,2 [--name <name>] [--id <id>]",
	Short: "Creates or edits a rule and runs it right away.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		rule, outcomes, err := svc.SaveRule(cmd.Context(), rules.Rule{
			ID:     ruleID,
			Email:  email,
			Days:   ruleDays,
			Months: ruleMonths,
			Plate:  rulePlate,
			Name:   ruleName,
		})
		if err != nil {
			return err
		}
		renderOutcomes(fmt.Sprintf("rule %d %s", rule.ID, rule.Name), outcomes)
		return nil
	},
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Deletes a rule and stops the snipers no other rule covers.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("rule id: %w", err)
		}
		stopped, err := svc.DeleteRule(cmd.Context(), email, id)
		if err != nil {
			return err
		}
		fmt.Printf("deleted rule %d\n", id)
		for _, date := range stopped {
			fmt.Printf("stopped sniper for %s\n", date)
		}
		return nil
	},
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the rules of the account.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		list, err := svc.ListRules(cmd.Context(), email)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader([]any{"ID", "Name", "Days", "Months", "Plate"})
		for _, rule := range list {
			t.AppendRow([]any{
				rule.ID,
				rule.Name,
				joinInts(rule.Days, weekdayName),
				joinInts(rule.Months, monthName),
				rule.Plate,
			})
		}
		t.Render()
		return nil
	},
}

var ruleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs every rule of the account now.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		runs, err := svc.RunRules(cmd.Context(), email)
		for _, run := range runs {
			renderOutcomes(fmt.Sprintf("rule %d %s", run.Rule.ID, run.Rule.Name), run.Outcomes)
		}
		return err
	},
}
