package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
	"github.com/viharnani/smart-home-monitoring/pkg/monitor"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage per-user energy budgets",
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set a user's budget (0 disables it)",
	RunE:  runBudgetSet,
}

var budgetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user's budget and current usage",
	RunE:  runBudgetShow,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetSetCmd)
	budgetCmd.AddCommand(budgetShowCmd)

	budgetSetCmd.Flags().StringP("user", "u", "", "User (home) ID")
	budgetSetCmd.Flags().Float64P("kwh", "k", 0, "Budget in kWh")
	_ = budgetSetCmd.MarkFlagRequired("user")
	_ = budgetSetCmd.MarkFlagRequired("kwh")

	budgetShowCmd.Flags().StringP("user", "u", "", "User (home) ID")
	_ = budgetShowCmd.MarkFlagRequired("user")
}

func runBudgetSet(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	kwh, _ := cmd.Flags().GetFloat64("kwh")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.monitor.Registry().SetBudget(cmd.Context(), userID, kwh); err != nil {
		return fmt.Errorf("set budget: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Budget set:\n")
	fmt.Fprintf(out, "  User:   %s\n", userID)
	fmt.Fprintf(out, "  Budget: %.2f kWh\n", kwh)

	return nil
}

func runBudgetShow(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	budget, err := a.monitor.Registry().Budget(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("get budget: %w", err)
	}

	out := cmd.OutOrStdout()
	if budget == 0 {
		fmt.Fprintf(out, "No budget configured for %s. Use 'energymon budget set' to create one.\n", userID)
		return nil
	}

	window := a.cfg.Monitor.BudgetWindow
	if window <= 0 {
		window = monitor.DefaultBudgetWindow
	}
	recent, err := a.monitor.Aggregator().SumRecent(cmd.Context(), userID, window)
	if err != nil {
		return fmt.Errorf("sum recent readings: %w", err)
	}
	agg := a.monitor.Aggregator()
	month, err := agg.Sum(cmd.Context(), userID, "", model.MonthWindow(time.Now(), agg.Location()))
	if err != nil {
		return fmt.Errorf("sum month: %w", err)
	}

	status := ""
	if recent.Sum > budget {
		status = " [EXCEEDED]"
	}
	fmt.Fprintf(out, "User:        %s\n", userID)
	fmt.Fprintf(out, "Budget:      %.2f kWh\n", budget)
	fmt.Fprintf(out, "Last %d:     %.2f kWh (%d readings)%s\n", window, recent.Sum, recent.Count, status)
	fmt.Fprintf(out, "This month:  %.2f kWh\n", month.Sum)

	return nil
}
