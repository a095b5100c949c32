package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/viharnani/smart-home-monitoring/pkg/monitor"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Manage budgets and thresholds from a YAML file",
}

var limitsApplyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Validate a limits file and apply every budget and threshold in it",
	Long: `Apply reads a YAML file of budgets and device thresholds:

  budgets:
    - user_id: home-1
      budget_kwh: 40
  thresholds:
    - user_id: home-1
      device_id: heater
      daily_limit: 5
      monthly_limit: 120

Every entry is validated before anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runLimitsApply,
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	limitsCmd.AddCommand(limitsApplyCmd)
}

func runLimitsApply(cmd *cobra.Command, args []string) error {
	limits, err := monitor.LoadLimits(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.monitor.Registry().Apply(cmd.Context(), limits); err != nil {
		return fmt.Errorf("apply limits: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Applied %d budgets and %d thresholds from %s\n",
		len(limits.Budgets), len(limits.Thresholds), args[0])
	return nil
}
