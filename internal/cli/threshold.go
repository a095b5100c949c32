package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

var thresholdCmd = &cobra.Command{
	Use:   "threshold",
	Short: "Manage per-device consumption limits",
}

var thresholdSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set a device's daily and optional weekly and monthly limits",
	RunE:  runThresholdSet,
}

var thresholdListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's device limits",
	RunE:  runThresholdList,
}

func init() {
	rootCmd.AddCommand(thresholdCmd)
	thresholdCmd.AddCommand(thresholdSetCmd)
	thresholdCmd.AddCommand(thresholdListCmd)

	thresholdSetCmd.Flags().StringP("user", "u", "", "User (home) ID")
	thresholdSetCmd.Flags().StringP("device", "d", "", "Device ID")
	thresholdSetCmd.Flags().Float64("daily", 0, "Daily limit in kWh")
	thresholdSetCmd.Flags().Float64("weekly", 0, "Weekly limit in kWh (optional)")
	thresholdSetCmd.Flags().Float64("monthly", 0, "Monthly limit in kWh (optional)")
	_ = thresholdSetCmd.MarkFlagRequired("user")
	_ = thresholdSetCmd.MarkFlagRequired("device")
	_ = thresholdSetCmd.MarkFlagRequired("daily")

	thresholdListCmd.Flags().StringP("user", "u", "", "User (home) ID")
	_ = thresholdListCmd.MarkFlagRequired("user")
}

func runThresholdSet(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	deviceID, _ := cmd.Flags().GetString("device")
	daily, _ := cmd.Flags().GetFloat64("daily")

	th := &model.Threshold{UserID: userID, DeviceID: deviceID, DailyLimit: daily}
	if cmd.Flags().Changed("weekly") {
		weekly, _ := cmd.Flags().GetFloat64("weekly")
		th.WeeklyLimit = &weekly
	}
	if cmd.Flags().Changed("monthly") {
		monthly, _ := cmd.Flags().GetFloat64("monthly")
		th.MonthlyLimit = &monthly
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.monitor.Registry().SetThreshold(cmd.Context(), th); err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Threshold set:\n")
	fmt.Fprintf(out, "  User:    %s\n", userID)
	fmt.Fprintf(out, "  Device:  %s\n", deviceID)
	fmt.Fprintf(out, "  Daily:   %.2f kWh\n", th.DailyLimit)
	fmt.Fprintf(out, "  Weekly:  %s\n", optionalKWh(th.WeeklyLimit))
	fmt.Fprintf(out, "  Monthly: %s\n", optionalKWh(th.MonthlyLimit))

	return nil
}

func runThresholdList(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.monitor.Registry().Thresholds(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("list thresholds: %w", err)
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No thresholds configured. Use 'energymon threshold set' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DEVICE\tDAILY\tWEEKLY\tMONTHLY\n")
	for _, th := range list {
		fmt.Fprintf(w, "%s\t%.2f kWh\t%s\t%s\n",
			th.DeviceID, th.DailyLimit, optionalKWh(th.WeeklyLimit), optionalKWh(th.MonthlyLimit),
		)
	}
	return w.Flush()
}

func optionalKWh(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f kWh", *v)
}
