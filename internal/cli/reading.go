package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

var readingCmd = &cobra.Command{
	Use:   "reading",
	Short: "Record and list device readings",
}

var readingAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a device reading and evaluate it against the limits",
	RunE:  runReadingAdd,
}

var readingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's most recent readings",
	RunE:  runReadingList,
}

var readingAggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Show hourly or daily consumption buckets with average voltage and current",
	RunE:  runReadingAggregate,
}

func init() {
	rootCmd.AddCommand(readingCmd)
	readingCmd.AddCommand(readingAddCmd)
	readingCmd.AddCommand(readingListCmd)
	readingCmd.AddCommand(readingAggregateCmd)

	readingAddCmd.Flags().StringP("user", "u", "", "User (home) ID")
	readingAddCmd.Flags().StringP("device", "d", "", "Device ID")
	readingAddCmd.Flags().Float64P("kwh", "k", 0, "Consumption in kWh")
	readingAddCmd.Flags().Float64("voltage", 0, "Voltage in V")
	readingAddCmd.Flags().Float64("current", 0, "Current in A")
	readingAddCmd.Flags().String("at", "", "Reading time, RFC 3339 (default now)")
	_ = readingAddCmd.MarkFlagRequired("user")
	_ = readingAddCmd.MarkFlagRequired("device")
	_ = readingAddCmd.MarkFlagRequired("kwh")

	readingListCmd.Flags().StringP("user", "u", "", "User (home) ID")
	readingListCmd.Flags().StringP("device", "d", "", "Only this device")
	readingListCmd.Flags().IntP("limit", "n", 0, "Maximum readings (default 100)")
	readingListCmd.Flags().String("start", "", "Only readings at or after this time, RFC 3339")
	readingListCmd.Flags().String("end", "", "Only readings before this time, RFC 3339")
	_ = readingListCmd.MarkFlagRequired("user")

	readingAggregateCmd.Flags().StringP("user", "u", "", "User (home) ID")
	readingAggregateCmd.Flags().StringP("device", "d", "", "Only this device")
	readingAggregateCmd.Flags().StringP("interval", "i", "hour", "Bucket width: hour or day")
	readingAggregateCmd.Flags().IntP("limit", "n", 0, "Maximum buckets (default 24)")
	_ = readingAggregateCmd.MarkFlagRequired("user")
}

func parseTimeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --%s: %w", name, err)
	}
	return t.UTC(), nil
}

func runReadingAdd(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	deviceID, _ := cmd.Flags().GetString("device")
	kwh, _ := cmd.Flags().GetFloat64("kwh")
	voltage, _ := cmd.Flags().GetFloat64("voltage")
	current, _ := cmd.Flags().GetFloat64("current")
	at, err := parseTimeFlag(cmd, "at")
	if err != nil {
		return err
	}

	reading := &model.Reading{
		UserID:         userID,
		DeviceID:       deviceID,
		ConsumptionKWh: kwh,
		Voltage:        voltage,
		Current:        current,
		Timestamp:      at,
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	raised, err := a.monitor.Ingest(cmd.Context(), reading)
	if err != nil {
		return fmt.Errorf("record reading: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recorded reading:\n")
	fmt.Fprintf(out, "  ID:          %s\n", reading.ID)
	fmt.Fprintf(out, "  User:        %s\n", reading.UserID)
	fmt.Fprintf(out, "  Device:      %s\n", reading.DeviceID)
	fmt.Fprintf(out, "  Consumption: %.3f kWh\n", reading.ConsumptionKWh)
	fmt.Fprintf(out, "  Time:        %s\n", reading.Timestamp.Format(time.RFC3339))

	for _, alert := range raised {
		fmt.Fprintf(out, "ALERT [%s] %s (%s)\n", alert.Kind, alert.Message, alert.Status)
	}

	return nil
}

func runReadingList(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	deviceID, _ := cmd.Flags().GetString("device")
	limit, _ := cmd.Flags().GetInt("limit")
	start, err := parseTimeFlag(cmd, "start")
	if err != nil {
		return err
	}
	end, err := parseTimeFlag(cmd, "end")
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var readings []model.Reading
	if start.IsZero() && end.IsZero() {
		readings, err = a.monitor.Readings(cmd.Context(), userID, deviceID, limit)
	} else {
		readings, err = a.monitor.ReadingsBetween(cmd.Context(), userID, deviceID, start, end, limit)
	}
	if err != nil {
		return fmt.Errorf("list readings: %w", err)
	}

	if len(readings) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No readings recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIME\tDEVICE\tKWH\tVOLTAGE\tCURRENT\n")
	for _, r := range readings {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.1f\t%.2f\n",
			r.Timestamp.Format(time.RFC3339), r.DeviceID, r.ConsumptionKWh, r.Voltage, r.Current,
		)
	}
	return w.Flush()
}

func runReadingAggregate(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	deviceID, _ := cmd.Flags().GetString("device")
	rawInterval, _ := cmd.Flags().GetString("interval")
	limit, _ := cmd.Flags().GetInt("limit")

	interval, err := model.ParseInterval(rawInterval)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	buckets, err := a.monitor.Aggregate(cmd.Context(), userID, deviceID, interval, limit)
	if err != nil {
		return fmt.Errorf("aggregate readings: %w", err)
	}

	if len(buckets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No readings recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "START\tKWH\tAVG VOLTAGE\tAVG CURRENT\tREADINGS\n")
	for _, b := range buckets {
		fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\t%d\n",
			b.Start.Format(time.RFC3339), b.TotalConsumption,
			optionalAvg(b.AvgVoltage, "%.1f V"), optionalAvg(b.AvgCurrent, "%.2f A"), b.Count,
		)
	}
	return w.Flush()
}

func optionalAvg(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
