package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Generate and inspect consumption forecasts",
}

var forecastRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate forecasts for one device or for every device",
	RunE:  runForecastRun,
}

var forecastListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's latest forecasts",
	RunE:  runForecastList,
}

func init() {
	rootCmd.AddCommand(forecastCmd)
	forecastCmd.AddCommand(forecastRunCmd)
	forecastCmd.AddCommand(forecastListCmd)

	forecastRunCmd.Flags().StringP("user", "u", "", "User (home) ID")
	forecastRunCmd.Flags().StringP("device", "d", "", "Device ID")
	forecastRunCmd.Flags().Bool("all", false, "Forecast every device that has reported readings")

	forecastListCmd.Flags().StringP("user", "u", "", "User (home) ID")
	forecastListCmd.Flags().StringP("device", "d", "", "Only this device")
	forecastListCmd.Flags().IntP("limit", "n", 0, "Maximum forecasts (default 10)")
	_ = forecastListCmd.MarkFlagRequired("user")
}

func runForecastRun(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	deviceID, _ := cmd.Flags().GetString("device")
	all, _ := cmd.Flags().GetBool("all")

	if !all && (userID == "" || deviceID == "") {
		return errors.New("either --all or both --user and --device are required")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if all {
		n, err := a.engine.GenerateAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("generate forecasts: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %d forecasts\n", n)
		return nil
	}

	p, err := a.engine.Generate(cmd.Context(), userID, deviceID)
	if err != nil {
		return fmt.Errorf("generate forecast: %w", err)
	}
	printPrediction(cmd.OutOrStdout(), p)
	return nil
}

func printPrediction(out io.Writer, p *model.Prediction) {
	fmt.Fprintf(out, "Forecast for %s/%s:\n", p.UserID, p.DeviceID)
	fmt.Fprintf(out, "  Predicted:  %.3f kWh\n", p.PredictedConsumption)
	fmt.Fprintf(out, "  Confidence: %.0f%%\n", p.Confidence*100)
	fmt.Fprintf(out, "  Samples:    %d\n", p.SampleSize)
	fmt.Fprintf(out, "  Peak hours: %s\n", hours(p.PeakHours))
	if p.Anomalous {
		fmt.Fprintf(out, "  Anomalous readings detected\n")
	}
	for _, rec := range p.Recommendations {
		fmt.Fprintf(out, "  [%s] %s (save ~%.2f kWh)\n", rec.Kind, rec.Message, rec.PotentialSavings)
	}
}

func runForecastList(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	deviceID, _ := cmd.Flags().GetString("device")
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.engine.Latest(cmd.Context(), userID, deviceID, limit)
	if err != nil {
		return fmt.Errorf("list forecasts: %w", err)
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No forecasts. Use 'energymon forecast run' to generate one.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIME\tDEVICE\tPREDICTED\tCONFIDENCE\tSAMPLES\tPEAK HOURS\tANOMALOUS\n")
	for _, p := range list {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.0f%%\t%d\t%s\t%t\n",
			p.Timestamp.Format(time.RFC3339), p.DeviceID, p.PredictedConsumption,
			p.Confidence*100, p.SampleSize, hours(p.PeakHours), p.Anomalous,
		)
	}
	return w.Flush()
}

func hours(hs []int) string {
	if len(hs) == 0 {
		return "-"
	}
	parts := make([]string, len(hs))
	for i, h := range hs {
		parts[i] = fmt.Sprintf("%d:00", h)
	}
	return strings.Join(parts, ", ")
}
