package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List and acknowledge alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's alerts, newest first",
	RunE:  runAlertsList,
}

var alertsReadCmd = &cobra.Command{
	Use:   "read <alert-id>...",
	Short: "Mark alerts as read",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAlertsRead,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsReadCmd)

	alertsListCmd.Flags().StringP("user", "u", "", "User (home) ID")
	alertsListCmd.Flags().IntP("limit", "n", 20, "Maximum alerts (0 for all)")
	alertsListCmd.Flags().Bool("unread", false, "Only unread alerts")
	_ = alertsListCmd.MarkFlagRequired("user")
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")
	unread, _ := cmd.Flags().GetBool("unread")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.monitor.Alerts(cmd.Context(), userID, limit)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTIME\tKIND\tDEVICE\tVALUE\tLIMIT\tSTATUS\tREAD\n")
	shown := 0
	for _, alert := range list {
		if unread && alert.Read {
			continue
		}
		device := alert.DeviceID
		if device == "" {
			device = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%s\t%t\n",
			alert.ID, alert.Timestamp.Format(time.RFC3339), alert.Kind, device,
			alert.Value, alert.Limit, alert.Status, alert.Read,
		)
		shown++
	}
	if shown == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No alerts.")
		return nil
	}
	return w.Flush()
}

func runAlertsRead(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, id := range args {
		if err := a.monitor.MarkRead(cmd.Context(), id); err != nil {
			return fmt.Errorf("mark alert %s read: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as read\n", id)
	}
	return nil
}
