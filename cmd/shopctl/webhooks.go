package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"retail-svc/models"

	"github.com/spf13/cobra"
)

func webhooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Inspect and replay Stripe webhook deliveries",
	}
	cmd.AddCommand(webhooksFailedCmd())
	cmd.AddCommand(webhooksReplayCmd())
	return cmd
}

func webhooksFailedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List deliveries that failed or could not be classified",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := connect()
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.WebhookLog.ListByOutcome(cmd.Context(),
				[]models.WebhookOutcome{models.WebhookFailed, models.WebhookUnclassified}, limit)
			if err != nil {
				return err
			}

			return printWebhookEvents(os.Stdout, events, asJSON)
		},
	}

	cmd.Flags().IntP("limit", "n", 50, "Maximum results")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func printWebhookEvents(out io.Writer, events []models.WebhookEvent, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	if len(events) == 0 {
		_, err := fmt.Fprintln(out, "No failed deliveries.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECEIVED\tEVENT\tSESSION\tOUTCOME\tATTEMPTS\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ReceivedAt.Format(time.RFC3339), e.EventID, e.StripeSessionID, e.Outcome, e.Attempts, e.Detail)
	}
	return w.Flush()
}

func webhooksReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay [session_id]",
		Short: "Fetch a checkout session from Stripe and process it again",
		Long: `Replay drives a paid checkout session through the same dispatcher the
webhook endpoint uses. A session that was already recorded reports
"duplicate" and changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Gateway.GetSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch session %s: %w", args[0], err)
			}

			res := a.Dispatcher.Process(cmd.Context(), n)
			fmt.Printf("%s: %s", args[0], res.Outcome)
			if res.Detail != "" {
				fmt.Printf(" (%s)", res.Detail)
			}
			fmt.Println()
			if res.Outcome == models.WebhookFailed {
				return fmt.Errorf("replay of %s failed", args[0])
			}
			return nil
		},
	}
}
