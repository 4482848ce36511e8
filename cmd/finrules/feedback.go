package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/finrules/internal/cli"
	"github.com/Veraticus/finrules/internal/feedback"
	"github.com/Veraticus/finrules/internal/model"
)

func printStats(out io.Writer, stats []model.FeedbackStat) error {
	if len(stats) == 0 {
		fmt.Fprintln(out, cli.InfoStyle.Render("No feedback recorded."))
		return nil
	}
	table := cli.NewTable(out, "Merchant", "Category", "Accepted", "Rejected", "Last")
	for _, s := range stats {
		table.Row(
			s.Merchant,
			s.Category,
			strconv.Itoa(s.AcceptCount),
			strconv.Itoa(s.RejectCount),
			s.LastFeedbackAt.Format("2006-01-02"),
		)
	}
	return table.Flush()
}

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record and inspect merchant/category feedback",
	}

	record := &cobra.Command{
		Use:   "record <accept|reject|undo> <merchant> <category>",
		Short: "Record a feedback signal",
		Long: `Record a feedback signal for a merchant and category. Undo reverts the
most recent accept or reject for the pair.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			weight, _ := cmd.Flags().GetInt("weight")
			txnID, _ := cmd.Flags().GetString("transaction")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.engine.RecordFeedback(cmd.Context(), feedback.Event{
				Action:        model.FeedbackAction(args[0]),
				Merchant:      args[1],
				Category:      args[2],
				Weight:        weight,
				TransactionID: txnID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Recorded %s for %s → %s", args[0], args[1], args[2])))
			return nil
		},
	}
	record.Flags().Int("weight", 1, "signal weight")
	record.Flags().String("transaction", "", "transaction the signal is about")

	show := &cobra.Command{
		Use:   "show <merchant> [category]",
		Short: "Show feedback counters, or a pair's event log",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				stats, err := a.engine.FeedbackStats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printStats(out, stats)
			}

			events, err := a.engine.FeedbackEvents(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No feedback recorded."))
				return nil
			}
			table := cli.NewTable(out, "ID", "When", "Action", "Weight", "Transaction", "Reverted")
			for _, e := range events {
				reverted := ""
				if e.Reverted {
					reverted = cli.SubtleStyle.Render("yes")
				}
				table.Row(
					strconv.FormatInt(e.ID, 10),
					e.CreatedAt.Format("2006-01-02 15:04"),
					string(e.Action),
					strconv.Itoa(e.Weight),
					e.TransactionID,
					reverted,
				)
			}
			return table.Flush()
		},
	}

	reset := &cobra.Command{
		Use:   "reset <merchant> <category>",
		Short: "Clear a pair's counters and event log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.ResetFeedback(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Reset feedback for %s → %s", args[0], args[1])))
			return nil
		},
	}

	cmd.AddCommand(record, show, reset)
	return cmd
}
