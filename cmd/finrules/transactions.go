package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/finrules/internal/cli"
	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/service"
)

func printTransactions(out io.Writer, txns []model.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	table := cli.NewTable(out, "ID", "Date", "Merchant", "Amount", "Category")
	for _, t := range txns {
		category := t.Category
		if category == "" {
			category = cli.SubtleStyle.Render("-")
		}
		table.Row(
			cli.Truncate(t.ID, 14),
			t.Date.Format("2006-01-02"),
			cli.Truncate(t.Merchant, 32),
			t.Amount.StringFixed(2),
			category,
		)
	}
	return table.Flush()
}

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txns"},
		Short:   "List and delete imported transactions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List transactions in date order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs := cmd.Flags()
			uncategorized, _ := fs.GetBool("uncategorized")
			merchantName, _ := fs.GetString("merchant")
			category, _ := fs.GetString("category")
			limit, _ := fs.GetInt("limit")
			month, _ := fs.GetString("month")

			start, err := parseMonth(month)
			if err != nil {
				return err
			}

			filter := service.TransactionFilter{
				MerchantCanonical: merchant.Key(merchantName),
				Category:          category,
				Limit:             limit,
				OnlyUncategorized: uncategorized,
			}
			if start != nil {
				end := start.AddDate(0, 1, 0)
				filter.StartDate = start
				filter.EndDate = &end
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			txns, err := a.engine.ListTransactions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(txns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.InfoStyle.Render("No transactions found."))
				return nil
			}
			return printTransactions(cmd.OutOrStdout(), txns)
		},
	}
	list.Flags().Bool("uncategorized", false, "only transactions without a category")
	list.Flags().String("merchant", "", "only this merchant")
	list.Flags().String("category", "", "only this category")
	list.Flags().String("month", "", "only this month (YYYY-MM)")
	list.Flags().Int("limit", 50, "maximum rows, 0 for all")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.DeleteTransaction(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted transaction %s", args[0])))
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <transaction-id>",
		Short: "Rank candidate categories for a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			txn, err := a.engine.GetTransaction(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			candidates, err := a.engine.Suggest(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s  %s  %s", txn.Date.Format("2006-01-02"), txn.Merchant, txn.Amount.StringFixed(2))))
			if len(candidates) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No suggestions yet. Categorize a few transactions from this merchant first."))
				return nil
			}

			table := cli.NewTable(out, "#", "Category", "Confidence", "Feedback", "Why")
			for i, c := range candidates {
				table.Row(
					fmt.Sprintf("%d", i+1),
					c.Category,
					cli.FormatConfidence(c.Confidence),
					cli.FormatFeedback(c.AcceptCount, c.RejectCount),
					strings.Join(c.Reasons, ", "),
				)
			}
			return table.Flush()
		},
	}
}

func categorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categorize <transaction-id> <category>",
		Short: "Set a transaction's category",
		Long: `Set a transaction's category by hand. The choice is recorded as feedback
for the merchant: the new category is accepted and any previous one rejected.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			txn, err := a.engine.CategorizeTransaction(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s → %s", txn.Merchant, txn.Category)))
			return nil
		},
	}
}

func applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Categorize uncategorized transactions with enabled rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			quiet, _ := cmd.Flags().GetBool("quiet")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var progress func(done, total int)
			if !quiet {
				progress = cli.ProgressFunc(cli.NewProgress(cmd.ErrOrStderr(), 1, "Applying rules..."))
			}

			start := time.Now()
			result, err := a.engine.ApplyRules(cmd.Context(), progress)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Categorized %d of %d uncategorized transactions in %s",
				result.Categorized, result.Scanned, time.Since(start).Round(time.Millisecond))))
			return nil
		},
	}

	cmd.Flags().BoolP("quiet", "q", false, "hide the progress bar")
	return cmd
}

func purgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently remove soft-deleted transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.engine.PurgeDeleted(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Purged %d transactions", n)))
			return nil
		},
	}

	cmd.Flags().Duration("older-than", 30*24*time.Hour, "only purge rows deleted at least this long ago")
	return cmd
}
