package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/finrules/internal/cli"
	"github.com/Veraticus/finrules/internal/model"
)

func printSuggestions(out io.Writer, suggestions []model.RuleSuggestion) error {
	if len(suggestions) == 0 {
		fmt.Fprintln(out, cli.InfoStyle.Render("No rule suggestions. Run 'finrules mine' after importing history."))
		return nil
	}
	table := cli.NewTable(out, "ID", "Merchant", "Category", "Share", "Count", "Status")
	for _, s := range suggestions {
		table.Row(
			strconv.FormatInt(s.ID, 10),
			cli.Truncate(s.Merchant, 32),
			s.Category,
			cli.FormatConfidence(s.Share),
			fmt.Sprintf("%d/%d", s.Count, s.Total),
			string(s.Status),
		)
	}
	return table.Flush()
}

func mineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Mine labeling history for rule suggestions",
		Long: `Scan categorized transactions for merchants that are consistently given
the same category and store a suggestion for each. Merchants already
covered by a rule, ignored pairs and pending or accepted suggestions are
skipped, so mining again on unchanged data creates nothing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			opts := a.engine.MiningOptions()
			fs := cmd.Flags()
			if fs.Changed("window-days") {
				opts.WindowDays, _ = fs.GetInt("window-days")
			}
			if fs.Changed("min-count") {
				opts.MinCount, _ = fs.GetInt("min-count")
			}
			if fs.Changed("min-share") {
				opts.MinShare, _ = fs.GetFloat64("min-share")
			}

			result, err := a.engine.MineSuggestions(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%d new suggestion(s)", len(result.Created))))
			if len(result.Created) == 0 {
				return nil
			}
			return printSuggestions(out, result.Created)
		},
	}

	cmd.Flags().Int("window-days", 0, "history window in days (default from config)")
	cmd.Flags().Int("min-count", 0, "minimum transactions in the dominant category (default from config)")
	cmd.Flags().Float64("min-share", 0, "minimum share of the dominant category (default from config)")
	return cmd
}

func suggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Review mined rule suggestions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetString("status")
			if status == "all" {
				status = ""
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			suggestions, err := a.engine.ListSuggestions(cmd.Context(), model.SuggestionStatus(status))
			if err != nil {
				return err
			}
			return printSuggestions(cmd.OutOrStdout(), suggestions)
		},
	}
	list.Flags().String("status", string(model.SuggestionNew), "new, accepted, dismissed or all")

	accept := &cobra.Command{
		Use:   "accept <id>",
		Short: "Turn a suggestion into an enabled rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rule, err := a.engine.AcceptSuggestion(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created rule %d: %s", rule.ID, rule.Name)))
			return nil
		},
	}

	dismiss := &cobra.Command{
		Use:   "dismiss <id>",
		Short: "Dismiss a suggestion and stop suggesting its pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.DismissSuggestion(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Dismissed suggestion %d", id)))
			return nil
		},
	}

	cmd.AddCommand(list, accept, dismiss)
	return cmd
}

func ignoresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ignores",
		Short: "Manage merchant/category pairs excluded from mining",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List ignored pairs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ignores, err := a.engine.ListIgnores(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ignores) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No ignored pairs."))
				return nil
			}
			table := cli.NewTable(out, "Merchant", "Category", "Since")
			for _, ig := range ignores {
				table.Row(ig.Merchant, ig.Category, ig.CreatedAt.Format("2006-01-02"))
			}
			return table.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add <merchant> <category>",
		Short: "Stop suggesting a pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.AddIgnore(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Ignoring %s → %s", args[0], args[1])))
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <merchant> <category>",
		Short: "Allow a pair to be suggested again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.RemoveIgnore(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("No longer ignoring %s → %s", args[0], args[1])))
			return nil
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}
