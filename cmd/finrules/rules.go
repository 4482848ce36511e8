package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Veraticus/finrules/internal/cli"
	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/pattern"
	"github.com/Veraticus/finrules/internal/rulesfile"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
		Long: `Rules map merchants or descriptions to a category. Enabled rules are
evaluated by priority, highest first, and the first match wins.

Matching is a case-insensitive substring test on the canonical merchant
and description unless --regex is set.`,
	}

	cmd.AddCommand(
		rulesListCmd(),
		rulesShowCmd(),
		rulesCreateCmd(),
		rulesEditCmd(),
		rulesToggleCmd(true),
		rulesToggleCmd(false),
		rulesDeleteCmd(),
		rulesTestCmd(),
		rulesImportCmd(),
		rulesExportCmd(),
	)
	return cmd
}

func addRuleFlags(fs *pflag.FlagSet) {
	fs.String("name", "", "rule name (default: \"<pattern> -> <category>\")")
	fs.String("merchant", "", "merchant pattern")
	fs.String("description", "", "description pattern")
	fs.Bool("regex", false, "treat patterns as regular expressions")
	fs.String("category", "", "category to assign")
	fs.Int("priority", 0, "evaluation priority, highest first")
	fs.String("amount-min", "", "minimum absolute amount, inclusive")
	fs.String("amount-max", "", "maximum absolute amount, inclusive")
}

func parseAmountFlag(fs *pflag.FlagSet, name string) (*decimal.Decimal, error) {
	s, _ := fs.GetString(name)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("--%s %q is not a number", name, s), common.ErrInvalidInput)
	}
	return &d, nil
}

func ruleFromFlags(fs *pflag.FlagSet) (model.Rule, error) {
	name, _ := fs.GetString("name")
	merchantLike, _ := fs.GetString("merchant")
	descriptionLike, _ := fs.GetString("description")
	isRegex, _ := fs.GetBool("regex")
	category, _ := fs.GetString("category")
	priority, _ := fs.GetInt("priority")

	rule := model.Rule{
		Name:     name,
		Enabled:  true,
		Priority: priority,
		When: model.RuleWhen{
			MerchantLike:    merchantLike,
			DescriptionLike: descriptionLike,
			IsRegex:         isRegex,
		},
		Then: model.RuleThen{Category: category},
	}

	var err error
	if rule.When.AmountMin, err = parseAmountFlag(fs, "amount-min"); err != nil {
		return rule, err
	}
	if rule.When.AmountMax, err = parseAmountFlag(fs, "amount-max"); err != nil {
		return rule, err
	}
	return rule, nil
}

func printRules(out io.Writer, rules []model.Rule) error {
	if len(rules) == 0 {
		fmt.Fprintln(out, cli.InfoStyle.Render("No rules found. Use 'finrules rules create' or accept a suggestion."))
		return nil
	}

	table := cli.NewTable(out, "ID", "On", "Name", "Pattern", "Category", "Priority", "Uses", "Source")
	for _, r := range rules {
		table.Row(
			strconv.FormatInt(r.ID, 10),
			cli.FormatEnabled(r.Enabled),
			cli.Truncate(r.Name, 30),
			cli.Truncate(describePattern(r), 40),
			r.Then.Category,
			strconv.Itoa(r.Priority),
			strconv.Itoa(r.UseCount),
			string(r.Source),
		)
	}
	return table.Flush()
}

func describePattern(r model.Rule) string {
	kind := "~"
	if r.When.IsRegex {
		kind = "/re/"
	}
	s := ""
	if r.When.MerchantLike != "" {
		s = fmt.Sprintf("merchant%s%s", kind, r.When.MerchantLike)
	}
	if r.When.DescriptionLike != "" {
		if s != "" {
			s += " "
		}
		s += fmt.Sprintf("desc%s%s", kind, r.When.DescriptionLike)
	}
	switch {
	case r.When.AmountMin != nil && r.When.AmountMax != nil:
		s += fmt.Sprintf(" [%s..%s]", r.When.AmountMin, r.When.AmountMax)
	case r.When.AmountMin != nil:
		s += fmt.Sprintf(" [>=%s]", r.When.AmountMin)
	case r.When.AmountMax != nil:
		s += fmt.Sprintf(" [<=%s]", r.When.AmountMax)
	}
	return s
}

func ruleDetail(r *model.Rule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID:        %d\n", r.ID)
	fmt.Fprintf(&b, "Enabled:   %s\n", cli.FormatEnabled(r.Enabled))
	fmt.Fprintf(&b, "Pattern:   %s\n", describePattern(*r))
	fmt.Fprintf(&b, "Category:  %s\n", r.Then.Category)
	fmt.Fprintf(&b, "Priority:  %d\n", r.Priority)
	fmt.Fprintf(&b, "Uses:      %d\n", r.UseCount)
	fmt.Fprintf(&b, "Source:    %s\n", r.Source)
	fmt.Fprintf(&b, "Updated:   %s", r.UpdatedAt.Format("2006-01-02 15:04"))
	return b.String()
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rules, err := a.engine.ListRules(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			return printRules(cmd.OutOrStdout(), rules)
		},
	}
}

func rulesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a rule and the feedback recorded for its merchant",
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

			rule, err := a.engine.GetRule(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.RenderBox(rule.Name, ruleDetail(rule)))
			if rule.When.MerchantLike == "" || rule.When.IsRegex {
				return nil
			}
			stats, err := a.engine.FeedbackStats(cmd.Context(), rule.When.MerchantLike)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			return printStats(out, stats)
		},
	}
}

func rulesCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rule",
		Example: `  finrules rules create --merchant starbucks --category Coffee
  finrules rules create --description "^ach.*payroll" --regex --category Income --amount-min 0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rule, err := ruleFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			if disabled, _ := cmd.Flags().GetBool("disabled"); disabled {
				rule.Enabled = false
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.engine.CreateRule(cmd.Context(), rule)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created rule %d: %s", created.ID, created.Name)))
			return nil
		},
	}

	addRuleFlags(cmd.Flags())
	cmd.Flags().Bool("disabled", false, "create the rule disabled")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func rulesEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a rule",
		Long: `Change the given fields of a rule. Changing the category records a
rejection of the old category and an acceptance of the new one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			patch, err := patchFromFlags(cmd.Flags())
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rule, err := a.engine.UpdateRule(cmd.Context(), id, patch)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated rule %d: %s", rule.ID, rule.Name)))
			return nil
		},
	}

	addRuleFlags(cmd.Flags())
	cmd.Flags().Bool("clear-amount", false, "remove the amount bounds")
	return cmd
}

func patchFromFlags(fs *pflag.FlagSet) (model.RulePatch, error) {
	var patch model.RulePatch
	str := func(name string) *string {
		if !fs.Changed(name) {
			return nil
		}
		v, _ := fs.GetString(name)
		return &v
	}

	patch.Name = str("name")
	patch.MerchantLike = str("merchant")
	patch.DescriptionLike = str("description")
	patch.Category = str("category")
	if fs.Changed("regex") {
		v, _ := fs.GetBool("regex")
		patch.IsRegex = &v
	}
	if fs.Changed("priority") {
		v, _ := fs.GetInt("priority")
		patch.Priority = &v
	}
	patch.ClearAmount, _ = fs.GetBool("clear-amount")

	var err error
	if patch.AmountMin, err = parseAmountFlag(fs, "amount-min"); err != nil {
		return patch, err
	}
	if patch.AmountMax, err = parseAmountFlag(fs, "amount-max"); err != nil {
		return patch, err
	}
	return patch, nil
}

func rulesToggleCmd(enable bool) *cobra.Command {
	use, short := "disable <id>", "Disable a rule"
	if enable {
		use, short = "enable <id>", "Enable a rule"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
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

			rule, err := a.engine.SetRuleEnabled(cmd.Context(), id, enable)
			if err != nil {
				return err
			}
			state := "disabled"
			if rule.Enabled {
				state = "enabled"
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule %d %s", rule.ID, state)))
			return nil
		},
	}
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Long:  `Delete a rule. Deleting records a strong rejection of its merchant and category.`,
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

			if err := a.engine.DeleteRule(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted rule %d", id)))
			return nil
		},
	}
}

func rulesTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Preview which transactions a draft rule would match",
		Example: `  finrules rules test --merchant starbucks --category Coffee --month 2024-03`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			draft, err := ruleFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			monthFlag, _ := cmd.Flags().GetString("month")
			month, err := parseMonth(monthFlag)
			if err != nil {
				return err
			}
			sample, _ := cmd.Flags().GetInt("sample")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.engine.TestRule(cmd.Context(), draft, month, sample)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Matched %d of %d transactions\n\n", result.Matched, result.Scanned)
			return printTransactions(out, result.Sample)
		},
	}

	addRuleFlags(cmd.Flags())
	cmd.Flags().String("month", "", "limit to a month (YYYY-MM)")
	cmd.Flags().Int("sample", pattern.DefaultSampleSize, "number of matches to show")
	return cmd
}

func rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create rules from a YAML rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0]) // #nosec G304 -- user-supplied rules file
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			rules, err := rulesfile.Load(f)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			for i, r := range rules {
				if _, err := a.engine.CreateRule(cmd.Context(), r); err != nil {
					return fmt.Errorf("rule %d: %w", i+1, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported %d rules", len(rules))))
			return nil
		},
	}
}

func rulesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.yaml]",
		Short: "Write all rules as a YAML rules file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rules, err := a.engine.ListRules(cmd.Context())
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return rulesfile.Save(cmd.OutOrStdout(), rules)
			}

			f, err := os.Create(args[0]) // #nosec G304 -- user-supplied output path
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			if err := rulesfile.Save(f, rules); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Exported %d rules to %s", len(rules), args[0])))
			return nil
		},
	}
}
