package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/finrules/internal/cli"
	"github.com/Veraticus/finrules/internal/csvimport"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/ofx"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import transactions from files",
		Long: `Import transactions from CSV or OFX/QFX files.

Transactions are upserted by id: re-importing a file updates the rows in
place and keeps any category you already assigned.`,
	}

	cmd.AddCommand(importCSVCmd(), importOFXCmd())
	return cmd
}

func importCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csv <file>...",
		Short: "Import transactions from CSV files",
		Long: `Import transactions from CSV files with a header row.

Recognized columns: date, merchant, description, amount, category, id.
Date and amount are required, plus merchant or description. Rows without
an id get a generated one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportCSV,
	}

	cmd.Flags().String("delimiter", ",", "field delimiter")
	cmd.Flags().Bool("skip-invalid", false, "skip malformed rows instead of failing")
	return cmd
}

func runImportCSV(cmd *cobra.Command, args []string) error {
	delimiter, _ := cmd.Flags().GetString("delimiter")
	skipInvalid, _ := cmd.Flags().GetBool("skip-invalid")

	runes := []rune(delimiter)
	if len(runes) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", delimiter)
	}
	reader := csvimport.NewReader(csvimport.Options{Comma: runes[0], SkipInvalid: skipInvalid})

	return importFiles(cmd, args, func(ctx context.Context, f *os.File) ([]model.Transaction, error) {
		return reader.Read(ctx, f)
	})
}

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ofx <file|dir>...",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import transactions from OFX or QFX statement files. Directories are
scanned for *.ofx and *.qfx files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().Bool("accounts", false, "list the accounts in each file without importing")
	return cmd
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return fmt.Errorf("failed to access %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return fmt.Errorf("failed to read directory %s: %w", arg, err)
		}
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".ofx" || ext == ".qfx") {
				files = append(files, filepath.Join(arg, e.Name()))
			}
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no OFX/QFX files found")
	}

	parser := ofx.NewParser()
	if listOnly, _ := cmd.Flags().GetBool("accounts"); listOnly {
		return listOFXAccounts(cmd, parser, files)
	}
	return importFiles(cmd, files, func(ctx context.Context, f *os.File) ([]model.Transaction, error) {
		return parser.ParseFile(ctx, f)
	})
}

func importFiles(cmd *cobra.Command, files []string, parse func(context.Context, *os.File) ([]model.Transaction, error)) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	total := 0
	for _, path := range files {
		txns, err := parseFile(ctx, path, parse)
		if err != nil {
			return err
		}

		n, err := a.engine.ImportTransactions(ctx, txns)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", path, err)
		}
		total += n
		slog.Debug("Imported file", "path", path, "transactions", n)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d transactions from %d file(s)", total, len(files))))
	return nil
}

func parseFile(ctx context.Context, path string, parse func(context.Context, *os.File) ([]model.Transaction, error)) ([]model.Transaction, error) {
	f, err := os.Open(path) // #nosec G304 -- user-supplied import path
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	txns, err := parse(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return txns, nil
}

func listOFXAccounts(cmd *cobra.Command, parser *ofx.Parser, files []string) error {
	table := cli.NewTable(cmd.OutOrStdout(), "File", "Account")
	for _, path := range files {
		f, err := os.Open(path) // #nosec G304 -- user-supplied import path
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		accounts, err := parser.GetAccounts(cmd.Context(), f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for _, acct := range accounts {
			table.Row(filepath.Base(path), acct)
		}
	}
	return table.Flush()
}
