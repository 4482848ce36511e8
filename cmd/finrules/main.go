package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/finrules/internal/cli"
	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/config"
)

var (
	cfgFile string
	version = "dev"
	rootCmd = newRootCmd()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finrules",
		Short: "Merchant categorization and rule suggestions",
		Long: `finrules categorizes financial transactions by merchant.

It ranks candidate categories for each transaction from your rules, your
labeling history and the feedback you give, and mines your history for new
rules worth adding.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/finrules/config.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	cmd.PersistentFlags().String("db", "", "SQLite database path (overrides database.path)")

	_ = viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("database.path", cmd.PersistentFlags().Lookup("db"))

	cmd.AddCommand(
		migrateCmd(),
		importCmd(),
		rulesCmd(),
		transactionsCmd(),
		suggestCmd(),
		categorizeCmd(),
		applyCmd(),
		mineCmd(),
		suggestionsCmd(),
		ignoresCmd(),
		feedbackCmd(),
		purgeCmd(),
		serveCmd(),
		versionCmd(),
	)
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		var userErr *common.UserError
		if errors.As(err, &userErr) {
			fmt.Fprintln(os.Stderr, cli.FormatError(userErr.UserMessage))
		} else {
			fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		}
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(fmt.Sprintf("%s/.config/finrules", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())

	// FINRULES_DATABASE_PATH sets database.path.
	viper.SetEnvPrefix("FINRULES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level, err := common.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return err
	}
	if err := common.SetupLogger(level, viper.GetString("logging.format")); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	slog.Debug("Configuration loaded", "config_file", viper.ConfigFileUsed())
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "finrules %s\n", version)
		},
	}
}
