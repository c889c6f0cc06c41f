package main

import (
	"fmt"
	"os"
	"time"

	"checkerminer/internal/config"
	"checkerminer/internal/logging"
	"checkerminer/internal/version"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "miner",
	Short: "CheckerChain review miner",
	Long: `miner scores CheckerChain products.

For every requested product id it fetches the product from the CheckerChain
API, asks an LLM for a structured ten-criterion review, and turns the review
into a weighted 0-100 trust score. Scores are cached and recorded in SQLite.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		opts := cfg.LoggingOptions()
		if verbose {
			opts.Level = "debug"
		}
		logger, err = logging.Initialize(opts)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the miner version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "checkerminer %s (%s)\n", version.Version, version.Commit)
	},
}

var compatCmd = &cobra.Command{
	Use:   "compat [required-version]",
	Short: "Check compatibility with a validator protocol version",
	Long: `Exits non-zero unless this build can serve validators that require the
given version: the major versions must match and this build's minor version
must be at least the required one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := version.Check(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "miner %s is compatible with %s\n", version.Current(), args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "miner.yaml", "Path to the config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Timeout for one-shot commands")

	scoreCmd.Flags().BoolVar(&scoreUnreviewed, "unreviewed", false, "Score every product awaiting review")
	predictionsCmd.Flags().IntVarP(&predictionsLimit, "limit", "n", 20, "Maximum number of predictions to list (0 = all)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(predictionsCmd)
	rootCmd.AddCommand(compatCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
