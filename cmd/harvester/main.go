// Package main provides the command line entry point of the harvester.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonathan/compass-harvester/internal/config"
	"github.com/jonathan/compass-harvester/internal/logging"
)

var (
	configPath  string
	logLevel    string
	verbose     bool
	forceUnlock bool

	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Collect analytics listings and harvest their videos",
	Long: "Harvester intercepts the listing responses of an e-commerce analytics page, " +
		"collects every page of results and downloads the videos of each product into a granted directory. " +
		"Long harvests are checkpointed and resume where they stopped.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./harvester.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print detailed summaries to stderr")
	rootCmd.PersistentFlags().BoolVar(&forceUnlock, "force-unlock", false, "Remove the store's run lock before starting (only when no other harvester runs)")
}

// setup loads configuration and configures logging for every subcommand.
func setup(_ *cobra.Command, _ []string) error {
	loaded, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	closer, err := logging.Configure(loaded.Log)
	if err != nil {
		return err
	}
	cfg = loaded
	logCloser = closer
	return nil
}

// componentLog returns the logger of a subcommand.
func componentLog(name string) *logrus.Entry {
	return logging.For(name)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
