package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/form3tech-oss/pact-kit/internal/app/configuration"
	"github.com/spf13/cobra"
)

// errFailed reports a failure that has already been printed.
var errFailed = errors.New("failed")

var (
	config   configuration.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "pact",
	Short:         "Contract testing with pact files",
	Long:          `pact verifies providers against pact files, publishes pacts to a broker and serves mock providers from pact files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = configuration.NewFromEnv(cmd.Context(), ".env")
		if err != nil {
			return err
		}
		if logLevel != "" {
			config.LogLevel = logLevel
		}
		return config.ConfigureLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides PACT_LOG_LEVEL")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(mockServiceCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		}
		os.Exit(1)
	}
}
