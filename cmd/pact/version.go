package main

import (
	"fmt"
	"runtime"

	"github.com/form3tech-oss/pact-kit/pkg/pact"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pact-kit:      %s\n", pact.LibraryVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "Specification: %s (default)\n", pact.V3)
		fmt.Fprintf(cmd.OutOrStdout(), "Go version:    %s\n", runtime.Version())
	},
}
