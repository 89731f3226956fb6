package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/archoncouncil/api/internal/config"
	"github.com/archoncouncil/api/pkg/logger"
)

var (
	version string

	// Global flags
	flagOutput  string
	flagVerbose bool

	// loadConfig is replaced in tests.
	loadConfig = config.Load
)

var rootCmd = &cobra.Command{
	Use:   "archon-admin",
	Short: "ARCHON council API administration CLI",
	Long: `archon-admin runs the operator tasks of the ARCHON council API.

It bootstraps the authorized user, inspects the effective configuration,
checks addresses against the IP allowlist, applies database migrations
and lifts rate limit lockouts.

Configuration is read from the same environment variables as the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(setupUserCmd)
	rootCmd.AddCommand(checkIPCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rateLimitCmd)
}

// newLogger logs to stderr so command output stays machine readable.
func newLogger() *logger.Logger {
	level := "warn"
	if flagVerbose {
		level = "debug"
	}
	return logger.New(logger.Config{Level: level, Format: "text", Output: os.Stderr})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "archon-admin version %s\n", version)
		fmt.Fprintf(out, "  Go:       %s\n", runtime.Version())
		fmt.Fprintf(out, "  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}
