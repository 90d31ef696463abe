package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the entry point when notebridge is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "notebridge",
	Short: "Bridge a local note vault to MCP clients",
	Long: `notebridge exposes a local note vault to MCP clients in two tiers:

  bridge   runs next to the vault and serves the MCP and legacy REST
           surfaces on the loopback interface
  gateway  runs on a public endpoint, authenticates users via OAuth,
           and routes each user's MCP traffic to their own bridge`,
	// Errors are reported by the commands themselves; suppress the usage
	// dump on handled failures.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main with
// the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the build version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "notebridge version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
