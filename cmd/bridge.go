package cmd

import (
	"context"
	"fmt"

	"notebridge/internal/app"

	"github.com/spf13/cobra"
)

var (
	bridgeDebug      bool
	bridgeSilent     bool
	bridgeConfigPath string
)

// bridgeCmd starts the plugin bridge tier.
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Start the plugin bridge next to the vault",
	Long: `Starts the plugin bridge: the loopback server the vault host embeds.
It serves the MCP Streamable HTTP endpoint on /mcp and the legacy REST
surface under /bridge/v1/, both backed by the same tool registry.

Configuration is read from config.yaml in the notebridge config directory
(see --config-path). The NOTEBRIDGE_API_KEY environment variable overrides
the configured MCP API key.`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func runBridge(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Options{
		Mode:       app.ModeBridge,
		ConfigPath: bridgeConfigPath,
		Debug:      bridgeDebug,
		Silent:     bridgeSilent,
		Version:    GetVersion(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	bridgeCmd.Flags().BoolVar(&bridgeDebug, "debug", false, "Enable debug logging")
	bridgeCmd.Flags().BoolVar(&bridgeSilent, "silent", false, "Suppress all log output")
	bridgeCmd.Flags().StringVar(&bridgeConfigPath, "config-path", "", "Directory containing config.yaml (default: ~/.config/notebridge)")
	rootCmd.AddCommand(bridgeCmd)
}
