package cmd

import (
	"context"
	"fmt"

	"notebridge/internal/app"

	"github.com/spf13/cobra"
)

var (
	gatewayDebug      bool
	gatewaySilent     bool
	gatewayConfigPath string
)

// gatewayCmd starts the remote gateway tier.
var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the remote gateway",
	Long: `Starts the remote gateway: the public endpoint that authenticates MCP
clients via OAuth and routes each user's traffic to that user's registered
plugin bridge.

The gateway refuses to start unless its external URL, identity provider
credentials, and admin secret are configured. Secrets can be supplied via
NOTEBRIDGE_ADMIN_SECRET, NOTEBRIDGE_IDP_CLIENT_ID, and
NOTEBRIDGE_IDP_CLIENT_SECRET instead of the config file.`,
	Args: cobra.NoArgs,
	RunE: runGateway,
}

func runGateway(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Options{
		Mode:       app.ModeGateway,
		ConfigPath: gatewayConfigPath,
		Debug:      gatewayDebug,
		Silent:     gatewaySilent,
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
	gatewayCmd.Flags().BoolVar(&gatewayDebug, "debug", false, "Enable debug logging")
	gatewayCmd.Flags().BoolVar(&gatewaySilent, "silent", false, "Suppress all log output")
	gatewayCmd.Flags().StringVar(&gatewayConfigPath, "config-path", "", "Directory containing config.yaml (default: ~/.config/notebridge)")
	rootCmd.AddCommand(gatewayCmd)
}
