package app

import (
	"fmt"

	"notebridge/internal/bridge"
	"notebridge/internal/config"
	"notebridge/internal/gateway"
	"notebridge/internal/tools"
)

// buildBridge assembles the plugin bridge tier, including the built-in
// vault tools.
func buildBridge(cfg config.BridgeConfig, version string) (server, error) {
	if err := config.ValidateBridge(cfg); err != nil {
		return nil, fmt.Errorf("invalid bridge configuration: %w", err)
	}

	// The registry starts empty; the embedding host process registers the
	// vault tools and mutates the set at runtime.
	registry := tools.NewRegistry()

	return bridge.NewBridge(bridge.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		APIKey:             cfg.APIKey,
		VaultName:          cfg.VaultName,
		Version:            version,
		SessionIdleTimeout: cfg.SessionIdleTimeout,
	}, registry), nil
}

// buildGateway assembles the remote gateway tier. Validation is fatal: a
// gateway without complete auth configuration must not start.
func buildGateway(cfg config.GatewayConfig, version string) (server, error) {
	if err := config.ValidateGateway(cfg); err != nil {
		return nil, fmt.Errorf("invalid gateway configuration: %w", err)
	}

	return gateway.NewGateway(gateway.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		ExternalURL:        cfg.ExternalURL,
		Version:            version,
		IdP:                cfg.IdP,
		AdminSecret:        cfg.AdminSecret,
		Scopes:             cfg.Scopes,
		SessionIdleTimeout: cfg.SessionIdleTimeout,
		PollInterval:       cfg.PollInterval,
	}), nil
}
