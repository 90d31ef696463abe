package config

import (
	"time"

	"notebridge/internal/oauth"
)

// Config is the top-level configuration structure for notebridge.
type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// BridgeConfig configures the plugin bridge tier.
type BridgeConfig struct {
	Host string `yaml:"host,omitempty"` // Bind address (default: 127.0.0.1)
	Port int    `yaml:"port,omitempty"` // Listen port (default: 27123)

	// APIKey guards /mcp when non-empty. The v1 surface stays open.
	APIKey string `yaml:"apiKey,omitempty"`

	// VaultName names the vault reported to MCP clients.
	VaultName string `yaml:"vaultName,omitempty"`

	// SessionIdleTimeout overrides the 30-minute idle reclamation.
	SessionIdleTimeout time.Duration `yaml:"sessionIdleTimeout,omitempty"`
}

// GatewayConfig configures the remote gateway tier.
type GatewayConfig struct {
	Host string `yaml:"host,omitempty"` // Bind address (default: 0.0.0.0)
	Port int    `yaml:"port,omitempty"` // Listen port (default: 8443)

	// ExternalURL is the public base URL clients and the IdP see. Required.
	ExternalURL string `yaml:"externalUrl,omitempty"`

	// AdminSecret guards the plugin management API. Required.
	AdminSecret string `yaml:"adminSecret,omitempty"`

	// Scopes are the OAuth scopes the gateway advertises.
	Scopes []string `yaml:"scopes,omitempty"`

	// IdP configures the upstream identity provider.
	IdP oauth.IdPConfig `yaml:"idp"`

	SessionIdleTimeout time.Duration `yaml:"sessionIdleTimeout,omitempty"`
	PollInterval       time.Duration `yaml:"pollInterval,omitempty"`
}
