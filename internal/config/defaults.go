package config

const (
	// DefaultBridgePort is where Obsidian-style local REST plugins listen.
	DefaultBridgePort = 27123

	// DefaultGatewayPort is the gateway's listen port.
	DefaultGatewayPort = 8443
)

// GetDefaultConfig returns the configuration defaults. The bridge binds to
// loopback; the gateway binds to all interfaces because it fronts the
// network.
func GetDefaultConfig() Config {
	return Config{
		Bridge: BridgeConfig{
			Host:      "127.0.0.1",
			Port:      DefaultBridgePort,
			VaultName: "vault",
		},
		Gateway: GatewayConfig{
			Host:   "0.0.0.0",
			Port:   DefaultGatewayPort,
			Scopes: []string{"notes"},
		},
	}
}
