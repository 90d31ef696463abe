package config

import (
	"testing"

	"notebridge/internal/oauth"

	"github.com/stretchr/testify/assert"
)

func validGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Host:        "0.0.0.0",
		Port:        8443,
		ExternalURL: "https://notes.example.com",
		AdminSecret: "secret",
		IdP: oauth.IdPConfig{
			Name:         "google",
			AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			UserInfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
			ClientID:     "client",
			ClientSecret: "secret",
		},
	}
}

func TestValidateBridge(t *testing.T) {
	assert.NoError(t, ValidateBridge(BridgeConfig{Port: 27123}))
	assert.Error(t, ValidateBridge(BridgeConfig{Port: 0}))
	assert.Error(t, ValidateBridge(BridgeConfig{Port: 70000}))
}

func TestValidateGateway(t *testing.T) {
	assert.NoError(t, ValidateGateway(validGatewayConfig()))

	tests := []struct {
		name   string
		mutate func(*GatewayConfig)
	}{
		{"missing external URL", func(c *GatewayConfig) { c.ExternalURL = "" }},
		{"relative external URL", func(c *GatewayConfig) { c.ExternalURL = "notes.example.com" }},
		{"trailing slash", func(c *GatewayConfig) { c.ExternalURL = "https://notes.example.com/" }},
		{"missing admin secret", func(c *GatewayConfig) { c.AdminSecret = "" }},
		{"missing IdP name", func(c *GatewayConfig) { c.IdP.Name = "" }},
		{"missing IdP token URL", func(c *GatewayConfig) { c.IdP.TokenURL = "" }},
		{"missing IdP client secret", func(c *GatewayConfig) { c.IdP.ClientSecret = "" }},
		{"bad port", func(c *GatewayConfig) { c.Port = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validGatewayConfig()
			tc.mutate(&cfg)
			assert.Error(t, ValidateGateway(cfg))
		})
	}
}
