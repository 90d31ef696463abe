package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateBridge checks the settings the bridge tier cannot start without.
func ValidateBridge(cfg BridgeConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("bridge.port must be between 1 and 65535, got %d", cfg.Port)
	}
	return nil
}

// ValidateGateway checks the settings the gateway tier cannot start
// without. Missing auth configuration is fatal: a gateway that cannot
// authenticate must not serve.
func ValidateGateway(cfg GatewayConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", cfg.Port)
	}

	if cfg.ExternalURL == "" {
		return fmt.Errorf("gateway.externalUrl is required")
	}
	parsed, err := url.Parse(cfg.ExternalURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("gateway.externalUrl must be an absolute URL, got %q", cfg.ExternalURL)
	}
	if strings.HasSuffix(cfg.ExternalURL, "/") {
		return fmt.Errorf("gateway.externalUrl must not end with a slash")
	}

	if cfg.AdminSecret == "" {
		return fmt.Errorf("gateway.adminSecret is required")
	}

	idp := cfg.IdP
	if idp.Name == "" || idp.AuthURL == "" || idp.TokenURL == "" || idp.UserInfoURL == "" {
		return fmt.Errorf("gateway.idp requires name, authUrl, tokenUrl, and userInfoUrl")
	}
	if idp.ClientID == "" || idp.ClientSecret == "" {
		return fmt.Errorf("gateway.idp requires clientId and clientSecret")
	}
	return nil
}
