package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"notebridge/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/notebridge"
	configFileName = "config.yaml"
)

// Environment variables that override file-borne secrets, so credentials
// can stay out of config files.
const (
	envBridgeAPIKey = "NOTEBRIDGE_API_KEY"
	envAdminSecret  = "NOTEBRIDGE_ADMIN_SECRET"
	envIdPClientID  = "NOTEBRIDGE_IDP_CLIENT_ID"
	envIdPSecret    = "NOTEBRIDGE_IDP_CLIENT_SECRET"
	envExternalURL  = "NOTEBRIDGE_EXTERNAL_URL"
)

// GetDefaultConfigPathOrPanic returns ~/.config/notebridge.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}
	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from the given directory, applying defaults
// for everything the file leaves out and environment overrides on top.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnvOverrides(&config)
			return config, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	applyEnvOverrides(&config)
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv(envBridgeAPIKey); v != "" {
		config.Bridge.APIKey = v
	}
	if v := os.Getenv(envAdminSecret); v != "" {
		config.Gateway.AdminSecret = v
	}
	if v := os.Getenv(envIdPClientID); v != "" {
		config.Gateway.IdP.ClientID = v
	}
	if v := os.Getenv(envIdPSecret); v != "" {
		config.Gateway.IdP.ClientSecret = v
	}
	if v := os.Getenv(envExternalURL); v != "" {
		config.Gateway.ExternalURL = v
	}
}
