// Package config loads and validates the notebridge configuration: a YAML
// file under ~/.config/notebridge (or an explicit --config-path directory)
// with defaults for everything optional and environment overrides for
// secrets. Gateway auth settings are validated fatally at startup; the
// gateway never starts half-configured.
package config
