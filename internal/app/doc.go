// Package app bootstraps a notebridge tier: logging, configuration, server
// assembly, and the signal-driven run loop shared by the bridge and
// gateway commands.
package app
