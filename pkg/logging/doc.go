// Package logging provides a structured logging system for notebridge with
// unified log handling and level filtering.
//
// The package is a thin facade over Go's standard slog package. Every entry
// carries a subsystem identifier so logs from the bridge, the gateway, the
// OAuth server, and the transport layer can be filtered independently:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	logging.Info("Bridge", "Listening on %s", addr)
//	logging.Debug("Transport", "Session %s created", id)
//	logging.Error("OAuth", err, "Token exchange failed")
//
// Subsystems in use:
//
//   - **Bootstrap**: application initialization and startup
//   - **Config**: configuration loading and validation
//   - **Bridge**: tier A plugin bridge surfaces
//   - **Transport**: MCP Streamable HTTP transport and sessions
//   - **OAuth**: authorization server and token stores
//   - **Gateway**: tier B routing and upstream sessions
//   - **Admin**: plugin administration API
//
// The logging system is fully thread-safe; level filtering happens at the
// handler so filtered-out messages cost no allocation.
package logging
