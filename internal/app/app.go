package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"notebridge/internal/config"
	"notebridge/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Mode selects which tier an Application runs.
type Mode string

const (
	// ModeBridge runs the plugin bridge tier next to the vault host.
	ModeBridge Mode = "bridge"
	// ModeGateway runs the remote gateway tier.
	ModeGateway Mode = "gateway"
)

// Options carries the CLI-level settings into the bootstrap.
type Options struct {
	Mode       Mode
	ConfigPath string
	Debug      bool
	Silent     bool
	Version    string
}

// server is the lifecycle either tier implements.
type server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Application bootstraps and runs one notebridge tier. Bootstrap loads
// configuration and validates it fatally; Run serves until the context is
// cancelled or a signal arrives.
type Application struct {
	options Options
	config  config.Config
	server  server
}

// NewApplication performs the bootstrap sequence: logging first, then
// configuration, then the tier's server assembly.
func NewApplication(opts Options) (*Application, error) {
	logLevel := logging.LevelInfo
	if opts.Debug {
		logLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stdout
	if opts.Silent {
		logOutput = io.Discard
	}
	logging.InitForCLI(logLevel, logOutput)

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration from %s", configPath)
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	app := &Application{options: opts, config: cfg}
	switch opts.Mode {
	case ModeBridge:
		app.server, err = buildBridge(cfg.Bridge, opts.Version)
	case ModeGateway:
		app.server, err = buildGateway(cfg.Gateway, opts.Version)
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// the tier down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(groupCtx); err != nil {
			return err
		}
		<-groupCtx.Done()
		return nil
	})

	err := group.Wait()

	shutdownCtx := context.Background()
	if stopErr := a.server.Stop(shutdownCtx); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}
