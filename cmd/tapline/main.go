// Tapline - device session core for ADB-attached Android automation.
//
// This is the main entry point. It loads configuration, builds the runtime
// (command queue, connection supervisor, touch monitor, scheduler, status
// board) and runs it with the enabled outer surfaces until interrupted.
//
// One-shot mode (--screenshot PATH) connects, saves a single frame and
// exits without starting the runtime.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/tapline/internal/adb"
	"github.com/nerrad567/tapline/internal/app"
	"github.com/nerrad567/tapline/internal/infrastructure/config"
	"github.com/nerrad567/tapline/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options holds parsed command-line flags.
type options struct {
	configPath string
	debug      bool
	timeout    int
	screenshot string
	version    bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("tapline", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config file (default $TAPLINE_CONFIG or "+defaultConfigPath+")")
	fs.BoolVar(&opts.debug, "debug", false, "force debug logging")
	fs.IntVar(&opts.timeout, "timeout", 0, "exit after N seconds (0 runs until interrupted)")
	fs.StringVar(&opts.screenshot, "screenshot", "", "capture one screenshot to PATH and exit")
	fs.BoolVarP(&opts.version, "version", "v", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.timeout < 0 {
		return options{}, fmt.Errorf("--timeout must not be negative")
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - out: Where --version and --help are written
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.version {
		fmt.Fprintf(out, "tapline %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	configPath := getConfigPath(opts.configPath)
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)
	if opts.debug {
		log.SetLevel("debug")
	}
	log.Info("starting tapline",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	if opts.screenshot != "" {
		return captureScreenshot(ctx, cfg, opts.screenshot, log)
	}

	rt, err := app.New(app.Options{
		Config:  cfg,
		Logger:  log,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("building runtime: %w", err)
	}

	if opts.timeout > 0 {
		d := time.Duration(opts.timeout) * time.Second
		log.Info("auto-exit armed", "after", d)
		timer := time.AfterFunc(d, func() {
			log.Info("auto-exit timeout reached")
			rt.Shutdown()
		})
		defer timer.Stop()
	}

	if err := rt.Run(ctx); err != nil {
		return err
	}
	log.Info("tapline stopped")
	return nil
}

// captureScreenshot runs one-shot mode.
func captureScreenshot(ctx context.Context, cfg *config.Config, path string, log *logging.Logger) error {
	conn := adb.NewConnector(adb.ConnectorOptions{
		Path:   cfg.Device.ADBPath,
		Serial: cfg.Device.Serial,
		Logger: log.Component("adb"),
	})

	frame, info, err := app.CaptureOnce(ctx, cfg, conn, log)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, frame, 0o644); err != nil { //nolint:gosec // screenshots are not secret
		return fmt.Errorf("writing screenshot: %w", err)
	}
	log.Info("screenshot saved",
		"path", path,
		"serial", info.Serial,
		"width", info.Screen.Width,
		"height", info.Screen.Height,
	)
	return nil
}

// getConfigPath returns the flag value, else TAPLINE_CONFIG, else the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("TAPLINE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
