package app

import (
	"context"
	"fmt"

	"github.com/nerrad567/tapline/internal/device"
	"github.com/nerrad567/tapline/internal/infrastructure/config"
	"github.com/nerrad567/tapline/internal/session"
	"github.com/nerrad567/tapline/internal/supervisor"
)

// CaptureOnce connects, grabs one frame and disconnects. It backs the
// --screenshot CLI mode and skips the supervisor, queue and scheduler.
//
// Parameters:
//   - ctx: Cancels discovery, the handshake and the capture
//   - cfg: Device and session settings
//   - conn: Connector to use
//
// Returns:
//   - []byte: PNG bytes
//   - device.Info: The device captured from, with its screen size
//   - error: supervisor.ErrNoDevice, a handshake error or a capture error
func CaptureOnce(ctx context.Context, cfg *config.Config, conn supervisor.Connector, logger Logger) ([]byte, device.Info, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	dctx, cancel := context.WithTimeout(ctx, cfg.Device.DiscoverTimeout)
	info, err := conn.Discover(dctx)
	cancel()
	if err != nil {
		return nil, device.Info{}, fmt.Errorf("discovering device: %w", err)
	}

	actx, cancel := context.WithTimeout(ctx, cfg.Device.ConnectTimeout)
	handle, info, err := conn.Authenticate(actx, info)
	cancel()
	if err != nil {
		return nil, info, fmt.Errorf("connecting to %s: %w", info.Serial, err)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Warn("closing device handle", "error", err)
		}
	}()

	guard := session.NewGuard(logger)
	frame, err := session.Do(ctx, guard, "capture", cfg.Session.CaptureTimeout, handle.CaptureFrame)
	if err != nil {
		return nil, info, fmt.Errorf("capturing screenshot: %w", err)
	}

	logger.Info("screenshot captured", "serial", info.Serial, "bytes", len(frame))
	return frame, info, nil
}
