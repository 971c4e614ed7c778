// Package process supervises long-running, line-oriented child processes.
//
// Tapline uses it for the "adb shell getevent -lt" stream that feeds touch
// detection: the child prints one input event per line for as long as the
// device stays attached, and exits when the link drops. The runner hands
// every stdout line to a callback and reopens the stream after a fixed delay
// until it is stopped.
//
// Features:
//   - Line-by-line stdout delivery to OnLine
//   - Restart on exit (clean or not) after RestartDelay
//   - Graceful SIGTERM to the process group, SIGKILL after GracefulTimeout
//   - Status and Stats for the HTTP API
//
// Example usage:
//
//	r := process.NewRunner(process.Config{
//	    Name:         "getevent",
//	    Binary:       "adb",
//	    Args:         []string{"-s", serial, "shell", "getevent", "-lt", "/dev/input/event2"},
//	    RestartDelay: 2 * time.Second,
//	    OnLine:       listener.HandleLine,
//	})
//	if err := r.Start(ctx); err != nil {
//	    return err
//	}
//	defer r.Stop()
package process
