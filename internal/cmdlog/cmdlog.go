package cmdlog

import (
	"time"

	"threadpromo/internal/logging"
	"threadpromo/internal/metrics"
)

// Run executes one CLI command, counting it and logging the outcome with its duration.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	fields := map[string]any{"command": cmd, "elapsed_ms": time.Since(start).Milliseconds()}
	if err != nil {
		metrics.IncCommandError(cmd)
		fields["error"] = err.Error()
		logging.Error("command_failed", fields)
		return err
	}
	logging.Info("command_ok", fields)
	return nil
}
