// Package common carries the process-wide identity of the custody
// services: structured logger setup, the package name used as metrics
// namespace, and the build version.
package common

import (
	"log/slog"
	"os"
)

// PackageName is the Prometheus namespace and default service tag for
// the custody services.
const PackageName = "key_custody"

// Version is the build version, overridden at link time via
// -ldflags "-X github.com/ruteri/key-custody-backend/common.Version=...".
var Version = "dev"

// LoggingOpts configures SetupLogger.
type LoggingOpts struct {
	// Debug lowers the log level to debug.
	Debug bool

	// JSON selects JSON output instead of logfmt-style text.
	JSON bool

	// Service tags every record with a service name when non-empty.
	Service string

	// Version tags every record with the build version when non-empty.
	Version string
}

// SetupLogger builds the process logger. All services log through slog
// handlers writing to stdout; anything fancier belongs in the log
// shipper, not here.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
