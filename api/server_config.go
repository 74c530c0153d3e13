package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig carries the listen and shutdown parameters shared by
// the vault and custodian servers.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the API server listens on.
	ListenAddr string

	// MetricsAddr is the address and port for the metrics server. If
	// empty, no metrics server is started.
	MetricsAddr string

	// EnablePprof mounts the pprof debugging API when true.
	EnablePprof bool

	// Log is the structured logger for server operations.
	Log *slog.Logger

	// DrainDuration is how long the server stays up after marking
	// itself not ready, so load balancers can notice before shutdown.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds the wait for in-flight requests
	// during shutdown.
	GracefulShutdownDuration time.Duration

	// ReadTimeout is the maximum duration for reading an entire
	// request, including the body.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out a
	// response write.
	WriteTimeout time.Duration
}
