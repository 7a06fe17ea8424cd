// Package observability wires OpenTelemetry tracing and metrics, structured
// logging, and the Prometheus scrape endpoint for the coarsening pipeline.
package observability

import "log/slog"

// Default configuration values.
const (
	defaultServiceName        = "coarsen"
	defaultShutdownTimeoutSec = 5
)

// Config controls provider initialization. The zero value plus DefaultConfig
// overrides yields silent, no-op telemetry suitable for library use.
type Config struct {
	// ServiceName identifies the process in exported telemetry.
	ServiceName string

	// ServiceVersion is attached to the OTel resource when set.
	ServiceVersion string

	// Environment is the deployment environment label, when set.
	Environment string

	// OTLPEndpoint is the host:port of an OTLP gRPC collector. Empty disables
	// export entirely; providers become no-ops.
	OTLPEndpoint string

	// OTLPInsecure disables transport security for the OTLP connection.
	OTLPInsecure bool

	// SampleRatio is the trace sampling ratio; zero or negative means
	// parent-based always-on.
	SampleRatio float64

	// LogLevel is the minimum level emitted by the logger.
	LogLevel slog.Level

	// LogJSON selects the JSON handler over the text handler.
	LogJSON bool

	// ShutdownTimeoutSec bounds the telemetry flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns the configuration used when nothing is specified:
// no export, info-level text logs.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
