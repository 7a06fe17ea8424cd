// Package commands implements the coarsen CLI subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/coarsen-md/coarsen/pkg/config"
	"github.com/coarsen-md/coarsen/pkg/ffcache"
	"github.com/coarsen-md/coarsen/pkg/forcefield"
	"github.com/coarsen-md/coarsen/pkg/observability"
	"github.com/coarsen-md/coarsen/pkg/version"
)

// Global flag values shared by all subcommands.
var (
	flagConfig      string
	flagVerbose     bool
	flagQuiet       bool
	flagLogJSON     bool
	flagOTLP        string
	flagMetricsAddr string
	flagNoColor     bool
)

// metricsReadTimeout bounds request reads on the scrape endpoint.
const metricsReadTimeout = 10 * time.Second

// AddGlobalFlags registers the persistent flags on the root command.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: coarsen.yaml in search path)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress output")
	cmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON")
	cmd.PersistentFlags().StringVar(&flagOTLP, "otlp-endpoint", "", "OTLP gRPC collector endpoint for telemetry export")
	cmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve the Prometheus /metrics endpoint on this address")
	cmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colorized output")
}

// runtime bundles the configured collaborators a subcommand needs.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	providers observability.Providers
	metrics   *observability.StageMetrics

	metricsSrv *http.Server
}

// setupRuntime loads configuration, initializes telemetry, and starts the
// optional metrics endpoint. Flags override config file values.
func setupRuntime() (*runtime, error) {
	if flagNoColor {
		color.NoColor = true
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	if flagOTLP != "" {
		cfg.Telemetry.OTLPEndpoint = flagOTLP
	}

	if flagMetricsAddr != "" {
		cfg.Telemetry.MetricsAddr = flagMetricsAddr
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.LogJSON = flagLogJSON || cfg.Logging.Format == "json"
	obsCfg.LogLevel = logLevel(cfg)

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:       cfg,
		logger:    providers.Logger,
		providers: providers,
	}

	metrics, err := observability.NewStageMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	rt.metrics = metrics

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		if err := rt.serveMetrics(addr); err != nil {
			return nil, err
		}
	}

	return rt, nil
}

func logLevel(cfg *config.Config) slog.Level {
	if flagQuiet {
		return slog.LevelError
	}

	if flagVerbose {
		return slog.LevelDebug
	}

	switch cfg.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// serveMetrics starts the Prometheus scrape endpoint in the background for
// the duration of the run.
func (rt *runtime) serveMetrics(addr string) error {
	handler, _, err := observability.PrometheusHandler()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	rt.metricsSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
	}

	go func() {
		serveErr := rt.metricsSrv.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			rt.logger.Error("metrics endpoint failed", "addr", addr, "err", serveErr)
		}
	}()

	return nil
}

// close flushes telemetry and stops the metrics endpoint.
func (rt *runtime) close(ctx context.Context) {
	if rt.metricsSrv != nil {
		_ = rt.metricsSrv.Shutdown(ctx)
	}

	if err := rt.providers.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
	}
}

// loadLibrary loads a force-field directory through the parsed-library cache
// when caching is enabled.
func (rt *runtime) loadLibrary(dir string) (*forcefield.ForceField, error) {
	if !rt.cfg.Cache.Enabled {
		return forcefield.LoadDirectory(dir, rt.logger)
	}

	cache := ffcache.New(expandHome(rt.cfg.Cache.Directory), rt.logger)

	key, err := ffcache.Fingerprint(dir)
	if err != nil {
		return nil, err
	}

	if ff, ok := cache.Load(key); ok {
		return ff, nil
	}

	ff, err := forcefield.LoadDirectory(dir, rt.logger)
	if err != nil {
		return nil, err
	}

	cache.Store(key, ff)

	return ff, nil
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}

	return path
}

// warnf prints a colorized warning to stderr unless quiet.
func warnf(format string, args ...any) {
	if flagQuiet {
		return
	}

	color.New(color.FgYellow).Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}
