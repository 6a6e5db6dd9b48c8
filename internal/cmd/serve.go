package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	gfconfig "github.com/fulmenhq/gofulmen/config"

	"github.com/forgelabs/promptforge/internal/config"
	"github.com/forgelabs/promptforge/internal/observability"
	"github.com/forgelabs/promptforge/internal/server"
	"github.com/forgelabs/promptforge/internal/server/handlers"
	"github.com/forgelabs/promptforge/internal/settings"
	"github.com/forgelabs/promptforge/pkg/datamodel"
	"github.com/forgelabs/promptforge/pkg/joblock"
	"github.com/forgelabs/promptforge/pkg/optimizer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	Long: `Run the promptforge API server.

The server exposes the optimization-job and eval-scoring routes under
/api/projects/{projectID}/tasks/{taskID}, health probes under /health,
and version information under /version. Metrics are served on a separate
listener when enabled.

Example:
  promptforge serve
  promptforge serve --port 9000
  promptforge serve --library /data/promptforge`,
	RunE: runServe,
}

var (
	serveHost    string
	servePort    int
	serveLibrary string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind address (overrides config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
	serveCmd.Flags().StringVar(&serveLibrary, "library", "", "Data library path (overrides config)")
}

// signalHealthChecker reports on the serve loop's signal handling. The
// signal context is installed before the server starts, so the check is a
// presence marker in health output.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(context.Context) error {
	return nil
}

// telemetryHealthChecker verifies the telemetry system is live.
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errors.New("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker verifies the application identity is complete.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(context.Context) error {
	if c.binaryName == "" {
		return errors.New("missing binary name")
	}
	if c.envPrefix == "" {
		return errors.New("missing env prefix")
	}
	if c.configName == "" {
		return errors.New("missing config name")
	}
	return nil
}

// libraryHealthChecker verifies the data library directory is reachable.
type libraryHealthChecker struct {
	path string
}

func (c libraryHealthChecker) CheckHealth(context.Context) error {
	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("library path %s: %w", c.path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("library path %s is not a directory", c.path)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx, serveOverrides(cmd)...)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	logger, err := observability.NewLogger("promptforge", cfg.Logging.Profile, cfg.Logging.Level)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := observability.InitTelemetry("promptforge"); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Telemetry initialization failed", err)
	}

	settingsStore, err := settings.Open(settings.DefaultPath("promptforge"))
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read settings", err)
	}

	libraryPath := resolveLibraryPath(cfg, settingsStore)
	if err := os.MkdirAll(libraryPath, 0o755); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot create library directory", err)
	}
	store := datamodel.NewStore(libraryPath)

	client := optimizer.NewHTTPClient(optimizer.ClientConfig{
		BaseURL:   cfg.Remote.BaseURL,
		APIKey:    settingsStore.APIKey(),
		Timeout:   cfg.Remote.Timeout,
		RateLimit: cfg.Remote.RateLimit,
	})
	syncer := optimizer.NewSynchronizer(store, client, joblock.NewRegistry(), logger.Named("sync"))
	jobsHandler := handlers.NewJobsHandler(
		optimizer.NewSubmitter(store, client, settingsStore, logger.Named("submit")),
		optimizer.NewLister(store, syncer, logger.Named("list")),
		logger.Named("jobs"),
	)
	evalsHandler := handlers.NewEvalsHandler(store, logger.Named("evals"))

	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	handlers.InitHealthManager(versionInfo.Version)
	if manager := handlers.GetHealthManager(); manager != nil {
		manager.RegisterChecker("signals", signalHealthChecker{})
		manager.RegisterChecker("telemetry", telemetryHealthChecker{})
		manager.RegisterChecker("library", libraryHealthChecker{path: libraryPath})
		if identity := GetAppIdentity(); identity != nil {
			manager.RegisterChecker("identity", identityHealthChecker{
				binaryName: identity.BinaryName,
				envPrefix:  identity.EnvPrefix,
				configName: identity.ConfigName,
			})
		}
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithLogger(logger),
		server.WithTaskHandlers(jobsHandler, evalsHandler),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	metricsSrv := startMetricsServer(cfg, logger)

	logger.Info("promptforge serving",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", srv.Port()),
		zap.String("library", libraryPath),
		zap.String("remote", cfg.Remote.BaseURL))

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return shutdown(srv, metricsSrv, cfg.Server.ShutdownTimeout, logger)

		case sig := <-srv.Signals():
			switch sig {
			case server.SignalShutdown:
				logger.Info("admin shutdown requested")
				return shutdown(srv, metricsSrv, cfg.Server.ShutdownTimeout, logger)
			case server.SignalReload:
				if _, err := config.Load(ctx, serveOverrides(cmd)...); err != nil {
					logger.Warn("config reload failed", zap.Error(err))
				} else {
					logger.Info("config reloaded")
				}
			}

		case err := <-serveErr:
			if err != nil {
				stopMetricsServer(metricsSrv, logger)
				return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
			}
			return nil
		}
	}
}

// serveOverrides translates set flags into runtime config overrides.
func serveOverrides(cmd *cobra.Command) []map[string]any {
	override := map[string]any{}
	if cmd.Flags().Changed("host") {
		override["server"] = map[string]any{"host": serveHost}
	}
	if cmd.Flags().Changed("port") {
		srv, _ := override["server"].(map[string]any)
		if srv == nil {
			srv = map[string]any{}
		}
		srv["port"] = servePort
		override["server"] = srv
	}
	if cmd.Flags().Changed("library") {
		override["library"] = map[string]any{"path": serveLibrary}
	}
	if len(override) == 0 {
		return nil
	}
	return []map[string]any{override}
}

// resolveLibraryPath picks the data library location: explicit config, then
// user settings, then the application data directory.
func resolveLibraryPath(cfg *config.Config, settingsStore *settings.Store) string {
	if cfg.Library.Path != "" {
		return cfg.Library.Path
	}
	if path := settingsStore.LibraryPath(); path != "" {
		return path
	}
	return filepath.Join(gfconfig.GetAppDataDir("promptforge"), "projects")
}

// startMetricsServer exposes the telemetry exporter on its own listener.
// Returns nil when metrics are disabled.
func startMetricsServer(cfg *config.Config, logger *zap.Logger) *http.Server {
	if !cfg.Metrics.Enabled || observability.PrometheusExporter == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.PrometheusExporter.Handler())
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", zap.Int("port", cfg.Metrics.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func stopMetricsServer(srv *http.Server, logger *zap.Logger) {
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown failed", zap.Error(err))
	}
}

// shutdown drains both listeners within the configured timeout.
func shutdown(srv *server.Server, metricsSrv *http.Server, timeout time.Duration, logger *zap.Logger) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}
	stopMetricsServer(metricsSrv, logger)

	logger.Info("server stopped")
	return nil
}
