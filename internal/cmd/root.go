// Package cmd wires the promptforge CLI: the API server, user settings,
// diagnostics and version reporting.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/forgelabs/promptforge/internal/observability"
)

// buildInfo carries the values stamped in at build time.
type buildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = buildInfo{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records the build metadata. main calls it before Execute.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// AppIdentity names the application for env, config and data directory
// discovery.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var appIdentity *AppIdentity

// GetAppIdentity returns the application identity, or nil before the root
// command has initialized it.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

func initAppIdentity() {
	if appIdentity == nil {
		appIdentity = &AppIdentity{
			BinaryName: "promptforge",
			EnvPrefix:  "PROMPTFORGE",
			ConfigName: "promptforge",
		}
	}
}

var (
	verbose    bool
	logProfile string
)

var rootCmd = &cobra.Command{
	Use:   "promptforge",
	Short: "Prompt optimization job tracking and eval scoring",
	Long: `promptforge tracks remote prompt-optimization jobs against a local
data library, materializes prompts and run configs from succeeded jobs,
and aggregates eval scores.

Run 'promptforge serve' to start the API server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initAppIdentity()
		setDefaults()
		return observability.InitCLILogger(logProfile, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logProfile, "log-profile", "cli", "Logging profile (cli|structured|test)")
}

// setDefaults seeds the global viper instance with the documented defaults.
func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.profile", "structured")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)

	viper.SetDefault("health.enabled", true)

	viper.SetDefault("workers", 4)

	viper.SetDefault("debug.enabled", false)
	viper.SetDefault("debug.pprof_enabled", false)

	viper.SetDefault("library.path", "")
	viper.SetDefault("remote.base_url", "https://api.promptforge.dev")
	viper.SetDefault("remote.timeout", "30s")
}

// Execute runs the CLI. Errors carrying an exit code terminate the process
// with it; everything else exits 1.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.CLILogger.Error(err.Error())
		stop()
		os.Exit(exitCodeFrom(err))
	}
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}

// ExitWithCode logs the failure and terminates immediately with code.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	logger.Error(message, zap.Error(err), zap.Int("exit_code", code))
	os.Exit(code)
}

// exitCodeFrom extracts the code embedded by exitError, defaulting to 1.
func exitCodeFrom(err error) int {
	msg := err.Error()
	idx := strings.LastIndex(msg, "(exit code ")
	if idx < 0 {
		return 1
	}
	var code int
	if _, scanErr := fmt.Sscanf(msg[idx:], "(exit code %d)", &code); scanErr != nil {
		return 1
	}
	return code
}
