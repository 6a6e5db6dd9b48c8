// Package config loads server configuration from defaults, config files,
// environment variables and runtime overrides, in ascending precedence.
//
// Config files are discovered in two scopes: the project root (a
// .promptforge.yaml next to go.mod, found by walking up from the working
// directory) and the user's home config. In CI the project root can sit
// outside $HOME, so discovery honors workspace boundary hints
// (PROMPTFORGE_WORKSPACE_ROOT, GITHUB_WORKSPACE, CI_PROJECT_DIR, WORKSPACE)
// before falling back to the go.mod walk.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the resolved server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Library LibraryConfig `mapstructure:"library"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Workers int           `mapstructure:"workers"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures log level and output profile.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig configures health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig configures debug facilities.
type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// LibraryConfig locates the data library on disk. An empty path means the
// application data directory.
type LibraryConfig struct {
	Path string `mapstructure:"path"`
}

// RemoteConfig configures the remote optimization service client.
type RemoteConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// identity names the application for env and config file discovery.
type identity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var (
	configMu    sync.Mutex
	appConfig   *Config
	appIdentity *identity
)

// envSpec maps one environment variable onto a config key.
type envSpec struct {
	Name string
	Path string
}

// Load resolves the configuration. Runtime overrides (nested maps mirroring
// the config structure) take precedence over environment variables, which
// take precedence over config files and defaults. The loaded config becomes
// the one GetConfig returns.
func Load(_ context.Context, overrides ...map[string]any) (*Config, error) {
	configMu.Lock()
	defer configMu.Unlock()

	if appIdentity == nil {
		appIdentity = &identity{
			BinaryName: "promptforge",
			EnvPrefix:  "PROMPTFORGE",
			ConfigName: "promptforge",
		}
	}

	v := viper.New()
	setLoaderDefaults(v)

	// User scope first, project scope second, so project config wins.
	for _, path := range getUserConfigPaths() {
		if err := mergeConfigFile(v, path); err != nil {
			return nil, err
		}
	}
	if root, err := findProjectRoot(); err == nil {
		if err := mergeConfigFile(v, filepath.Join(root, ".promptforge.yaml")); err != nil {
			return nil, err
		}
	}

	for _, spec := range getEnvSpecs() {
		if value, ok := os.LookupEnv(spec.Name); ok && value != "" {
			v.Set(spec.Path, value)
		}
	}

	for _, override := range overrides {
		applyOverrides(v, "", override)
	}

	// Env values arrive as strings, so decoding needs the duration hook and
	// weak typing for ints and bools.
	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	appConfig = cfg
	return cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil when
// Load has not run.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return appConfig
}

func setLoaderDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)

	v.SetDefault("library.path", "")

	v.SetDefault("remote.base_url", "https://api.promptforge.dev")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("remote.rate_limit", 5.0)

	v.SetDefault("workers", 4)
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// applyOverrides flattens nested override maps into per-key Set calls so a
// partial override never clobbers sibling keys.
func applyOverrides(v *viper.Viper, prefix string, values map[string]any) {
	for key, value := range values {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			applyOverrides(v, path, nested)
			continue
		}
		v.Set(path, value)
	}
}

// getEnvSpecs lists the environment variables recognized by Load. Empty
// until an identity is established by Load.
func getEnvSpecs() []envSpec {
	if appIdentity == nil {
		return nil
	}
	p := appIdentity.EnvPrefix + "_"
	return []envSpec{
		{Name: p + "HOST", Path: "server.host"},
		{Name: p + "PORT", Path: "server.port"},
		{Name: p + "READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: p + "WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: p + "IDLE_TIMEOUT", Path: "server.idle_timeout"},
		{Name: p + "SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: p + "LOG_LEVEL", Path: "logging.level"},
		{Name: p + "LOG_PROFILE", Path: "logging.profile"},
		{Name: p + "METRICS_ENABLED", Path: "metrics.enabled"},
		{Name: p + "METRICS_PORT", Path: "metrics.port"},
		{Name: p + "HEALTH_ENABLED", Path: "health.enabled"},
		{Name: p + "WORKERS", Path: "workers"},
		{Name: p + "DEBUG", Path: "debug.enabled"},
		{Name: p + "PPROF_ENABLED", Path: "debug.pprof_enabled"},
		{Name: p + "LIBRARY_PATH", Path: "library.path"},
		{Name: p + "REMOTE_BASE_URL", Path: "remote.base_url"},
		{Name: p + "REMOTE_TIMEOUT", Path: "remote.timeout"},
		{Name: p + "REMOTE_RATE_LIMIT", Path: "remote.rate_limit"},
	}
}

// getUserConfigPaths lists candidate user-scope config files. Empty until
// an identity is established by Load.
func getUserConfigPaths() []string {
	if appIdentity == nil {
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	name := appIdentity.ConfigName
	return []string{
		filepath.Join(home, ".config", name, "config.yaml"),
		filepath.Join(home, "."+name+".yaml"),
	}
}

// findProjectRoot locates the repository root. In CI, workspace boundary
// variables are trusted when they name an absolute, existing directory that
// contains the working directory; otherwise discovery walks up from the
// working directory looking for go.mod.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	if os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true" {
		boundaryVars := []string{"PROMPTFORGE_WORKSPACE_ROOT", "GITHUB_WORKSPACE", "CI_PROJECT_DIR", "WORKSPACE"}
		for _, name := range boundaryVars {
			boundary := os.Getenv(name)
			if boundary == "" || !filepath.IsAbs(boundary) {
				continue
			}
			info, err := os.Stat(boundary)
			if err != nil || !info.IsDir() {
				continue
			}
			if !isWithin(boundary, cwd) {
				continue
			}
			return boundary, nil
		}
	}

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("project root not found from %s", cwd)
		}
		dir = parent
	}
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
