package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/promptforge/internal/observability"
)

func TestSignalHealthChecker(t *testing.T) {
	checker := signalHealthChecker{}

	t.Run("always returns nil", func(t *testing.T) {
		err := checker.CheckHealth(context.Background())
		assert.NoError(t, err)
	})
}

func TestTelemetryHealthChecker(t *testing.T) {
	checker := telemetryHealthChecker{}

	t.Run("returns error when telemetry not initialized", func(t *testing.T) {
		// Save and restore
		origTelemetry := observability.TelemetrySystem
		origExporter := observability.PrometheusExporter
		defer func() {
			observability.TelemetrySystem = origTelemetry
			observability.PrometheusExporter = origExporter
		}()

		observability.TelemetrySystem = nil
		observability.PrometheusExporter = nil

		err := checker.CheckHealth(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry system not initialized")
	})

	t.Run("passes once telemetry is initialized", func(t *testing.T) {
		origTelemetry := observability.TelemetrySystem
		origExporter := observability.PrometheusExporter
		defer func() {
			observability.TelemetrySystem = origTelemetry
			observability.PrometheusExporter = origExporter
		}()

		require.NoError(t, observability.InitTelemetry("cmd-test"))
		assert.NoError(t, checker.CheckHealth(context.Background()))
	})
}

func TestIdentityHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		binaryName string
		envPrefix  string
		configName string
		wantErr    bool
		errContain string
	}{
		{
			name:       "all fields valid",
			binaryName: "myapp",
			envPrefix:  "MYAPP",
			configName: "myapp",
			wantErr:    false,
		},
		{
			name:       "missing binary name",
			binaryName: "",
			envPrefix:  "MYAPP",
			configName: "myapp",
			wantErr:    true,
			errContain: "missing binary name",
		},
		{
			name:       "missing env prefix",
			binaryName: "myapp",
			envPrefix:  "",
			configName: "myapp",
			wantErr:    true,
			errContain: "missing env prefix",
		},
		{
			name:       "missing config name",
			binaryName: "myapp",
			envPrefix:  "MYAPP",
			configName: "",
			wantErr:    true,
			errContain: "missing config name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := identityHealthChecker{
				binaryName: tt.binaryName,
				envPrefix:  tt.envPrefix,
				configName: tt.configName,
			}

			err := checker.CheckHealth(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContain)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLibraryHealthChecker(t *testing.T) {
	t.Run("passes for an existing directory", func(t *testing.T) {
		checker := libraryHealthChecker{path: t.TempDir()}
		assert.NoError(t, checker.CheckHealth(context.Background()))
	})

	t.Run("fails for a missing directory", func(t *testing.T) {
		checker := libraryHealthChecker{path: filepath.Join(t.TempDir(), "nope")}
		assert.Error(t, checker.CheckHealth(context.Background()))
	})

	t.Run("fails for a plain file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "library")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		checker := libraryHealthChecker{path: path}
		err := checker.CheckHealth(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})
}

func TestServeOverrides(t *testing.T) {
	t.Run("no flags means no overrides", func(t *testing.T) {
		assert.Nil(t, serveOverrides(newServeCmdForTest(t, nil)))
	})

	t.Run("port and library flags become nested overrides", func(t *testing.T) {
		cmd := newServeCmdForTest(t, map[string]string{
			"port":    "9000",
			"library": "/data/lib",
		})

		overrides := serveOverrides(cmd)
		require.Len(t, overrides, 1)

		srv, ok := overrides[0]["server"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 9000, srv["port"])

		lib, ok := overrides[0]["library"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "/data/lib", lib["path"])
	})
}

// newServeCmdForTest clones the serve flag set so Changed() state does not
// leak between tests.
func newServeCmdForTest(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().StringVar(&serveHost, "host", "", "")
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "")
	cmd.Flags().StringVar(&serveLibrary, "library", "", "")

	for name, value := range flags {
		require.NoError(t, cmd.Flags().Set(name, value))
	}
	return cmd
}
