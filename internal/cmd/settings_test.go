package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/promptforge/internal/settings"
)

// pointSettingsAt redirects the settings commands at a file under dir for
// the duration of the test.
func pointSettingsAt(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, settings.DefaultFileName)
	prev := settingsPath
	settingsPath = func() string { return path }
	t.Cleanup(func() { settingsPath = prev })
	return path
}

func TestSettingsSetKeyAndShow(t *testing.T) {
	pointSettingsAt(t, t.TempDir())

	var out bytes.Buffer
	settingsSetKeyCmd.SetOut(&out)
	require.NoError(t, runSettingsSetKey(settingsSetKeyCmd, []string{"pf-live-abcd1234"}))
	assert.Contains(t, out.String(), "API key stored")

	out.Reset()
	settingsShowCmd.SetOut(&out)
	require.NoError(t, runSettingsShow(settingsShowCmd, nil))

	assert.Contains(t, out.String(), "****1234")
	assert.NotContains(t, out.String(), "pf-live-abcd1234")
	assert.Contains(t, out.String(), "library_path: (default)")
}

func TestSettingsSetLibrary(t *testing.T) {
	path := pointSettingsAt(t, t.TempDir())

	var out bytes.Buffer
	settingsSetLibraryCmd.SetOut(&out)
	require.NoError(t, runSettingsSetLibrary(settingsSetLibraryCmd, []string{"/data/library"}))
	assert.Contains(t, out.String(), "/data/library")

	store, err := settings.Open(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/library", store.LibraryPath())
}

func TestSettingsSetKeyRejectsBlank(t *testing.T) {
	pointSettingsAt(t, t.TempDir())

	err := runSettingsSetKey(settingsSetKeyCmd, []string{"   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Empty API key")
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "(not set)", redactKey(""))
	assert.Equal(t, "****", redactKey("abc"))
	assert.Equal(t, "****wxyz", redactKey("pf-live-wxyz"))
}
