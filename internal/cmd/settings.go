package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/forgelabs/promptforge/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and update user settings",
	Long: `Inspect and update user-level settings: the remote service API key
and the data library location.

Settings are stored in the application data directory and picked up by
'promptforge serve' on startup.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	RunE:  runSettingsShow,
}

var settingsSetKeyCmd = &cobra.Command{
	Use:   "set-key <api-key>",
	Short: "Store the remote service API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsSetKey,
}

var settingsSetLibraryCmd = &cobra.Command{
	Use:   "set-library <path>",
	Short: "Store the data library path",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsSetLibrary,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetKeyCmd)
	settingsCmd.AddCommand(settingsSetLibraryCmd)
}

// settingsPath is a seam for tests; it points at the real settings file
// location under the application data directory.
var settingsPath = func() string {
	return settings.DefaultPath("promptforge")
}

func openSettingsStore() (*settings.Store, error) {
	return settings.Open(settingsPath())
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	store, err := openSettingsStore()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read settings", err)
	}

	current := store.Settings()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "api_key:      %s\n", redactKey(current.APIKey))
	if current.LibraryPath != "" {
		fmt.Fprintf(out, "library_path: %s\n", current.LibraryPath)
	} else {
		fmt.Fprintf(out, "library_path: (default)\n")
	}
	return nil
}

func runSettingsSetKey(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	if key == "" {
		return exitError(foundry.ExitInvalidArgument, "Empty API key", fmt.Errorf("api key must not be blank"))
	}

	store, err := openSettingsStore()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read settings", err)
	}
	if err := store.Update(func(s *settings.Settings) { s.APIKey = key }); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot write settings", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "API key stored")
	return nil
}

func runSettingsSetLibrary(cmd *cobra.Command, args []string) error {
	path := strings.TrimSpace(args[0])
	if path == "" {
		return exitError(foundry.ExitInvalidArgument, "Empty library path", fmt.Errorf("library path must not be blank"))
	}

	store, err := openSettingsStore()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read settings", err)
	}
	if err := store.Update(func(s *settings.Settings) { s.LibraryPath = path }); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot write settings", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "library path set to %s\n", path)
	return nil
}

// redactKey keeps enough of the key to recognize it without exposing it.
func redactKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
