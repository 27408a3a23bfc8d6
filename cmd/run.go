package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"devdeck/internal/config"
	"devdeck/internal/dispatch"
	"devdeck/internal/procman"
	"devdeck/internal/state"
	"devdeck/internal/ui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the dashboard for the configured device",
	Long: `The run command reads the devdeck.yaml profile and opens the
dashboard. From there you can compile and upload firmware and attach
a live serial or MQTT monitor to the device.

Toolchain processes spawned from the dashboard are tracked and killed
when you quit, so no orphaned uploads keep a port busy.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("config", "c", config.DefaultFile, "Path to the device profile")
}

func runRun(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	configPath, _ := cmd.Flags().GetString("config")
	if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(cwd, configPath)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("profile not found at %s. Run 'devdeck init' first", configPath)
	}

	profile, err := config.Read(configPath)
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}

	registry := procman.NewRegistry()
	dash := state.New(state.DefaultMaxOutputLines, registry)
	dispatcher := dispatch.New(dash, registry, profile)

	err = ui.Run(profile.Name, dash, dispatcher)

	// The UI cancels on quit, but a crashed program must not leave
	// toolchain processes behind either.
	registry.KillAll()

	return err
}
