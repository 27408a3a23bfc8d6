package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"devdeck/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a devdeck.yaml device profile",
	Long: `The init command writes a devdeck.yaml scaffold into the current
directory. Edit the generated file to point at your sketch, board
(FQBN), serial port and, optionally, an MQTT broker.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringP("output", "o", config.DefaultFile, "Output file path for the profile")
	initCmd.Flags().StringP("name", "n", "", "Device name (defaults to the directory name)")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing profile")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	outputPath, _ := cmd.Flags().GetString("output")
	name, _ := cmd.Flags().GetString("name")
	force, _ := cmd.Flags().GetBool("force")

	if !filepath.IsAbs(outputPath) {
		outputPath = filepath.Join(cwd, outputPath)
	}
	if name == "" {
		name = filepath.Base(cwd)
	}

	if _, err := os.Stat(outputPath); err == nil && !force {
		return fmt.Errorf("profile already exists at %s. Use --force to overwrite", outputPath)
	}

	if err := config.Write(outputPath, config.Default(name)); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	fmt.Printf("✅ Profile written to %s\n", outputPath)
	fmt.Println("ℹ️  Edit the fqbn and port, then run 'devdeck run'")

	return nil
}
