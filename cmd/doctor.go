package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"devdeck/internal/config"
	"devdeck/internal/doctor"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the toolchain, ports and profile",
	Long: `The doctor command checks that arduino-cli is installed, lists the
serial ports visible on this machine and validates the devdeck.yaml
profile, including whether the configured port is present.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringP("config", "c", config.DefaultFile, "Path to the device profile")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	configPath, _ := cmd.Flags().GetString("config")
	if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(cwd, configPath)
	}

	spin := spinner.New(spinner.CharSets[21], 120*time.Millisecond, spinner.WithWriter(os.Stdout))
	spin.Suffix = " Checking environment..."
	spin.Start()
	diagnosis := doctor.Diagnose(configPath)
	spin.Stop()

	printDiagnosis(diagnosis)

	if !diagnosis.Healthy {
		os.Exit(1)
	}
	return nil
}

func printDiagnosis(d doctor.Diagnosis) {
	if d.Toolchain.Installed {
		version := d.Toolchain.Version
		if version == "" {
			version = d.Toolchain.Path
		}
		fmt.Printf("✅ arduino-cli: %s\n", version)
	} else {
		fmt.Println("❌ arduino-cli: not found on PATH")
	}

	if len(d.Ports.Available) == 0 {
		fmt.Println("⚠️  Serial ports: none detected")
	} else {
		fmt.Println("✅ Serial ports:")
		for _, port := range d.Ports.Available {
			marker := "  "
			if port == d.Ports.Configured {
				marker = "→ "
			}
			fmt.Printf("   %s%s\n", marker, port)
		}
	}

	switch {
	case !d.Profile.Found:
		fmt.Printf("❌ Profile: not found at %s\n", d.Profile.Path)
	case !d.Profile.Valid:
		fmt.Printf("❌ Profile: %s\n", d.Profile.Error)
	case !d.Ports.Present:
		fmt.Printf("⚠️  Profile: valid, but port %s is not connected\n", d.Ports.Configured)
	default:
		fmt.Println("✅ Profile: valid")
	}

	if d.Healthy {
		fmt.Println("\nAll checks passed")
	} else {
		fmt.Println("\nIssues:")
		for _, issue := range d.Issues {
			fmt.Printf("  • %s\n", issue)
		}
	}
}
