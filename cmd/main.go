package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (can be set at build time)
var (
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devdeck",
	Short: "Terminal dashboard for embedded build, flash and monitor workflows",
	Long: `Devdeck is a terminal dashboard that drives the edit-compile-flash
loop for embedded devices. It wraps arduino-cli for compiling and
uploading firmware and streams live device output over serial or MQTT.

Usage:
  devdeck init     Generate a devdeck.yaml device profile
  devdeck run      Open the dashboard for the configured device
  devdeck doctor   Check the toolchain, ports and profile`,
	Version: version,
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
