// Command myday is a daily task tracker synced with a hosted backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/magicmac/myday/internal/ui"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "myday",
	Short: "Plan today, tick it off, start fresh tomorrow",
	Long: `myday keeps a short list of tasks for the current day.

Tasks are stored in the hosted backend and mirrored to a local file that
home-screen widgets read. At midnight the list starts empty again; earlier
days remain available in the archive.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.myday/config.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Tasks:"},
		&cobra.Group{ID: "sync", Title: "Sync and services:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}

func main() {
	ui.Init(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
