package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rcloud",
	Short: "rcloud - HTTP API for libvirt VMs",
	Long: `rcloud serves a small REST API for creating and managing libvirt VMs
from raw base images.

Settings are read from $KDEVOPS_ROOT/extra_vars.yaml and RCLOUD_*
environment variables. Running rcloud without a subcommand starts the
server.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "log verbosity (0 logs info and errors, higher adds debug output)")
	rootCmd.PersistentFlags().StringVar(&bindAddress, "bind", "", "listen address (overrides RCLOUD_SERVER_BIND)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(testConnCmd)
	rootCmd.AddCommand(imagesCmd)
}
