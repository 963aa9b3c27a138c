package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/rcloud/internal/client"
	"github.com/jbweber/rcloud/internal/output"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags.
var (
	endpoint       string
	token          string
	outputFormat   string
	noHeaders      bool
	requestTimeout time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rcloudctl",
	Short: "rcloudctl - client for the rcloud API",
	Long: `rcloudctl creates and manages VMs through a running rcloud server.

The server address is taken from --endpoint, then RCLOUD_ENDPOINT, then
defaults to ` + client.DefaultEndpoint + `.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return output.ValidateFormat(outputFormat)
	},
}

func init() {
	defaultEndpoint := client.DefaultEndpoint
	if env := os.Getenv("RCLOUD_ENDPOINT"); env != "" {
		defaultEndpoint = env
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&endpoint, "endpoint", defaultEndpoint, "rcloud server URL (env RCLOUD_ENDPOINT)")
	flags.StringVar(&token, "token", os.Getenv("RCLOUD_TOKEN"), "bearer token sent with every request (env RCLOUD_TOKEN)")
	flags.StringVarP(&outputFormat, "output", "o", string(output.FormatTable), "output format: table, yaml, json")
	flags.BoolVar(&noHeaders, "no-headers", false, "omit table headers")
	flags.DurationVar(&requestTimeout, "request-timeout", 10*time.Minute, "timeout for a single API request; create blocks until provisioning finishes")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)
}

func newClient() (*client.Client, error) {
	return client.New(endpoint, client.WithToken(token), client.WithTimeout(requestTimeout))
}

func newFormatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{Format: output.Format(outputFormat), NoHeaders: noHeaders})
}
