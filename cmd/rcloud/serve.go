package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/jbweber/rcloud/internal/api"
	"github.com/jbweber/rcloud/internal/command"
	"github.com/jbweber/rcloud/internal/config"
	"github.com/jbweber/rcloud/internal/events"
	"github.com/jbweber/rcloud/internal/logging"
	"github.com/jbweber/rcloud/internal/metrics"
	"github.com/jbweber/rcloud/internal/tracing"
	"github.com/jbweber/rcloud/internal/vm"
)

var (
	verbosity   int
	bindAddress string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	Long: `Run the rcloud API server until SIGINT or SIGTERM.

In-flight requests get 30 seconds to finish after a shutdown signal.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if bindAddress != "" {
		cfg.BindAddress = bindAddress
	}

	log, syncLog, err := logging.Setup(logging.Options{Development: cfg.LogDevelopment, Verbosity: verbosity})
	if err != nil {
		return err
	}
	defer syncLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(cfg.TraceStdout, os.Stderr, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error(err, "failed to flush traces")
		}
	}()

	publisher, closePublisher, err := newPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	met := metrics.New()
	mgr := vm.NewManager(cfg, command.ExecRunner{},
		vm.WithLogger(log.WithName("vm")),
		vm.WithPublisher(publisher),
		vm.WithMetrics(met),
	)
	srv := api.NewServer(mgr, cfg, version,
		api.WithLogger(log.WithName("api")),
		api.WithMetrics(met),
	)

	log.Info("starting rcloud",
		"version", version,
		"commit", commit,
		"bind", cfg.BindAddress,
		"libvirtURI", cfg.LibvirtURI,
		"storagePool", cfg.StoragePoolPath,
		"baseImages", cfg.BaseImagesDir,
	)
	if err := srv.Run(ctx, cfg.BindAddress); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info("rcloud stopped")
	return nil
}

// newPublisher connects to NATS when a URL is configured. Without one,
// lifecycle events are dropped.
func newPublisher(cfg *config.Config, log logr.Logger) (events.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return events.Nop{}, func() {}, nil
	}
	p, err := events.NewNATSPublisher(cfg.NATSURL, log.WithName("events"))
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}
