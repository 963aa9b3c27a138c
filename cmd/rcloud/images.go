package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/rcloud/internal/command"
	"github.com/jbweber/rcloud/internal/config"
	"github.com/jbweber/rcloud/internal/vm"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List base images on this host",
	Long: `List the raw base images in the configured base image directory.

These are the names accepted as base_image when creating a VM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		names, err := vm.NewManager(cfg, command.ExecRunner{}).ListBaseImages()
		if err != nil {
			return fmt.Errorf("failed to list images: %w", err)
		}
		if len(names) == 0 {
			fmt.Printf("No images found in %s\n", cfg.BaseImagesDir)
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}
