package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List base images available on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		images, err := c.ListImages(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list images: %w", err)
		}

		f, err := newFormatter()
		if err != nil {
			return err
		}
		out, err := f.FormatImages(images)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		resp, err := c.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (version %s)\n", c.Endpoint(), resp.Status, resp.Version)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server's configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		s, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Status:        %s\n", s.Status)
		fmt.Printf("Version:       %s\n", s.Version)
		fmt.Printf("kdevops root:  %s\n", s.KdevopsRoot)
		fmt.Printf("Libvirt URI:   %s\n", s.LibvirtURI)
		fmt.Printf("Storage pool:  %s\n", s.StoragePoolPath)
		fmt.Printf("Base images:   %s\n", s.BaseImagesDir)
		fmt.Printf("Bridge:        %s\n", s.NetworkBridge)
		return nil
	},
}
