package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/jbweber/rcloud/api/v1"
)

var (
	createVCPUs       uint
	createMemoryMB    uint
	createBaseImage   string
	createRootDiskGB  uint64
	createSSHUser     string
	createSSHKeyFile  string
	createWait        bool
	createWaitTimeout time.Duration
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a VM",
	Long: `Create a VM from a base image.

The server provisions the disk, customizes it and boots the VM before
responding. With --wait, rcloudctl then polls until the VM reports an IP
address.

Example:
  rcloudctl create web1 --image debian-13-genericcloud-amd64.raw --vcpus 2 --memory 4096 --disk 40 --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		req := &v1.CreateVMRequest{
			Name:       args[0],
			VCPUs:      createVCPUs,
			MemoryMB:   createMemoryMB,
			BaseImage:  createBaseImage,
			RootDiskGB: createRootDiskGB,
			SSHUser:    createSSHUser,
		}
		if createSSHKeyFile != "" {
			if err := req.SetPublicKeyFromFile(createSSHKeyFile); err != nil {
				return err
			}
		}

		resp, err := c.CreateVM(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to create VM: %w", err)
		}
		fmt.Printf("✓ VM %s created (id %s)\n", resp.Name, resp.ID)

		if !createWait {
			return nil
		}

		fmt.Printf("Waiting up to %s for %s to get an address...\n", createWaitTimeout, resp.Name)
		ctx, cancel := context.WithTimeout(cmd.Context(), createWaitTimeout)
		defer cancel()

		vm, err := c.WaitForVM(ctx, resp.ID, 0)
		if err != nil {
			return err
		}
		return printVM(vm)
	},
}

func init() {
	flags := createCmd.Flags()
	flags.UintVar(&createVCPUs, "vcpus", 2, "number of virtual CPUs")
	flags.UintVar(&createMemoryMB, "memory", 2048, "memory in MiB")
	flags.StringVar(&createBaseImage, "image", "", "base image file name (see 'rcloudctl images')")
	flags.Uint64Var(&createRootDiskGB, "disk", 20, "root disk size in GiB")
	flags.StringVar(&createSSHUser, "ssh-user", "", "guest user to create (server default when empty)")
	flags.StringVar(&createSSHKeyFile, "ssh-key-file", "", "public key file installed for the guest user (server default when empty)")
	flags.BoolVar(&createWait, "wait", false, "wait until the VM is running with an IP address")
	flags.DurationVar(&createWaitTimeout, "wait-timeout", 5*time.Minute, "how long --wait polls before giving up")
	_ = createCmd.MarkFlagRequired("image")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List VMs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		vms, err := c.ListVMs(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list VMs: %w", err)
		}

		f, err := newFormatter()
		if err != nil {
			return err
		}
		out, err := f.FormatVMList(vms)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id-or-name>",
	Short: "Show one VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		vm, err := c.GetVM(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printVM(vm)
	},
}

var startCmd = &cobra.Command{
	Use:   "start <id-or-name>",
	Short: "Start a stopped VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd.Context(), args[0], "start", "started")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <id-or-name>",
	Short: "Request a graceful guest shutdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd.Context(), args[0], "stop", "stop requested")
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy <id-or-name>",
	Short: "Destroy a VM",
	Long: `Destroy a VM by id or name.

This will:
- Force off the VM if running
- Undefine the domain and its NVRAM
- Delete the disk and the VM directory`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd.Context(), args[0], "destroy", "destroyed")
	},
}

func runAction(ctx context.Context, idOrName, verb, done string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	switch verb {
	case "start":
		err = c.StartVM(ctx, idOrName)
	case "stop":
		err = c.StopVM(ctx, idOrName)
	case "destroy":
		err = c.DestroyVM(ctx, idOrName)
	}
	if err != nil {
		return fmt.Errorf("failed to %s VM %s: %w", verb, idOrName, err)
	}

	fmt.Printf("✓ VM %s %s\n", idOrName, done)
	return nil
}

func printVM(vm *v1.VM) error {
	f, err := newFormatter()
	if err != nil {
		return err
	}
	out, err := f.FormatVM(vm)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
