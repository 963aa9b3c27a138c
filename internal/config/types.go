// Package config holds rcloud's process configuration.
//
// Values come from environment variables first and from the kdevops
// extra_vars.yaml file second; see Load.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/jbweber/rcloud/internal/naming"
)

const (
	// DefaultLibvirtURI is the libvirt connection used when none is configured.
	DefaultLibvirtURI = "qemu:///system"

	// DefaultNetworkBridge is the libvirt network new VMs attach to.
	DefaultNetworkBridge = "virbr0"

	// DefaultBindAddress is the HTTP listen address.
	DefaultBindAddress = "127.0.0.1:8765"

	// DefaultPrivilegeCommand prefixes commands that need root (virsh domifaddr).
	DefaultPrivilegeCommand = "sudo"
)

// Config is the resolved rcloud configuration.
type Config struct {
	// KdevopsRoot is the directory extra_vars.yaml was read from.
	KdevopsRoot string `yaml:"kdevops_root" json:"kdevops_root"`

	LibvirtURI      string `yaml:"libvirt_uri" json:"libvirt_uri"`
	StoragePoolPath string `yaml:"storage_pool_path" json:"storage_pool_path"`
	BaseImagesDir   string `yaml:"base_images_dir" json:"base_images_dir"`
	NetworkBridge   string `yaml:"network_bridge" json:"network_bridge"`
	BindAddress     string `yaml:"bind_address" json:"bind_address"`

	// SSHUser and SSHPublicKeyFile are the guest login defaults used when a
	// create request does not carry its own.
	SSHUser          string `yaml:"ssh_user,omitempty" json:"ssh_user,omitempty"`
	SSHPublicKeyFile string `yaml:"ssh_public_key_file,omitempty" json:"ssh_public_key_file,omitempty"`

	// PrivilegeCommand is split on whitespace and prepended to virsh calls.
	// Empty runs virsh directly.
	PrivilegeCommand string `yaml:"privilege_command" json:"privilege_command"`

	// NATSURL enables lifecycle event publishing when set.
	NATSURL string `yaml:"nats_url,omitempty" json:"nats_url,omitempty"`

	TraceStdout    bool `yaml:"trace_stdout" json:"trace_stdout"`
	LogDevelopment bool `yaml:"log_development" json:"log_development"`
}

// Validate checks the configuration for errors.
// It does not check that libvirt is reachable or that the network exists.
func (c *Config) Validate() error {
	if c.StoragePoolPath == "" {
		return fmt.Errorf("storage pool path is required (set RCLOUD_STORAGE_POOL_PATH or kdevops_storage_pool_path)")
	}
	if c.BaseImagesDir == "" {
		return fmt.Errorf("base images directory is required (set RCLOUD_BASE_IMAGES_DIR or guestfs_base_image_dir)")
	}
	if c.NetworkBridge == "" {
		return fmt.Errorf("network bridge cannot be empty")
	}
	if c.LibvirtURI == "" {
		return fmt.Errorf("libvirt URI cannot be empty")
	}
	if _, _, err := net.SplitHostPort(c.BindAddress); err != nil {
		return fmt.Errorf("invalid bind address %q: %w", c.BindAddress, err)
	}
	if c.SSHUser != "" {
		if err := naming.ValidateUserName(c.SSHUser); err != nil {
			return fmt.Errorf("invalid default SSH user: %w", err)
		}
	}
	return nil
}

// PrivilegePrefix returns PrivilegeCommand split into argv form.
func (c *Config) PrivilegePrefix() []string {
	return strings.Fields(c.PrivilegeCommand)
}

// expandHome replaces a leading "~/" with the current user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + strings.TrimPrefix(path, "~")
}
