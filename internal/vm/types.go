package vm

import (
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/jbweber/rcloud/internal/naming"
)

// State is the coarse lifecycle state reported for a VM.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Spec describes a VM to create.
type Spec struct {
	Name       string
	VCPUs      uint
	MemoryMB   uint
	BaseImage  string
	RootDiskGB uint64

	// SSHUser and SSHPublicKey override the configured guest login defaults.
	SSHUser      string
	SSHPublicKey string
}

// Validate checks the fields that can be checked without touching the host.
func (s *Spec) Validate() error {
	if err := naming.ValidateVMName(s.Name); err != nil {
		return err
	}
	if s.VCPUs == 0 {
		return fmt.Errorf("vcpus must be positive")
	}
	if s.MemoryMB == 0 {
		return fmt.Errorf("memory_mb must be positive")
	}
	if err := naming.ValidateImageName(s.BaseImage); err != nil {
		return err
	}
	if s.RootDiskGB == 0 {
		return fmt.Errorf("root_disk_gb must be positive")
	}
	if s.SSHUser != "" {
		if err := naming.ValidateUserName(s.SSHUser); err != nil {
			return err
		}
	}
	if s.SSHPublicKey != "" {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(s.SSHPublicKey)); err != nil {
			return fmt.Errorf("invalid ssh_public_key: %w", err)
		}
	}
	return nil
}

// Info is a point-in-time view of a VM, recomputed on every query.
type Info struct {
	ID        string
	Name      string
	State     State
	VCPUs     uint16
	MemoryMB  uint64
	IPAddress string
}
