// Package disk manages per-VM copy-on-write root disks on the local
// filesystem.
//
// Layout under the storage pool root:
//
//	<pool>/<vm-name>/root.qcow2
//
// There is no index beside the files themselves; the path of a VM's disk is
// always derived from the pool root and the VM name.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/jbweber/rcloud/internal/command"
)

const (
	// RootDiskName is the file name of the root disk inside a VM directory.
	RootDiskName = "root.qcow2"

	// DirPermissions are the permissions for VM directories
	DirPermissions = 0755

	// BackingFormat is the assumed on-disk format of base images.
	BackingFormat = "raw"
)

// ToolError is returned when qemu-img exits nonzero.
type ToolError struct {
	Stderr   string
	ExitCode int
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("qemu-img failed: %s", strings.TrimSpace(e.Stderr))
}

// IOError wraps a filesystem failure on a disk path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Provisioner creates and removes VM disks under a storage pool root.
type Provisioner struct {
	poolRoot string
	runner   command.Runner
	log      logr.Logger
}

// NewProvisioner returns a Provisioner rooted at poolRoot. qemu-img is run
// through runner.
func NewProvisioner(poolRoot string, runner command.Runner, log logr.Logger) *Provisioner {
	return &Provisioner{
		poolRoot: poolRoot,
		runner:   runner,
		log:      log.WithName("disk"),
	}
}

// VMDir returns the directory that holds a VM's disk.
func (p *Provisioner) VMDir(vmName string) string {
	return filepath.Join(p.poolRoot, vmName)
}

// RootDiskPath returns the path of a VM's root disk.
func (p *Provisioner) RootDiskPath(vmName string) string {
	return filepath.Join(p.VMDir(vmName), RootDiskName)
}

// CreateCOWDisk creates a qcow2 overlay at targetPath backed by the raw image
// at basePath, with a virtual size of sizeGiB.
//
// The parent directory is created if needed. If it did not exist before and
// qemu-img fails, it is removed again so a failed call leaves nothing behind.
func (p *Provisioner) CreateCOWDisk(ctx context.Context, basePath, targetPath string, sizeGiB uint64) error {
	parent := filepath.Dir(targetPath)

	_, statErr := os.Stat(parent)
	createdParent := errors.Is(statErr, fs.ErrNotExist)

	if err := os.MkdirAll(parent, DirPermissions); err != nil {
		return &IOError{Op: "create directory", Path: parent, Err: err}
	}

	args := []string{
		"create",
		"-f", "qcow2",
		"-b", basePath,
		"-F", BackingFormat,
		targetPath,
		fmt.Sprintf("%dG", sizeGiB),
	}
	p.log.V(1).Info("running qemu-img", "cmd", command.Format("qemu-img", args...))

	res, err := p.runner.Run(ctx, "qemu-img", args...)
	if err != nil {
		if createdParent {
			if rmErr := os.Remove(parent); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				p.log.Info("warning: failed to remove directory after qemu-img failure", "path", parent, "error", rmErr.Error())
			}
		}

		var exitErr *command.ExitError
		if errors.As(err, &exitErr) {
			return &ToolError{Stderr: exitErr.Result.Stderr, ExitCode: exitErr.Result.ExitCode}
		}
		return &ToolError{Stderr: err.Error(), ExitCode: -1}
	}

	p.log.Info("created COW disk", "path", targetPath, "base", basePath, "sizeGiB", sizeGiB, "stdout", strings.TrimSpace(res.Stdout))
	return nil
}

// DeleteDisk removes the disk at path. A missing file is not an error.
func (p *Provisioner) DeleteDisk(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &IOError{Op: "delete disk", Path: path, Err: err}
	}
	p.log.Info("deleted disk", "path", path)
	return nil
}

// RemoveVMDir removes the VM directory. It only succeeds when the directory
// is empty; a missing directory is not an error.
func (p *Provisioner) RemoveVMDir(vmName string) error {
	dir := p.VMDir(vmName)
	if err := os.Remove(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &IOError{Op: "remove directory", Path: dir, Err: err}
	}
	p.log.Info("removed VM directory", "path", dir)
	return nil
}

// VMDirExists reports whether the VM directory is present.
func (p *Provisioner) VMDirExists(vmName string) (bool, error) {
	_, err := os.Stat(p.VMDir(vmName))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &IOError{Op: "stat", Path: p.VMDir(vmName), Err: err}
}
