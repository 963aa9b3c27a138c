// Package customize prepares a guest disk for login before first boot by
// running virt-customize against the offline image.
package customize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/jbweber/rcloud/internal/command"
)

// Tool is the offline customization binary.
const Tool = "virt-customize"

// ToolError is returned when virt-customize exits nonzero.
type ToolError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d: stdout: %s, stderr: %s",
		Tool, e.ExitCode, strings.TrimSpace(e.Stdout), strings.TrimSpace(e.Stderr))
}

// Request carries per-VM overrides. Empty fields fall back to the
// Customizer's defaults.
type Request struct {
	User      string
	PublicKey string
}

// Customizer creates a sudo-capable user with an authorized SSH key inside a
// guest disk image.
type Customizer struct {
	runner command.Runner
	log    logr.Logger

	// DefaultUser is used when a request carries no user.
	DefaultUser string
	// DefaultKeyFile is used when a request carries no key content.
	DefaultKeyFile string
	// TempDir holds inline keys while virt-customize runs. Empty means
	// os.TempDir().
	TempDir string
}

// New returns a Customizer that runs virt-customize through runner.
func New(runner command.Runner, defaultUser, defaultKeyFile string, log logr.Logger) *Customizer {
	return &Customizer{
		runner:         runner,
		log:            log.WithName("customize"),
		DefaultUser:    defaultUser,
		DefaultKeyFile: defaultKeyFile,
	}
}

// Customize injects the resolved user and key into the disk at diskPath. The
// disk must exist and must not be attached to a running domain.
//
// If no user or no key can be resolved, Customize logs and returns nil
// without touching the disk.
func (c *Customizer) Customize(ctx context.Context, diskPath string, req Request) error {
	user := req.User
	if user == "" {
		user = c.DefaultUser
	}
	if user == "" {
		c.log.Info("no SSH user configured, skipping disk customization", "disk", diskPath)
		return nil
	}

	keyFile := c.DefaultKeyFile
	if req.PublicKey != "" {
		path, cleanup, err := c.writeTempKey(req.PublicKey)
		if err != nil {
			return err
		}
		defer cleanup()
		keyFile = path
	}
	if keyFile == "" {
		c.log.Info("no SSH public key configured, skipping disk customization", "disk", diskPath)
		return nil
	}

	args := Args(diskPath, user, keyFile)
	c.log.Info("customizing disk", "disk", diskPath, "user", user)
	c.log.V(1).Info("running virt-customize", "cmd", command.Format(Tool, args...))

	res, err := c.runner.Run(ctx, Tool, args...)
	if err != nil {
		var exitErr *command.ExitError
		if errors.As(err, &exitErr) {
			return &ToolError{
				ExitCode: exitErr.Result.ExitCode,
				Stdout:   exitErr.Result.Stdout,
				Stderr:   exitErr.Result.Stderr,
			}
		}
		return fmt.Errorf("failed to run %s: %w", Tool, err)
	}

	c.log.Info("disk customized", "disk", diskPath, "user", user)
	c.log.V(1).Info("virt-customize output", "stdout", res.Stdout)
	return nil
}

// Args returns the virt-customize arguments that set up user on diskPath with
// the key in keyFile. The order of operations matters: the user must exist
// before its .ssh directory is populated and chowned.
func Args(diskPath, user, keyFile string) []string {
	home := "/home/" + user
	sudoers := "/etc/sudoers.d/" + user
	return []string{
		"-a", diskPath,
		"--run-command", fmt.Sprintf("useradd -m -s /bin/bash %s", user),
		"--run-command", fmt.Sprintf("echo '%s ALL=(ALL) NOPASSWD:ALL' > %s", user, sudoers),
		"--run-command", fmt.Sprintf("chmod 0440 %s", sudoers),
		"--run-command", fmt.Sprintf("mkdir -p %s/.ssh", home),
		"--run-command", fmt.Sprintf("chmod 0700 %s/.ssh", home),
		"--ssh-inject", fmt.Sprintf("%s:file:%s", user, keyFile),
		"--run-command", fmt.Sprintf("chown -R %s:%s %s", user, user, home),
	}
}

// writeTempKey writes key to a uniquely named file and returns its path and a
// function that removes it.
func (c *Customizer) writeTempKey(key string) (string, func(), error) {
	dir := c.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("rcloud_ssh_key_%s.pub", uuid.NewString()))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temporary SSH key file: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Info("warning: failed to remove temporary SSH key file", "path", path, "error", err.Error())
		}
	}

	if _, err := f.WriteString(strings.TrimRight(key, "\n") + "\n"); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write temporary SSH key file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write temporary SSH key file: %w", err)
	}

	return path, cleanup, nil
}
