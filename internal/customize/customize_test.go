package customize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"

	"github.com/jbweber/rcloud/internal/command"
)

const testKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIFoo test@example.com"

// fakeRunner records calls. While a call is in flight it captures the
// contents of the --ssh-inject key file so tests can assert on it after the
// file has been cleaned up.
type fakeRunner struct {
	calls      [][]string
	keyPath    string
	keyContent string
	keyExisted bool
	result     command.Result
	err        error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (command.Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	for i, a := range args {
		if a == "--ssh-inject" && i+1 < len(args) {
			parts := strings.SplitN(args[i+1], ":file:", 2)
			if len(parts) == 2 {
				f.keyPath = parts[1]
				data, err := os.ReadFile(f.keyPath)
				f.keyExisted = err == nil
				f.keyContent = string(data)
			}
		}
	}
	return f.result, f.err
}

func TestArgs(t *testing.T) {
	got := Args("/pool/test1/root.qcow2", "kdevops", "/tmp/key.pub")
	want := []string{
		"-a", "/pool/test1/root.qcow2",
		"--run-command", "useradd -m -s /bin/bash kdevops",
		"--run-command", "echo 'kdevops ALL=(ALL) NOPASSWD:ALL' > /etc/sudoers.d/kdevops",
		"--run-command", "chmod 0440 /etc/sudoers.d/kdevops",
		"--run-command", "mkdir -p /home/kdevops/.ssh",
		"--run-command", "chmod 0700 /home/kdevops/.ssh",
		"--ssh-inject", "kdevops:file:/tmp/key.pub",
		"--run-command", "chown -R kdevops:kdevops /home/kdevops",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args() =\n%q\nwant\n%q", got, want)
	}
}

func TestCustomize_Skip(t *testing.T) {
	tests := []struct {
		name           string
		defaultUser    string
		defaultKeyFile string
		req            Request
	}{
		{
			name:           "no user anywhere",
			defaultKeyFile: "/home/me/.ssh/id_ed25519.pub",
			req:            Request{PublicKey: testKey},
		},
		{
			name:        "no key anywhere",
			defaultUser: "kdevops",
		},
		{
			name: "nothing configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			c := New(runner, tt.defaultUser, tt.defaultKeyFile, testr.New(t))
			c.TempDir = t.TempDir()

			if err := c.Customize(context.Background(), "/pool/vm/root.qcow2", tt.req); err != nil {
				t.Fatalf("Customize() error = %v, want nil", err)
			}
			if len(runner.calls) != 0 {
				t.Errorf("virt-customize invoked %d times, want 0", len(runner.calls))
			}

			entries, _ := os.ReadDir(c.TempDir)
			if len(entries) != 0 {
				t.Errorf("temp dir has %d leftover files", len(entries))
			}
		})
	}
}

func TestCustomize_Precedence(t *testing.T) {
	tests := []struct {
		name        string
		req         Request
		wantUser    string
		wantKeyFile string // empty means "a temp file"
	}{
		{
			name:        "defaults",
			wantUser:    "cfguser",
			wantKeyFile: "/etc/rcloud/default.pub",
		},
		{
			name:        "request user wins",
			req:         Request{User: "requser"},
			wantUser:    "requser",
			wantKeyFile: "/etc/rcloud/default.pub",
		},
		{
			name:     "request key wins",
			req:      Request{PublicKey: testKey},
			wantUser: "cfguser",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			c := New(runner, "cfguser", "/etc/rcloud/default.pub", logr.Discard())
			c.TempDir = t.TempDir()

			if err := c.Customize(context.Background(), "/pool/vm/root.qcow2", tt.req); err != nil {
				t.Fatalf("Customize() error = %v", err)
			}
			if len(runner.calls) != 1 {
				t.Fatalf("virt-customize invoked %d times, want 1", len(runner.calls))
			}
			if runner.calls[0][0] != Tool {
				t.Errorf("ran %q, want %q", runner.calls[0][0], Tool)
			}

			wantKey := tt.wantKeyFile
			if wantKey == "" {
				if filepath.Dir(runner.keyPath) != c.TempDir {
					t.Errorf("key file %q not in temp dir %q", runner.keyPath, c.TempDir)
				}
				wantKey = runner.keyPath
			}
			want := append([]string{Tool}, Args("/pool/vm/root.qcow2", tt.wantUser, wantKey)...)
			if !reflect.DeepEqual(runner.calls[0], want) {
				t.Errorf("args =\n%q\nwant\n%q", runner.calls[0], want)
			}
		})
	}
}

func TestCustomize_TempKeyLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "success"},
		{
			name: "tool failure",
			err: &command.ExitError{Name: Tool, Result: command.Result{
				ExitCode: 1, Stdout: "[   0.0] Examining the guest ...", Stderr: "virt-customize: error: no operating systems were found",
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.err}
			c := New(runner, "kdevops", "", logr.Discard())
			c.TempDir = t.TempDir()

			err := c.Customize(context.Background(), "/pool/vm/root.qcow2", Request{PublicKey: testKey})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Customize() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !runner.keyExisted {
				t.Fatal("key file did not exist while virt-customize ran")
			}
			if runner.keyContent != testKey+"\n" {
				t.Errorf("key file content = %q, want %q", runner.keyContent, testKey+"\n")
			}
			base := filepath.Base(runner.keyPath)
			if !strings.HasPrefix(base, "rcloud_ssh_key_") || !strings.HasSuffix(base, ".pub") {
				t.Errorf("key file name %q does not match rcloud_ssh_key_<token>.pub", base)
			}
			if _, statErr := os.Stat(runner.keyPath); !os.IsNotExist(statErr) {
				t.Errorf("temporary key file %s still exists after Customize returned", runner.keyPath)
			}

			if tt.wantErr {
				var toolErr *ToolError
				if !errors.As(err, &toolErr) {
					t.Fatalf("error %T is not *ToolError", err)
				}
				if toolErr.ExitCode != 1 {
					t.Errorf("ExitCode = %d, want 1", toolErr.ExitCode)
				}
				if !strings.Contains(err.Error(), "no operating systems were found") {
					t.Errorf("error %q should carry stderr", err.Error())
				}
				if !strings.Contains(err.Error(), "Examining the guest") {
					t.Errorf("error %q should carry stdout", err.Error())
				}
			}
		})
	}
}

func TestCustomize_UniqueTempKeys(t *testing.T) {
	runner := &fakeRunner{}
	c := New(runner, "kdevops", "", logr.Discard())
	c.TempDir = t.TempDir()

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		if err := c.Customize(context.Background(), "/d", Request{PublicKey: testKey}); err != nil {
			t.Fatal(err)
		}
		if seen[runner.keyPath] {
			t.Fatalf("temporary key path %s reused", runner.keyPath)
		}
		seen[runner.keyPath] = true
	}
}
