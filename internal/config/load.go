package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExtraVarsFile is the kdevops settings file read from KdevopsRoot.
const ExtraVarsFile = "extra_vars.yaml"

// LookupEnvFunc matches os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

// Load resolves the configuration from the process environment and
// $KDEVOPS_ROOT/extra_vars.yaml (the working directory when KDEVOPS_ROOT is
// unset), then validates it.
func Load() (*Config, error) {
	root, ok := os.LookupEnv("KDEVOPS_ROOT")
	if !ok || root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		root = cwd
	}

	cfg, err := LoadWith(root, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadWith resolves the configuration from root/extra_vars.yaml and the given
// environment. A missing extra_vars.yaml is not an error. The result is not
// validated.
func LoadWith(root string, lookupEnv LookupEnvFunc) (*Config, error) {
	vars, err := readExtraVars(filepath.Join(root, ExtraVarsFile))
	if err != nil {
		return nil, err
	}

	r := resolver{vars: vars, env: lookupEnv}

	cfg := &Config{
		KdevopsRoot:      root,
		LibvirtURI:       r.str("RCLOUD_LIBVIRT_URI", []string{"libvirt_uri"}, DefaultLibvirtURI),
		StoragePoolPath:  expandHome(r.str("RCLOUD_STORAGE_POOL_PATH", []string{"kdevops_storage_pool_path", "libvirt_storage_pool_path"}, "")),
		BaseImagesDir:    expandHome(r.str("RCLOUD_BASE_IMAGES_DIR", []string{"guestfs_base_image_dir"}, "")),
		NetworkBridge:    r.str("RCLOUD_NETWORK_BRIDGE", []string{"libvirt_bridge_name"}, DefaultNetworkBridge),
		BindAddress:      r.str("RCLOUD_SERVER_BIND", []string{"rcloud_server_bind"}, DefaultBindAddress),
		SSHUser:          r.str("RCLOUD_SSH_USER", []string{"kdevops_terraform_ssh_config_user"}, ""),
		SSHPublicKeyFile: expandHome(r.str("RCLOUD_SSH_PUBKEY_FILE", []string{"kdevops_terraform_ssh_config_pubkey_file"}, "")),
		PrivilegeCommand: r.str("RCLOUD_PRIVILEGE_COMMAND", []string{"rcloud_privilege_command"}, DefaultPrivilegeCommand),
		NATSURL:          r.str("RCLOUD_NATS_URL", []string{"rcloud_nats_url"}, ""),
	}

	if cfg.TraceStdout, err = r.boolean("RCLOUD_TRACE_STDOUT", "rcloud_trace_stdout"); err != nil {
		return nil, err
	}
	if cfg.LogDevelopment, err = r.boolean("RCLOUD_LOG_DEVELOPMENT", ""); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readExtraVars(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	vars := map[string]any{}
	if err := yaml.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return vars, nil
}

// resolver applies env-over-file precedence.
type resolver struct {
	vars map[string]any
	env  LookupEnvFunc
}

// str returns the first non-empty value of envKey, then each yaml key in
// order, then def.
func (r resolver) str(envKey string, yamlKeys []string, def string) string {
	if v, ok := r.env(envKey); ok && v != "" {
		return v
	}
	for _, k := range yamlKeys {
		if v, ok := r.vars[k]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return def
}

func (r resolver) boolean(envKey, yamlKey string) (bool, error) {
	if v, ok := r.env(envKey); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("invalid %s=%q: %w", envKey, v, err)
		}
		return b, nil
	}
	if yamlKey == "" {
		return false, nil
	}
	switch v := r.vars[yamlKey].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("invalid %s %q: %w", yamlKey, v, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("invalid %s: expected a boolean, got %T", yamlKey, v)
	}
}
