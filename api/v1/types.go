// Package v1 defines the JSON bodies of the rcloud HTTP API.
//
// The same types are encoded by the server and decoded by the Go client and
// rcloudctl, so the wire contract lives in one place.
package v1

const (
	// Version is the API version.
	Version = "v1"

	// BasePath is the prefix every API route is served under.
	BasePath = "/api/" + Version
)

// VM states as reported by the API. StateCreating is only ever returned by
// the create call; subsequent reads report running or stopped.
const (
	StateCreating = "creating"
	StateRunning  = "running"
	StateStopped  = "stopped"
)

// Action results returned by the start, stop and destroy calls.
const (
	ActionStarted   = "started"
	ActionStopped   = "stopped"
	ActionDestroyed = "destroyed"
)

// CreateVMRequest is the body of POST /vms.
type CreateVMRequest struct {
	Name       string `json:"name" yaml:"name"`
	VCPUs      uint   `json:"vcpus" yaml:"vcpus"`
	MemoryMB   uint   `json:"memory_mb" yaml:"memory_mb"`
	BaseImage  string `json:"base_image" yaml:"base_image"`
	RootDiskGB uint64 `json:"root_disk_gb" yaml:"root_disk_gb"`

	// SSHUser and SSHPublicKey override the server's configured defaults.
	// SSHPublicKey carries key content, not a path.
	// +optional
	SSHUser string `json:"ssh_user,omitempty" yaml:"ssh_user,omitempty"`
	// +optional
	SSHPublicKey string `json:"ssh_public_key,omitempty" yaml:"ssh_public_key,omitempty"`
}

// CreateVMResponse is returned with 201 Created.
type CreateVMResponse struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	State string `json:"state" yaml:"state"`
}

// VM is the observed state of one VM.
type VM struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	State    string `json:"state" yaml:"state"`
	VCPUs    uint32 `json:"vcpus" yaml:"vcpus"`
	MemoryMB uint64 `json:"memory_mb" yaml:"memory_mb"`

	// IPAddress is only set for running VMs with a discoverable IPv4 lease.
	// +optional
	IPAddress string `json:"ip_address,omitempty" yaml:"ip_address,omitempty"`
}

// ListVMsResponse is the body of GET /vms.
type ListVMsResponse struct {
	VMs []VM `json:"vms" yaml:"vms"`
}

// Image is a base image available to create from.
type Image struct {
	Name string `json:"name" yaml:"name"`
}

// ListImagesResponse is the body of GET /images.
type ListImagesResponse struct {
	Images []Image `json:"images" yaml:"images"`
}

// ActionResponse is the body returned by start, stop and destroy.
type ActionResponse struct {
	Status string `json:"status" yaml:"status"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status" yaml:"status"`
	Version string `json:"version" yaml:"version"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status          string `json:"status" yaml:"status"`
	Version         string `json:"version" yaml:"version"`
	KdevopsRoot     string `json:"kdevops_root" yaml:"kdevops_root"`
	LibvirtURI      string `json:"libvirt_uri" yaml:"libvirt_uri"`
	StoragePoolPath string `json:"storage_pool_path" yaml:"storage_pool_path"`
	BaseImagesDir   string `json:"base_images_dir" yaml:"base_images_dir"`
	NetworkBridge   string `json:"network_bridge" yaml:"network_bridge"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error" yaml:"error"`
}
