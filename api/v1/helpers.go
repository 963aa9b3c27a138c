package v1

import (
	"fmt"
	"os"
	"strings"
)

// IsRunning reports whether the VM was running when it was read.
func (vm *VM) IsRunning() bool {
	return vm.State == StateRunning
}

// HasAddress reports whether an IPv4 address was discovered for the VM.
func (vm *VM) HasAddress() bool {
	return vm.IPAddress != ""
}

// ImageNames returns the image names in order.
func (r *ListImagesResponse) ImageNames() []string {
	names := make([]string, 0, len(r.Images))
	for _, img := range r.Images {
		names = append(names, img.Name)
	}
	return names
}

// NewListImagesResponse wraps names as a ListImagesResponse.
func NewListImagesResponse(names []string) ListImagesResponse {
	images := make([]Image, 0, len(names))
	for _, name := range names {
		images = append(images, Image{Name: name})
	}
	return ListImagesResponse{Images: images}
}

// SetPublicKeyFromFile loads SSH public key content from path into the
// request. Surrounding whitespace is trimmed.
func (r *CreateVMRequest) SetPublicKeyFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read SSH public key: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return fmt.Errorf("SSH public key file %s is empty", path)
	}
	r.SSHPublicKey = key
	return nil
}
