// Package naming holds the naming rules rcloud enforces on user-supplied
// identifiers and the image-name heuristics it relies on.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// MaxVMNameLength bounds VM names; libvirt itself allows more, but the
	// name is also a directory component under the storage pool.
	MaxVMNameLength = 64

	// MaxUserNameLength matches the useradd limit on most distributions.
	MaxUserNameLength = 32
)

var (
	vmNamePattern   = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9_.-]*[A-Za-z0-9])?$`)
	userNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)
)

// uefiMarkers are substrings of a base image name that mark it as needing
// UEFI firmware.
var uefiMarkers = []string{"nocloud", "uefi", "cloud"}

// ValidateVMName checks that name is usable both as a libvirt domain name and
// as a single path component.
func ValidateVMName(name string) error {
	if name == "" {
		return fmt.Errorf("VM name is required")
	}
	if len(name) > MaxVMNameLength {
		return fmt.Errorf("VM name %q is longer than %d characters", name, MaxVMNameLength)
	}
	if !vmNamePattern.MatchString(name) {
		return fmt.Errorf("VM name %q must start and end with a letter or digit and contain only letters, digits, '-', '_' or '.'", name)
	}
	return nil
}

// ValidateUserName checks that name is a safe POSIX login name. The name ends
// up inside shell commands run in the guest, so the allowed set is narrow.
func ValidateUserName(name string) error {
	if len(name) > MaxUserNameLength {
		return fmt.Errorf("user name %q is longer than %d characters", name, MaxUserNameLength)
	}
	if !userNamePattern.MatchString(name) {
		return fmt.Errorf("invalid user name %q", name)
	}
	return nil
}

// ValidateImageName checks that image refers to a file directly inside the
// base image directory.
func ValidateImageName(image string) error {
	if image == "" {
		return fmt.Errorf("base image is required")
	}
	if image == "." || image == ".." || filepath.Base(image) != image || strings.ContainsRune(image, '/') {
		return fmt.Errorf("base image %q must be a plain file name", image)
	}
	return nil
}

// RequiresUEFI reports whether a base image should boot with UEFI firmware.
// The decision is a case-sensitive substring match on the image name, so
// "cloudy.raw" also counts.
func RequiresUEFI(image string) bool {
	for _, marker := range uefiMarkers {
		if strings.Contains(image, marker) {
			return true
		}
	}
	return false
}
