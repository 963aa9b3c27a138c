package vm

import (
	"errors"

	rlibvirt "github.com/jbweber/rcloud/internal/libvirt"
)

// Errors returned by Manager operations. Create wraps the stage sentinel
// around the underlying cause, so both can be matched with errors.Is and
// errors.As:
//
//	if errors.Is(err, vm.ErrCustomization) {
//	    var toolErr *customize.ToolError
//	    errors.As(err, &toolErr)
//	}
var (
	// ErrNotFound is returned when an id or name matches no domain.
	ErrNotFound = rlibvirt.ErrNotFound

	// ErrConnection is returned when libvirt cannot be reached.
	ErrConnection = rlibvirt.ErrConnection

	ErrInvalidSpec      = errors.New("invalid VM spec")
	ErrImageNotFound    = errors.New("base image not found")
	ErrImageTooLarge    = errors.New("base image larger than root disk")
	ErrDiskCreation     = errors.New("disk creation failed")
	ErrCustomization    = errors.New("disk customization failed")
	ErrDomainDefinition = errors.New("domain definition failed")
	ErrDomainStart      = errors.New("domain start failed")

	// ErrNoAddressFound is returned by address discovery when the guest has
	// no IPv4 lease. Callers omit the address rather than failing.
	ErrNoAddressFound = errors.New("no IPv4 address found")
)
