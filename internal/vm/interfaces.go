package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/rcloud/internal/customize"
)

// libvirtClient defines the libvirt operations needed for VM management.
// This wraps operations from *libvirt.Libvirt to allow for testing.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	// DomainLookupByName looks up a domain by name
	DomainLookupByName(name string) (libvirt.Domain, error)

	// DomainLookupByUUID looks up a domain by UUID
	DomainLookupByUUID(uuid libvirt.UUID) (libvirt.Domain, error)

	// DomainDefineXML defines a domain from XML
	DomainDefineXML(xml string) (libvirt.Domain, error)

	// DomainCreate starts a domain
	DomainCreate(dom libvirt.Domain) error

	// DomainShutdown asks the guest to shut down
	DomainShutdown(dom libvirt.Domain) error

	// DomainDestroy force-stops a domain
	DomainDestroy(dom libvirt.Domain) error

	// DomainUndefineFlags undefines a domain with flags (e.g., NVRAM cleanup)
	DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error

	// DomainIsActive reports whether the domain is running
	DomainIsActive(dom libvirt.Domain) (int32, error)

	// DomainGetInfo returns state, max memory, memory (KiB), vcpus and cpu time
	DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)

	// ConnectListAllDomains lists active and inactive domains
	ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
}

// connection is a libvirt session opened for a single operation.
type connection interface {
	libvirtClient
	Close() error
}

// diskProvisioner is satisfied by *disk.Provisioner.
type diskProvisioner interface {
	VMDirExists(vmName string) (bool, error)
	RootDiskPath(vmName string) string
	CreateCOWDisk(ctx context.Context, basePath, targetPath string, sizeGiB uint64) error
	DeleteDisk(path string) error
	RemoveVMDir(vmName string) error
}

// guestCustomizer is satisfied by *customize.Customizer.
type guestCustomizer interface {
	Customize(ctx context.Context, diskPath string, req customize.Request) error
}

// addressResolver is satisfied by *AddressResolver.
type addressResolver interface {
	Resolve(ctx context.Context, domainName string) (string, error)
}
