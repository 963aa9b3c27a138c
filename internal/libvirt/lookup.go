package libvirt

import (
	"errors"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no domain matches an identifier or name.
var ErrNotFound = errors.New("domain not found")

// DomainLookup is the subset of *libvirt.Libvirt used to resolve domains.
type DomainLookup interface {
	DomainLookupByUUID(uuid libvirt.UUID) (libvirt.Domain, error)
	DomainLookupByName(name string) (libvirt.Domain, error)
}

// LookupDomain resolves idOrName to a domain. A value that parses as a UUID is
// tried against domain UUIDs first; anything that does not resolve that way
// is then tried as a domain name.
func LookupDomain(lv DomainLookup, idOrName string) (libvirt.Domain, error) {
	if id, err := uuid.Parse(idOrName); err == nil {
		dom, err := lv.DomainLookupByUUID(libvirt.UUID(id))
		if err == nil {
			return dom, nil
		}
		if !libvirt.IsNotFound(err) {
			return libvirt.Domain{}, fmt.Errorf("failed to look up domain %s: %w", idOrName, err)
		}
	}

	dom, err := lv.DomainLookupByName(idOrName)
	if err != nil {
		if libvirt.IsNotFound(err) {
			return libvirt.Domain{}, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
		}
		return libvirt.Domain{}, fmt.Errorf("failed to look up domain %s: %w", idOrName, err)
	}
	return dom, nil
}

// DomainID returns the canonical string form of a domain's UUID.
func DomainID(dom libvirt.Domain) string {
	return uuid.UUID(dom.UUID).String()
}
