package vm

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/rcloud/internal/events"
)

// domainRef is a resolved domain with its UUID string.
type domainRef struct {
	libvirt.Domain
	ID string
}

// Destroy removes the VM whose UUID or name is idOrName.
//
// This orchestrates the destruction process:
//  1. Look up the domain
//  2. Force it off if it is running
//  3. Undefine it (with NVRAM cleanup for UEFI VMs)
//  4. Delete the root disk and the VM directory
//
// Steps 2 and 3 are fatal. Disk cleanup is best-effort: failures are logged
// and the VM is still reported destroyed.
func (m *Manager) Destroy(ctx context.Context, idOrName string) error {
	ctx, span := m.tracer.Start(ctx, "vm.destroy")
	defer span.End()

	m.log.Info("destroying VM", "vm", idOrName)
	err := m.withDomain(ctx, idOrName, events.TypeDestroyed, func(conn connection, dom domainRef) error {
		return m.destroyDomain(conn, dom.Domain)
	})
	m.metrics.ObserveOperation("destroy", err)
	if err != nil {
		return err
	}
	m.log.Info("VM destroyed", "vm", idOrName)
	return nil
}

func (m *Manager) destroyDomain(lv libvirtClient, domain libvirt.Domain) error {
	log := m.log.WithValues("vm", domain.Name)

	active, err := lv.DomainIsActive(domain)
	if err != nil {
		log.V(1).Info("failed to get active state, assuming stopped", "error", err.Error())
		active = 0
	}
	if active != 0 {
		log.Info("force stopping VM")
		if err := lv.DomainDestroy(domain); err != nil {
			return fmt.Errorf("failed to forcefully stop VM: %w", err)
		}
	}

	log.Info("undefining domain")
	if err := lv.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
		return fmt.Errorf("failed to undefine VM: %w", err)
	}

	diskPath := m.disks.RootDiskPath(domain.Name)
	if err := m.disks.DeleteDisk(diskPath); err != nil {
		log.Info("warning: failed to delete disk", "path", diskPath, "error", err.Error())
	}
	if err := m.disks.RemoveVMDir(domain.Name); err != nil {
		log.Info("warning: failed to remove VM directory", "error", err.Error())
	}
	return nil
}
