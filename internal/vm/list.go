package vm

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"golang.org/x/sync/errgroup"

	rlibvirt "github.com/jbweber/rcloud/internal/libvirt"
)

// List returns every VM defined on the host, running or not, in the order
// libvirt enumerates them. Domains that cannot be introspected are skipped.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	ctx, span := m.tracer.Start(ctx, "vm.list")
	defer span.End()

	conn, err := m.connect(ctx)
	if err != nil {
		m.metrics.ObserveOperation("list", err)
		return nil, err
	}
	defer m.closeConn(conn)

	vms, err := m.listWithConn(ctx, conn)
	m.metrics.ObserveOperation("list", err)
	if err != nil {
		return nil, err
	}
	m.metrics.SetVMCount(len(vms))
	return vms, nil
}

func (m *Manager) listWithConn(ctx context.Context, lv libvirtClient) ([]Info, error) {
	// NeedResults: 1 means populate the domains slice
	// Flags: 0 means all domains (active and inactive)
	domains, _, err := lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	if len(domains) == 0 {
		return []Info{}, nil
	}

	results := make([]*Info, len(domains))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.listConcurrency)
	for i, domain := range domains {
		g.Go(func() error {
			info, err := m.domainInfo(gctx, lv, domain)
			if err != nil {
				m.log.V(1).Info("skipping domain", "domain", domain.Name, "error", err.Error())
				return nil
			}
			results[i] = &info
			return nil
		})
	}
	_ = g.Wait()

	vms := make([]Info, 0, len(domains))
	for _, info := range results {
		if info != nil {
			vms = append(vms, *info)
		}
	}
	return vms, nil
}

// Get returns the VM whose UUID or name is idOrName.
func (m *Manager) Get(ctx context.Context, idOrName string) (Info, error) {
	ctx, span := m.tracer.Start(ctx, "vm.get")
	defer span.End()

	conn, err := m.connect(ctx)
	if err != nil {
		return Info{}, err
	}
	defer m.closeConn(conn)

	domain, err := m.lookup(conn, idOrName)
	if err != nil {
		return Info{}, err
	}
	return m.domainInfo(ctx, conn, domain)
}

// domainInfo builds Info for one domain. The IP address is only looked up
// for running domains, and a failed lookup leaves it empty.
func (m *Manager) domainInfo(ctx context.Context, lv libvirtClient, domain libvirt.Domain) (Info, error) {
	active, err := lv.DomainIsActive(domain)
	if err != nil {
		m.log.V(1).Info("failed to get active state, assuming stopped", "domain", domain.Name, "error", err.Error())
		active = 0
	}

	_, _, memory, nrVirtCPU, _, err := lv.DomainGetInfo(domain)
	if err != nil {
		return Info{}, fmt.Errorf("failed to get domain info: %w", err)
	}

	info := Info{
		ID:       rlibvirt.DomainID(domain),
		Name:     domain.Name,
		State:    StateStopped,
		VCPUs:    nrVirtCPU,
		MemoryMB: memory / 1024, // KiB to MiB
	}
	if active != 0 {
		info.State = StateRunning
		ip, err := m.addresses.Resolve(ctx, domain.Name)
		if err != nil {
			m.log.Info("warning: failed to get IP address", "domain", domain.Name, "error", err.Error())
		} else {
			info.IPAddress = ip
		}
	}
	return info, nil
}
