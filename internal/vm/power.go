package vm

import (
	"context"
	"fmt"

	"github.com/jbweber/rcloud/internal/events"
	rlibvirt "github.com/jbweber/rcloud/internal/libvirt"
)

// Start powers on the VM whose UUID or name is idOrName.
func (m *Manager) Start(ctx context.Context, idOrName string) error {
	ctx, span := m.tracer.Start(ctx, "vm.start")
	defer span.End()

	m.log.Info("starting VM", "vm", idOrName)
	err := m.withDomain(ctx, idOrName, events.TypeStarted, func(conn connection, dom domainRef) error {
		if err := conn.DomainCreate(dom.Domain); err != nil {
			return fmt.Errorf("failed to start VM: %w", err)
		}
		return nil
	})
	m.metrics.ObserveOperation("start", err)
	if err != nil {
		return err
	}
	m.log.Info("VM started", "vm", idOrName)
	return nil
}

// Stop asks the guest to shut down. It returns once the request is accepted,
// not when the guest has powered off.
func (m *Manager) Stop(ctx context.Context, idOrName string) error {
	ctx, span := m.tracer.Start(ctx, "vm.stop")
	defer span.End()

	m.log.Info("stopping VM", "vm", idOrName)
	err := m.withDomain(ctx, idOrName, events.TypeStopped, func(conn connection, dom domainRef) error {
		if err := conn.DomainShutdown(dom.Domain); err != nil {
			return fmt.Errorf("failed to stop VM: %w", err)
		}
		return nil
	})
	m.metrics.ObserveOperation("stop", err)
	if err != nil {
		return err
	}
	m.log.Info("VM stop requested", "vm", idOrName)
	return nil
}

// withDomain connects, resolves idOrName and runs fn. On success an event of
// eventType is published.
func (m *Manager) withDomain(ctx context.Context, idOrName, eventType string, fn func(connection, domainRef) error) error {
	conn, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.closeConn(conn)

	dom, err := m.lookup(conn, idOrName)
	if err != nil {
		return err
	}
	ref := domainRef{Domain: dom, ID: rlibvirt.DomainID(dom)}
	if err := fn(conn, ref); err != nil {
		return err
	}
	m.emit(ctx, events.Event{Type: eventType, ID: ref.ID, Name: dom.Name})
	return nil
}
