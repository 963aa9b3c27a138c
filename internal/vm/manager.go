package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jbweber/rcloud/internal/command"
	"github.com/jbweber/rcloud/internal/config"
	"github.com/jbweber/rcloud/internal/customize"
	"github.com/jbweber/rcloud/internal/disk"
	"github.com/jbweber/rcloud/internal/events"
	rlibvirt "github.com/jbweber/rcloud/internal/libvirt"
	"github.com/jbweber/rcloud/internal/metrics"
)

// TracerName is the instrumentation name used for VM spans.
const TracerName = "github.com/jbweber/rcloud/internal/vm"

// defaultListConcurrency bounds the number of domains introspected at once.
const defaultListConcurrency = 8

// Manager performs VM lifecycle operations. It holds no VM state; libvirt
// and the storage pool are the only sources of truth.
type Manager struct {
	cfg *config.Config

	dial       func(ctx context.Context) (connection, error)
	disks      diskProvisioner
	customizer guestCustomizer
	addresses  addressResolver

	events  events.Publisher
	metrics *metrics.Metrics
	log     logr.Logger
	tracer  trace.Tracer

	listConcurrency int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards.
func WithLogger(log logr.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithPublisher sets the lifecycle event publisher. The default drops events.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.events = p }
}

// WithMetrics records operation outcomes on met.
func WithMetrics(met *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// WithTracerProvider sets where spans go. The default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tp.Tracer(TracerName) }
}

// WithListConcurrency bounds concurrent domain introspection in List.
func WithListConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.listConcurrency = n
		}
	}
}

// NewManager creates a Manager that runs qemu-img, virt-customize and virsh
// through runner and connects to cfg.LibvirtURI for every operation.
func NewManager(cfg *config.Config, runner command.Runner, opts ...Option) *Manager {
	m := &Manager{
		cfg:             cfg,
		events:          events.Nop{},
		log:             logr.Discard(),
		tracer:          otel.Tracer(TracerName),
		listConcurrency: defaultListConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.dial = func(ctx context.Context) (connection, error) {
		client, err := rlibvirt.ConnectWithContext(ctx, cfg.LibvirtURI)
		if err != nil {
			return nil, err
		}
		return &session{Libvirt: client.Libvirt(), client: client}, nil
	}
	m.disks = disk.NewProvisioner(cfg.StoragePoolPath, runner, m.log)
	m.customizer = customize.New(runner, cfg.SSHUser, cfg.SSHPublicKeyFile, m.log)
	m.addresses = NewAddressResolver(runner, cfg.PrivilegePrefix(), m.log)

	return m
}

// session adapts a connected *rlibvirt.Client to the connection interface.
type session struct {
	*libvirt.Libvirt
	client *rlibvirt.Client
}

func (s *session) Close() error {
	return s.client.Close()
}

// connect opens a libvirt connection for one operation.
func (m *Manager) connect(ctx context.Context) (connection, error) {
	m.log.V(1).Info("connecting to libvirt", "uri", m.cfg.LibvirtURI)
	return m.dial(ctx)
}

func (m *Manager) closeConn(conn connection) {
	if err := conn.Close(); err != nil {
		m.log.Info("warning: failed to close libvirt connection", "error", err.Error())
	}
}

// lookup resolves idOrName on conn.
func (m *Manager) lookup(conn connection, idOrName string) (libvirt.Domain, error) {
	return rlibvirt.LookupDomain(conn, idOrName)
}

func (m *Manager) emit(ctx context.Context, e events.Event) {
	if err := events.Emit(ctx, m.events, e); err != nil {
		m.log.Info("warning: failed to publish event", "type", e.Type, "error", err.Error())
	}
}
