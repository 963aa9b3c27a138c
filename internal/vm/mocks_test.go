package vm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/digitalocean/go-libvirt"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jbweber/rcloud/internal/command"
	"github.com/jbweber/rcloud/internal/config"
	"github.com/jbweber/rcloud/internal/customize"
	"github.com/jbweber/rcloud/internal/disk"
	"github.com/jbweber/rcloud/internal/events"
)

// errNoDomain is what libvirt returns for an unknown domain.
var errNoDomain = libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "Domain not found"}

// journal records side effects from several mocks in one ordered list.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// mockLibvirtClient is a mock implementation of the connection interface for testing.
type mockLibvirtClient struct {
	mu      sync.Mutex
	journal *journal

	// Configurable behavior
	domainLookupByNameFunc    func(name string) (libvirt.Domain, error)
	domainLookupByUUIDFunc    func(uuid libvirt.UUID) (libvirt.Domain, error)
	domainDefineXMLFunc       func(xml string) (libvirt.Domain, error)
	domainCreateFunc          func(dom libvirt.Domain) error
	domainShutdownFunc        func(dom libvirt.Domain) error
	domainDestroyFunc         func(dom libvirt.Domain) error
	domainUndefineFlagsFunc   func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error
	domainIsActiveFunc        func(dom libvirt.Domain) (int32, error)
	domainGetInfoFunc         func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	connectListAllDomainsFunc func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	closeFunc                 func() error

	// Call tracking
	domainLookupByNameCalls  []string
	domainLookupByUUIDCalls  []libvirt.UUID
	domainDefineXMLCalls     []string
	domainCreateCalls        []libvirt.Domain
	domainShutdownCalls      []libvirt.Domain
	domainDestroyCalls       []libvirt.Domain
	domainUndefineFlagsCalls []libvirt.DomainUndefineFlagsValues
	domainIsActiveCalls      []libvirt.Domain
	domainGetInfoCalls       []libvirt.Domain
	closeCalls               int
}

// testDomain is the domain returned by the default define behavior.
var testDomain = libvirt.Domain{
	Name: "test-vm",
	UUID: libvirt.UUID{0x8f, 0x3b, 0x1a, 0x2c, 0x4d, 0x5e, 0x4f, 0x60, 0x81, 0x92, 0xa3, 0xb4, 0xc5, 0xd6, 0xe7, 0xf8},
	ID:   1,
}

const testDomainID = "8f3b1a2c-4d5e-4f60-8192-a3b4c5d6e7f8"

// newMockLibvirtClient creates a new mock libvirt client with default behavior:
// testDomain exists, is running and every call succeeds.
func newMockLibvirtClient() *mockLibvirtClient {
	m := &mockLibvirtClient{}

	m.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		if name == testDomain.Name {
			return testDomain, nil
		}
		return libvirt.Domain{}, errNoDomain
	}
	m.domainLookupByUUIDFunc = func(uuid libvirt.UUID) (libvirt.Domain, error) {
		if uuid == testDomain.UUID {
			return testDomain, nil
		}
		return libvirt.Domain{}, errNoDomain
	}
	m.domainDefineXMLFunc = func(xml string) (libvirt.Domain, error) {
		return testDomain, nil
	}
	m.domainCreateFunc = func(dom libvirt.Domain) error { return nil }
	m.domainShutdownFunc = func(dom libvirt.Domain) error { return nil }
	m.domainDestroyFunc = func(dom libvirt.Domain) error { return nil }
	m.domainUndefineFlagsFunc = func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error { return nil }
	m.domainIsActiveFunc = func(dom libvirt.Domain) (int32, error) { return 1, nil }
	m.domainGetInfoFunc = func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
		// running, 2 GiB max, 2 GiB current, 2 vCPUs
		return 1, 2097152, 2097152, 2, 0, nil
	}
	m.connectListAllDomainsFunc = func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
		return []libvirt.Domain{testDomain}, 1, nil
	}
	m.closeFunc = func() error { return nil }

	return m
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainLookupByNameCalls = append(m.domainLookupByNameCalls, name)
	return m.domainLookupByNameFunc(name)
}

func (m *mockLibvirtClient) DomainLookupByUUID(uuid libvirt.UUID) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainLookupByUUIDCalls = append(m.domainLookupByUUIDCalls, uuid)
	return m.domainLookupByUUIDFunc(uuid)
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDefineXMLCalls = append(m.domainDefineXMLCalls, xml)
	m.journal.add("define")
	return m.domainDefineXMLFunc(xml)
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainCreateCalls = append(m.domainCreateCalls, dom)
	m.journal.add("start")
	return m.domainCreateFunc(dom)
}

func (m *mockLibvirtClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainShutdownCalls = append(m.domainShutdownCalls, dom)
	return m.domainShutdownFunc(dom)
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDestroyCalls = append(m.domainDestroyCalls, dom)
	m.journal.add("destroy")
	return m.domainDestroyFunc(dom)
}

func (m *mockLibvirtClient) DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainUndefineFlagsCalls = append(m.domainUndefineFlagsCalls, flags)
	m.journal.add("undefine")
	return m.domainUndefineFlagsFunc(dom, flags)
}

func (m *mockLibvirtClient) DomainIsActive(dom libvirt.Domain) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainIsActiveCalls = append(m.domainIsActiveCalls, dom)
	return m.domainIsActiveFunc(dom)
}

func (m *mockLibvirtClient) DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainGetInfoCalls = append(m.domainGetInfoCalls, dom)
	return m.domainGetInfoFunc(dom)
}

func (m *mockLibvirtClient) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectListAllDomainsFunc(needResults, flags)
}

func (m *mockLibvirtClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return m.closeFunc()
}

// fakeRunner is a command.Runner that records invocations and delegates to
// runFunc. With no runFunc every command succeeds with empty output.
type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	runFunc func(name string, args ...string) (command.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (command.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.runFunc == nil {
		return command.Result{}, nil
	}
	return f.runFunc(name, args...)
}

// fakeQemuImg simulates qemu-img create by writing the target file.
func fakeQemuImg(name string, args ...string) (command.Result, error) {
	if name != "qemu-img" {
		return command.Result{}, nil
	}
	target := args[len(args)-2]
	return command.Result{}, os.WriteFile(target, []byte("qcow2"), 0644)
}

// recordingDisks wraps a real disk.Provisioner and journals cleanup calls.
type recordingDisks struct {
	*disk.Provisioner
	journal *journal

	deleteDiskErr error
	removeDirErr  error
}

func (r *recordingDisks) DeleteDisk(path string) error {
	r.journal.add("delete_disk")
	if r.deleteDiskErr != nil {
		return r.deleteDiskErr
	}
	return r.Provisioner.DeleteDisk(path)
}

func (r *recordingDisks) RemoveVMDir(vmName string) error {
	r.journal.add("remove_dir")
	if r.removeDirErr != nil {
		return r.removeDirErr
	}
	return r.Provisioner.RemoveVMDir(vmName)
}

// mockCustomizer is a mock implementation of guestCustomizer.
type mockCustomizer struct {
	customizeFunc  func(ctx context.Context, diskPath string, req customize.Request) error
	customizeCalls []customize.Request
}

func (m *mockCustomizer) Customize(ctx context.Context, diskPath string, req customize.Request) error {
	m.customizeCalls = append(m.customizeCalls, req)
	if m.customizeFunc == nil {
		return nil
	}
	return m.customizeFunc(ctx, diskPath, req)
}

// mockResolver is a mock implementation of addressResolver.
type mockResolver struct {
	mu          sync.Mutex
	resolveFunc func(ctx context.Context, domainName string) (string, error)
	calls       []string
}

func (m *mockResolver) Resolve(ctx context.Context, domainName string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, domainName)
	m.mu.Unlock()
	if m.resolveFunc == nil {
		return "", ErrNoAddressFound
	}
	return m.resolveFunc(ctx, domainName)
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingPublisher) Publish(_ context.Context, subject string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

var _ events.Publisher = (*recordingPublisher)(nil)

// testEnv is a Manager wired to mocks over a real temporary storage pool.
type testEnv struct {
	mgr        *Manager
	lv         *mockLibvirtClient
	runner     *fakeRunner
	disks      *recordingDisks
	customizer *mockCustomizer
	resolver   *mockResolver
	publisher  *recordingPublisher
	journal    *journal
	cfg        *config.Config
	dialErr    error
}

// newTestEnv creates a test environment with a base image "debian-13.raw" of
// 1 KiB in a temporary base image directory.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		LibvirtURI:      config.DefaultLibvirtURI,
		StoragePoolPath: filepath.Join(root, "pool"),
		BaseImagesDir:   filepath.Join(root, "images"),
		NetworkBridge:   config.DefaultNetworkBridge,
		BindAddress:     config.DefaultBindAddress,
	}
	if err := os.MkdirAll(cfg.StoragePoolPath, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.BaseImagesDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.BaseImagesDir, "debian-13.raw"), make([]byte, 1024), 0644); err != nil {
		t.Fatal(err)
	}

	j := &journal{}
	env := &testEnv{
		lv:         newMockLibvirtClient(),
		runner:     &fakeRunner{runFunc: fakeQemuImg},
		customizer: &mockCustomizer{},
		resolver:   &mockResolver{},
		publisher:  &recordingPublisher{},
		journal:    j,
		cfg:        cfg,
	}
	env.lv.journal = j

	log := testr.New(t)
	env.disks = &recordingDisks{
		Provisioner: disk.NewProvisioner(cfg.StoragePoolPath, env.runner, logr.Discard()),
		journal:     j,
	}

	env.mgr = NewManager(cfg, env.runner,
		WithLogger(log),
		WithPublisher(env.publisher),
		WithTracerProvider(noop.NewTracerProvider()),
	)
	env.mgr.disks = env.disks
	env.mgr.customizer = env.customizer
	env.mgr.addresses = env.resolver
	env.mgr.dial = func(context.Context) (connection, error) {
		if env.dialErr != nil {
			return nil, env.dialErr
		}
		return env.lv, nil
	}
	return env
}

// vmDirExists reports whether the pool holds a directory for name.
func (e *testEnv) vmDirExists(t *testing.T, name string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(e.cfg.StoragePoolPath, name))
	if err == nil {
		return true
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stat VM dir: %v", err)
	}
	return false
}
