package vm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/digitalocean/go-libvirt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jbweber/rcloud/internal/customize"
	"github.com/jbweber/rcloud/internal/events"
	rlibvirt "github.com/jbweber/rcloud/internal/libvirt"
	"github.com/jbweber/rcloud/internal/naming"
)

const gib = 1 << 30

// Create builds and starts a VM from spec and returns its libvirt UUID.
//
// This orchestrates the creation process:
//  1. Validate the spec
//  2. Check the base image exists
//  3. Check it fits in the requested disk
//  4. Create the COW root disk
//  5. Customize the disk with the login user and SSH key
//  6. Connect, render the domain XML and define it
//  7. Start the domain
//
// If any step fails, everything created by earlier steps is removed in
// reverse order and the error is returned wrapped in the stage sentinel.
func (m *Manager) Create(ctx context.Context, spec Spec) (string, error) {
	ctx, span := m.tracer.Start(ctx, "vm.create", trace.WithAttributes(
		attribute.String("vm.name", spec.Name),
		attribute.String("vm.base_image", spec.BaseImage),
	))
	defer span.End()

	log := m.log.WithValues("vm", spec.Name)
	log.Info("creating VM", "baseImage", spec.BaseImage, "vcpus", spec.VCPUs, "memoryMB", spec.MemoryMB, "rootDiskGB", spec.RootDiskGB)

	basePath := filepath.Join(m.cfg.BaseImagesDir, spec.BaseImage)
	diskPath := m.disks.RootDiskPath(spec.Name)

	var (
		imageSize int64
		conn      connection
		domain    libvirt.Domain
	)
	defer func() {
		if conn != nil {
			m.closeConn(conn)
		}
	}()

	s := &saga{
		name:    "vm.create",
		log:     log,
		tracer:  m.tracer,
		metrics: m.metrics,
		onRollbackFailure: func(ctx context.Context, action string, err error) {
			m.emit(ctx, events.Event{Type: events.TypeRollbackFailed, Name: spec.Name, Error: action + ": " + err.Error()})
		},
	}

	steps := []step{
		{
			name:     "validate",
			stageErr: ErrInvalidSpec,
			forward: func(context.Context) error {
				return spec.Validate()
			},
		},
		{
			name:     "check_image",
			stageErr: ErrImageNotFound,
			forward: func(context.Context) error {
				size, err := statBaseImage(basePath)
				imageSize = size
				return err
			},
		},
		{
			name:     "check_image_size",
			stageErr: ErrImageTooLarge,
			forward: func(context.Context) error {
				if !fitsRootDisk(imageSize, spec.RootDiskGB) {
					return fmt.Errorf("base image %s is %d bytes, larger than the requested %dG root disk", basePath, imageSize, spec.RootDiskGB)
				}
				return nil
			},
		},
		{
			name:     "create_disk",
			stageErr: ErrDiskCreation,
			forward: func(ctx context.Context) error {
				exists, err := m.disks.VMDirExists(spec.Name)
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("VM directory for %q already exists", spec.Name)
				}
				return m.disks.CreateCOWDisk(ctx, basePath, diskPath, spec.RootDiskGB)
			},
			compensate: []action{
				{name: "delete_disk", run: func(context.Context) error { return m.disks.DeleteDisk(diskPath) }},
				{name: "remove_dir", run: func(context.Context) error { return m.disks.RemoveVMDir(spec.Name) }},
			},
		},
		{
			name:     "customize",
			stageErr: ErrCustomization,
			forward: func(ctx context.Context) error {
				return m.customizer.Customize(ctx, diskPath, customize.Request{
					User:      spec.SSHUser,
					PublicKey: spec.SSHPublicKey,
				})
			},
		},
		{
			name:     "define",
			stageErr: ErrDomainDefinition,
			forward: func(ctx context.Context) error {
				var err error
				conn, err = m.connect(ctx)
				if err != nil {
					return err
				}

				xml, err := rlibvirt.BuildDomainXML(rlibvirt.DomainParams{
					Name:         spec.Name,
					VCPUs:        spec.VCPUs,
					MemoryMiB:    spec.MemoryMB,
					DiskPath:     diskPath,
					Network:      m.cfg.NetworkBridge,
					RequiresUEFI: naming.RequiresUEFI(spec.BaseImage),
				})
				if err != nil {
					return err
				}
				log.V(1).Info("generated domain XML", "xml", xml)

				domain, err = conn.DomainDefineXML(xml)
				if err != nil {
					return fmt.Errorf("failed to define domain: %w", err)
				}
				return nil
			},
			compensate: []action{
				{name: "undefine", run: func(context.Context) error {
					return conn.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram)
				}},
			},
		},
		{
			name:     "start",
			stageErr: ErrDomainStart,
			forward: func(context.Context) error {
				if err := conn.DomainCreate(domain); err != nil {
					return fmt.Errorf("failed to start domain: %w", err)
				}
				return nil
			},
		},
	}

	if err := s.run(ctx, steps); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.metrics.ObserveOperation("create", err)
		m.emit(ctx, events.Event{Type: events.TypeCreateFailed, Name: spec.Name, Error: err.Error()})
		log.Error(err, "VM creation failed")
		return "", err
	}

	id := rlibvirt.DomainID(domain)
	span.SetAttributes(attribute.String("vm.id", id))
	m.metrics.ObserveOperation("create", nil)
	m.emit(ctx, events.Event{Type: events.TypeCreated, ID: id, Name: spec.Name})
	log.Info("VM created and started", "id", id)
	return id, nil
}

// statBaseImage returns the size of the raw image at path, which is also its
// logical size.
func statBaseImage(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%s does not exist", path)
		}
		return 0, fmt.Errorf("failed to stat base image: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}

// fitsRootDisk reports whether an image of size bytes fits in a root disk of
// sizeGB GiB. Rounding the image up to whole GiB avoids overflowing
// sizeGB*gib for very large disks.
func fitsRootDisk(size int64, sizeGB uint64) bool {
	if size <= 0 {
		return true
	}
	return (uint64(size)+gib-1)/gib <= sizeGB
}
