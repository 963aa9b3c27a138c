package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"
)

const (
	// Emulator is the QEMU binary every domain runs under.
	Emulator = "/usr/bin/qemu-system-x86_64"

	// RootDiskTarget is the guest device name of the root disk.
	RootDiskTarget = "vda"
)

// DomainParams describes the domain to render.
type DomainParams struct {
	Name         string
	VCPUs        uint
	MemoryMiB    uint
	DiskPath     string
	Network      string
	RequiresUEFI bool
}

// BuildDomainXML renders the libvirt domain XML for p. It performs no I/O
// and returns identical output for identical input.
//
// Every domain is a KVM q35 guest with host-passthrough CPU, a single qcow2
// virtio root disk, one virtio NIC on the named libvirt network, a pty serial
// console, a virtio balloon and a virtio RNG. UEFI domains additionally get
// EFI firmware and SMM.
func BuildDomainXML(p DomainParams) (string, error) {
	if p.Name == "" {
		return "", fmt.Errorf("domain name is required")
	}
	if p.VCPUs == 0 || p.MemoryMiB == 0 {
		return "", fmt.Errorf("domain %s: vcpus and memory must be positive", p.Name)
	}

	port0 := func() *uint { v := uint(0); return &v }

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: p.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: p.MemoryMiB,
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     p.VCPUs,
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch:    "x86_64",
				Machine: "q35",
				Type:    "hvm",
			},
			BootDevices: []libvirtxml.DomainBootDevice{
				{Dev: "hd"},
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-passthrough",
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "localtime",
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "destroy",
		Devices: &libvirtxml.DomainDeviceList{
			Emulator: Emulator,
			Disks: []libvirtxml.DomainDisk{
				{
					Device: "disk",
					Driver: &libvirtxml.DomainDiskDriver{
						Name:  "qemu",
						Type:  "qcow2",
						Cache: "none",
						IO:    "native",
					},
					Source: &libvirtxml.DomainDiskSource{
						File: &libvirtxml.DomainDiskSourceFile{
							File: p.DiskPath,
						},
					},
					Target: &libvirtxml.DomainDiskTarget{
						Dev: RootDiskTarget,
						Bus: "virtio",
					},
				},
			},
			Interfaces: []libvirtxml.DomainInterface{
				{
					Source: &libvirtxml.DomainInterfaceSource{
						Network: &libvirtxml.DomainInterfaceSourceNetwork{
							Network: p.Network,
						},
					},
					Model: &libvirtxml.DomainInterfaceModel{
						Type: "virtio",
					},
				},
			},
			Serials: []libvirtxml.DomainSerial{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainSerialTarget{
						Type: "isa-serial",
						Port: port0(),
					},
				},
			},
			Consoles: []libvirtxml.DomainConsole{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainConsoleTarget{
						Type: "serial",
						Port: port0(),
					},
				},
			},
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
			RNGs: []libvirtxml.DomainRNG{
				{
					Model: "virtio",
					Backend: &libvirtxml.DomainRNGBackend{
						Random: &libvirtxml.DomainRNGBackendRandom{
							Device: "/dev/urandom",
						},
					},
				},
			},
		},
	}

	if p.RequiresUEFI {
		domain.OS.Firmware = "efi"
		domain.Features.SMM = &libvirtxml.DomainFeatureSMM{State: "on"}
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}
