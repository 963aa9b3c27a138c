// Package vm provides VM lifecycle management on a single libvirt host.
//
// The Manager ties together the disk provisioner (qemu-img), the guest
// customizer (virt-customize) and a libvirt connection opened per call.
//
// The main operations are:
//   - Create: build a COW disk, customize it, define and start the domain
//   - List, Get: report running/stopped state, vCPUs, memory and IPv4 address
//   - Start, Stop: power a domain on or ask it to shut down
//   - Destroy: force off, undefine (with NVRAM) and delete the disk
//   - ListBaseImages: the files available to create from
//
// Error Handling:
//
// Create runs as a saga. When a step fails, everything the earlier steps
// produced is removed again in reverse order and the step's error is
// returned, wrapped in one of the stage sentinels (ErrDiskCreation,
// ErrCustomization, ...). Cleanup failures are logged but never replace
// that error.
//
// Context Support:
//
// External tools run under the caller's context. HTTP handlers pass a
// context that is never cancelled for mutating calls, so a client
// disconnect does not abandon a half-built VM.
//
// Nothing serializes operations by VM name; two concurrent creates of the
// same name race on the filesystem and in libvirt.
package vm
