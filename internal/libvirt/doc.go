// Package libvirt wraps github.com/digitalocean/go-libvirt for rcloud.
//
// It provides:
//   - Connection management (connect by URI, disconnect, ping)
//   - Domain lookup by UUID with a fallback to name
//   - Domain XML generation for rcloud VMs
//
// Connections are opened per operation and closed when the operation ends:
//
//	client, err := libvirt.ConnectWithContext(ctx, "qemu:///system")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	dom, err := libvirt.LookupDomain(client.Libvirt(), idOrName)
//
// Domain XML is rendered from DomainParams:
//
//	xml, err := libvirt.BuildDomainXML(libvirt.DomainParams{
//	    Name:         "test1",
//	    VCPUs:        2,
//	    MemoryMiB:    2048,
//	    DiskPath:     "/var/lib/rcloud/test1/root.qcow2",
//	    Network:      "virbr0",
//	    RequiresUEFI: true,
//	})
//
// Errors:
//
// Connection failures wrap ErrConnection. Lookups that match neither a UUID
// nor a name wrap ErrNotFound; any other libvirt error is returned wrapped
// as-is.
package libvirt
