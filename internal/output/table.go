package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	v1 "github.com/jbweber/rcloud/api/v1"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatVM formats a single VM as a table row.
func (f *TableFormatter) FormatVM(vm *v1.VM) (string, error) {
	return f.FormatVMList([]v1.VM{*vm})
}

// FormatVMList formats a list of VMs as a table.
func (f *TableFormatter) FormatVMList(vms []v1.VM) (string, error) {
	if len(vms) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tID\tSTATE\tIP\tVCPUS\tMEMORY")
	}

	for _, vm := range vms {
		state := vm.State
		if state == "" {
			state = "-"
		}
		ip := vm.IPAddress
		if ip == "" {
			ip = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			vm.Name, vm.ID, state, ip, vm.VCPUs, formatMemory(vm.MemoryMB))
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatImages formats base images as a single-column table.
func (f *TableFormatter) FormatImages(images []v1.Image) (string, error) {
	if len(images) == 0 {
		return "No images found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME")
	}
	for _, img := range images {
		_, _ = fmt.Fprintln(w, img.Name)
	}
	_ = w.Flush()
	return buf.String(), nil
}

// formatMemory renders whole gibibytes as GiB and anything else as MiB.
// Examples: "2 GiB", "512 MiB", "1536 MiB"
func formatMemory(mb uint64) string {
	if mb >= 1024 && mb%1024 == 0 {
		return fmt.Sprintf("%d GiB", mb/1024)
	}
	return fmt.Sprintf("%d MiB", mb)
}
