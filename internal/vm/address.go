package vm

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/jbweber/rcloud/internal/command"
)

// AddressResolver finds a running domain's IPv4 address with
// "virsh domifaddr". This works without a libvirt-managed DHCP network.
type AddressResolver struct {
	runner command.Runner
	prefix []string
	log    logr.Logger
}

// NewAddressResolver returns a resolver that runs virsh through runner,
// prefixed by prefix (for example "sudo") when it is non-empty.
func NewAddressResolver(runner command.Runner, prefix []string, log logr.Logger) *AddressResolver {
	return &AddressResolver{
		runner: runner,
		prefix: prefix,
		log:    log.WithName("address"),
	}
}

// Resolve returns the first IPv4 address reported for domainName. Any
// failure, including a failed virsh call, is reported as ErrNoAddressFound.
func (r *AddressResolver) Resolve(ctx context.Context, domainName string) (string, error) {
	name := "virsh"
	args := []string{"domifaddr", domainName}
	if len(r.prefix) > 0 {
		name = r.prefix[0]
		args = append(append(append([]string{}, r.prefix[1:]...), "virsh"), args...)
	}

	r.log.V(1).Info("querying domain interfaces", "cmd", command.Format(name, args...))
	res, err := r.runner.Run(ctx, name, args...)
	if err != nil {
		return "", fmt.Errorf("%w: failed to query interfaces of %s: %w", ErrNoAddressFound, domainName, err)
	}

	ip, ok := parseDomIfAddr(res.Stdout)
	if !ok {
		return "", fmt.Errorf("%w for domain %s", ErrNoAddressFound, domainName)
	}
	return ip, nil
}

// parseDomIfAddr extracts the first IPv4 address from virsh domifaddr output:
//
//	 Name       MAC address          Protocol     Address
//	-------------------------------------------------------------------------------
//	 vnet0      52:54:00:xx:xx:xx    ipv4         192.168.122.100/24
func parseDomIfAddr(output string) (string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for line := 0; scanner.Scan(); line++ {
		if line < 2 {
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 4 && fields[2] == "ipv4" {
			ip, _, _ := strings.Cut(fields[3], "/")
			return ip, true
		}
	}
	return "", false
}
