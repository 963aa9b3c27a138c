package libvirt

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/digitalocean/go-libvirt"
)

// DefaultURI is used when no connection URI is configured.
const DefaultURI = string(libvirt.QEMUSystem)

// ErrConnection is returned when a libvirt connection cannot be opened.
var ErrConnection = errors.New("libvirt connection failed")

// Client wraps a single go-libvirt connection. Each rcloud operation opens its
// own Client and closes it when done; Clients are never shared.
type Client struct {
	libvirt *libvirt.Libvirt
	uri     string
}

// Connect opens a connection to the libvirt daemon at uri. An empty uri means
// qemu:///system. The returned Client must be closed via Close().
func Connect(uri string) (*Client, error) {
	if uri == "" {
		uri = DefaultURI
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URI %q: %w", ErrConnection, uri, err)
	}

	l, err := libvirt.ConnectToURI(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", ErrConnection, uri, err)
	}

	return &Client{libvirt: l, uri: uri}, nil
}

// ConnectWithContext establishes a connection with context support for cancellation.
func ConnectWithContext(ctx context.Context, uri string) (*Client, error) {
	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Connect(uri)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		// Don't leak a connection that completes after we gave up on it.
		go func() {
			if res := <-resultCh; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, fmt.Errorf("%w: connection cancelled: %w", ErrConnection, ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// URI returns the URI this client is connected to.
func (c *Client) URI() string {
	return c.uri
}

// Close closes the libvirt connection and releases resources.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	l := c.libvirt
	c.libvirt = nil
	if err := l.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Libvirt returns the underlying go-libvirt client for direct API access.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Ping verifies the connection is still alive and returns the daemon's
// library version.
func (c *Client) Ping() (uint64, error) {
	if c.libvirt == nil {
		return 0, fmt.Errorf("client not connected")
	}

	version, err := c.libvirt.ConnectGetLibVersion()
	if err != nil {
		return 0, fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return version, nil
}

// FormatVersion renders a libvirt version number (major*1e6 + minor*1e3 +
// release) as a dotted string.
func FormatVersion(v uint64) string {
	return fmt.Sprintf("%d.%d.%d", v/1000000, (v/1000)%1000, v%1000)
}
