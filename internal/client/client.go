// Package client is a Go client for the rcloud HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "github.com/jbweber/rcloud/api/v1"
)

const (
	// DefaultEndpoint is the address rcloud listens on by default.
	DefaultEndpoint = "http://127.0.0.1:8765"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second
)

// ErrNotFound matches an APIError carrying a 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to one rcloud server.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a Bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout replaces the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for endpoint, e.g. "http://host:8765".
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}

	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the server base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// CreateVM creates a VM. It returns once the server has finished
// provisioning, so callers should allow for a long request.
func (c *Client) CreateVM(ctx context.Context, req *v1.CreateVMRequest) (*v1.CreateVMResponse, error) {
	var resp v1.CreateVMResponse
	if err := c.do(ctx, http.MethodPost, "/vms", req, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListVMs returns every VM the server knows about.
func (c *Client) ListVMs(ctx context.Context) ([]v1.VM, error) {
	var resp v1.ListVMsResponse
	if err := c.do(ctx, http.MethodGet, "/vms", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.VMs, nil
}

// GetVM returns one VM by id or name. An unknown VM matches ErrNotFound.
func (c *Client) GetVM(ctx context.Context, idOrName string) (*v1.VM, error) {
	var vm v1.VM
	if err := c.do(ctx, http.MethodGet, "/vms/"+url.PathEscape(idOrName), nil, http.StatusOK, &vm); err != nil {
		return nil, err
	}
	return &vm, nil
}

// StartVM boots a stopped VM.
func (c *Client) StartVM(ctx context.Context, idOrName string) error {
	return c.do(ctx, http.MethodPost, "/vms/"+url.PathEscape(idOrName)+"/start", nil, http.StatusOK, nil)
}

// StopVM asks the guest to shut down.
func (c *Client) StopVM(ctx context.Context, idOrName string) error {
	return c.do(ctx, http.MethodPost, "/vms/"+url.PathEscape(idOrName)+"/stop", nil, http.StatusOK, nil)
}

// DestroyVM removes a VM and its disk.
func (c *Client) DestroyVM(ctx context.Context, idOrName string) error {
	return c.do(ctx, http.MethodDelete, "/vms/"+url.PathEscape(idOrName), nil, http.StatusOK, nil)
}

// ListImages returns the base images available for new VMs.
func (c *Client) ListImages(ctx context.Context) ([]v1.Image, error) {
	var resp v1.ListImagesResponse
	if err := c.do(ctx, http.MethodGet, "/images", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

// Health calls the liveness endpoint.
func (c *Client) Health(ctx context.Context) (*v1.HealthResponse, error) {
	var resp v1.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the server's effective configuration.
func (c *Client) Status(ctx context.Context) (*v1.StatusResponse, error) {
	var resp v1.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+v1.BasePath+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}

	var body v1.ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}
