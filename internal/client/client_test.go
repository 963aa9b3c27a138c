package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/jbweber/rcloud/api/v1"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
		wantErr  bool
	}{
		{name: "plain", endpoint: "http://host:8765", want: "http://host:8765"},
		{name: "trailing slash", endpoint: "https://host/", want: "https://host"},
		{name: "no scheme", endpoint: "host:8765", wantErr: true},
		{name: "bad scheme", endpoint: "ftp://host", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Endpoint())
			assert.Equal(t, DefaultTimeout, c.http.Timeout)
		})
	}
}

func TestCreateVM(t *testing.T) {
	var gotAuth, gotContentType string
	var gotReq v1.CreateVMRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/vms", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		writeJSON(w, http.StatusCreated, v1.CreateVMResponse{ID: "abc", Name: gotReq.Name, State: v1.StateCreating})
	}, WithToken("s3cret"))

	resp, err := c.CreateVM(context.Background(), &v1.CreateVMRequest{Name: "web1", VCPUs: 2, MemoryMB: 2048, BaseImage: "debian-13.raw", RootDiskGB: 20})

	require.NoError(t, err)
	assert.Equal(t, &v1.CreateVMResponse{ID: "abc", Name: "web1", State: "creating"}, resp)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "debian-13.raw", gotReq.BaseImage)
}

func TestCreateVM_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, v1.ErrorResponse{Error: "Failed to create VM: invalid VM spec: VM name is required"})
	})

	_, err := c.CreateVM(context.Background(), &v1.CreateVMRequest{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Failed to create VM: invalid VM spec: VM name is required", apiErr.Message)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNoTokenNoAuthHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, v1.HealthResponse{Status: "healthy", Version: "0.1.0"})
	})

	resp, err := c.Health(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Status)
}

func TestGetVM(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/vms/web1":
			writeJSON(w, http.StatusOK, v1.VM{ID: "abc", Name: "web1", State: v1.StateRunning, VCPUs: 2, MemoryMB: 2048, IPAddress: "10.0.0.5"})
		default:
			writeJSON(w, http.StatusNotFound, v1.ErrorResponse{Error: "VM not found: missing"})
		}
	})

	vm, err := c.GetVM(context.Background(), "web1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", vm.IPAddress)

	_, err = c.GetVM(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "VM not found: missing")
}

func TestListVMsAndImages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/vms":
			writeJSON(w, http.StatusOK, v1.ListVMsResponse{VMs: []v1.VM{{ID: "a", Name: "one"}, {ID: "b", Name: "two"}}})
		case "/api/v1/images":
			writeJSON(w, http.StatusOK, v1.NewListImagesResponse([]string{"debian-13.raw"}))
		default:
			http.NotFound(w, r)
		}
	})

	vms, err := c.ListVMs(context.Background())
	require.NoError(t, err)
	assert.Len(t, vms, 2)

	images, err := c.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []v1.Image{{Name: "debian-13.raw"}}, images)
}

func TestActions(t *testing.T) {
	tests := []struct {
		name       string
		call       func(*Client) error
		wantMethod string
		wantPath   string
	}{
		{name: "start", call: func(c *Client) error { return c.StartVM(context.Background(), "web1") }, wantMethod: http.MethodPost, wantPath: "/api/v1/vms/web1/start"},
		{name: "stop", call: func(c *Client) error { return c.StopVM(context.Background(), "web1") }, wantMethod: http.MethodPost, wantPath: "/api/v1/vms/web1/stop"},
		{name: "destroy", call: func(c *Client) error { return c.DestroyVM(context.Background(), "web1") }, wantMethod: http.MethodDelete, wantPath: "/api/v1/vms/web1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var method, path string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				method, path = r.Method, r.URL.Path
				writeJSON(w, http.StatusOK, v1.ActionResponse{Status: "ok"})
			})

			require.NoError(t, tt.call(c))
			assert.Equal(t, tt.wantMethod, method)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestActions_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "upstream exploded\n")
	})

	err := c.StopVM(context.Background(), "web1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.Equal(t, "API returned status 500: upstream exploded", err.Error())
}

func TestWaitForVM(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch {
		case n == 1:
			writeJSON(w, http.StatusInternalServerError, v1.ErrorResponse{Error: "libvirt busy"})
		case n < 4:
			writeJSON(w, http.StatusOK, v1.VM{Name: "web1", State: v1.StateRunning})
		default:
			writeJSON(w, http.StatusOK, v1.VM{Name: "web1", State: v1.StateRunning, IPAddress: "10.0.0.9"})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	vm, err := c.WaitForVM(ctx, "web1", 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", vm.IPAddress)
	assert.Equal(t, int32(4), calls.Load())
}

func TestWaitForVM_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, v1.ErrorResponse{Error: "VM not found: web1"})
	})

	_, err := c.WaitForVM(context.Background(), "web1", 10*time.Millisecond)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWaitForVM_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, v1.VM{Name: "web1", State: v1.StateStopped})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	vm, err := c.WaitForVM(ctx, "web1", 10*time.Millisecond)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "err = %v", err)
	require.NotNil(t, vm)
	assert.Equal(t, v1.StateStopped, vm.State)
}
