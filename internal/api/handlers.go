package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	v1 "github.com/jbweber/rcloud/api/v1"
	"github.com/jbweber/rcloud/internal/vm"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, v1.HealthResponse{Status: "healthy", Version: s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, v1.StatusResponse{
		Status:          "operational",
		Version:         s.version,
		KdevopsRoot:     s.cfg.KdevopsRoot,
		LibvirtURI:      s.cfg.LibvirtURI,
		StoragePoolPath: s.cfg.StoragePoolPath,
		BaseImagesDir:   s.cfg.BaseImagesDir,
		NetworkBridge:   s.cfg.NetworkBridge,
	})
}

func (s *Server) handleCreateVM(w http.ResponseWriter, r *http.Request) {
	var req v1.CreateVMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	spec := vm.Spec{
		Name:         req.Name,
		VCPUs:        req.VCPUs,
		MemoryMB:     req.MemoryMB,
		BaseImage:    req.BaseImage,
		RootDiskGB:   req.RootDiskGB,
		SSHUser:      req.SSHUser,
		SSHPublicKey: req.SSHPublicKey,
	}

	// A client that disconnects mid-create must not abandon a half-built VM.
	id, err := s.mgr.Create(context.WithoutCancel(r.Context()), spec)
	if err != nil {
		s.log.Error(err, "failed to create VM", "vm", req.Name)
		writeError(w, http.StatusInternalServerError, "Failed to create VM: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, v1.CreateVMResponse{ID: id, Name: req.Name, State: v1.StateCreating})
}

func (s *Server) handleListVMs(w http.ResponseWriter, r *http.Request) {
	infos, err := s.mgr.List(r.Context())
	if err != nil {
		s.log.Error(err, "failed to list VMs")
		writeError(w, http.StatusInternalServerError, "Failed to list VMs: "+err.Error())
		return
	}

	vms := make([]v1.VM, 0, len(infos))
	for _, info := range infos {
		vms = append(vms, toVM(info))
	}
	writeJSON(w, http.StatusOK, v1.ListVMsResponse{VMs: vms})
}

func (s *Server) handleGetVM(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, err := s.mgr.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, vm.ErrNotFound) {
			writeError(w, http.StatusNotFound, "VM not found: "+err.Error())
			return
		}
		s.log.Error(err, "failed to get VM", "vm", id)
		writeError(w, http.StatusInternalServerError, "Failed to get VM: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toVM(info))
}

func (s *Server) handleStartVM(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, "start", v1.ActionStarted, s.mgr.Start)
}

func (s *Server) handleStopVM(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, "stop", v1.ActionStopped, s.mgr.Stop)
}

func (s *Server) handleDestroyVM(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, "destroy", v1.ActionDestroyed, s.mgr.Destroy)
}

// handleAction runs a mutating VM operation. Every failure, including an
// unknown VM, is reported as 500.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, verb, result string, op func(context.Context, string) error) {
	id := mux.Vars(r)["id"]

	if err := op(context.WithoutCancel(r.Context()), id); err != nil {
		s.log.Error(err, "VM operation failed", "operation", verb, "vm", id)
		writeError(w, http.StatusInternalServerError, "Failed to "+verb+" VM: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v1.ActionResponse{Status: result})
}

func (s *Server) handleListImages(w http.ResponseWriter, _ *http.Request) {
	names, err := s.mgr.ListBaseImages()
	if err != nil {
		s.log.Error(err, "failed to list base images")
		writeError(w, http.StatusInternalServerError, "Failed to list images: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v1.NewListImagesResponse(names))
}

func toVM(info vm.Info) v1.VM {
	return v1.VM{
		ID:        info.ID,
		Name:      info.Name,
		State:     string(info.State),
		VCPUs:     uint32(info.VCPUs),
		MemoryMB:  info.MemoryMB,
		IPAddress: info.IPAddress,
	}
}
