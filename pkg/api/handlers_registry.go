package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/skynet-control/pkg/types"
)

type registerGatewayRequest struct {
	GatewayID    string            `json:"gateway_id"`
	Host         string            `json:"host"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Status       string            `json:"status,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleRegisterGateway(w http.ResponseWriter, r *http.Request) {
	var req registerGatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	if req.GatewayID == "" || req.Host == "" {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "gateway_id and host are required"))
		return
	}
	g := s.registry.RegisterGateway(&types.Gateway{
		GatewayID:    req.GatewayID,
		Host:         req.Host,
		Capabilities: req.Capabilities,
		Status:       types.GatewayStatus(req.Status),
		Metadata:     req.Metadata,
	})

	// Live-probe the host; an unreachable or agent-less gateway is
	// registered anyway but downgraded so the scheduler skips it.
	if status, err := s.gatewayClient.Status(r.Context(), g.GatewayID, g.Host); err != nil {
		s.registry.HeartbeatGateway(g.GatewayID, types.GatewayOffline)
		g.Status = types.GatewayOffline
	} else if !status.AgentConnected {
		s.registry.HeartbeatGateway(g.GatewayID, types.GatewayDegraded)
		g.Status = types.GatewayDegraded
	}

	apiLog.Info().Str("gateway_id", g.GatewayID).Str("host", g.Host).Str("status", string(g.Status)).Msg("gateway registered")
	writeJSON(w, http.StatusOK, g)
}

type registerWorkerRequest struct {
	WorkerID     string            `json:"worker_id"`
	GatewayID    string            `json:"gateway_id,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Status       string            `json:"status,omitempty"`
	Capacity     json.RawMessage   `json:"capacity,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req registerWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	if req.WorkerID == "" {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "worker_id is required"))
		return
	}
	wk := s.registry.RegisterWorker(&types.Worker{
		WorkerID:     req.WorkerID,
		GatewayID:    req.GatewayID,
		Capabilities: req.Capabilities,
		Status:       types.WorkerStatus(req.Status),
		Capacity:     req.Capacity,
		Metadata:     req.Metadata,
	})
	if err := s.queue.MirrorWorker(r.Context(), wk); err != nil {
		apiLog.Warn().Err(err).Str("worker_id", wk.WorkerID).Msg("worker mirror write failed")
	}
	apiLog.Info().Str("worker_id", wk.WorkerID).Msg("worker registered")
	writeJSON(w, http.StatusOK, wk)
}

func (s *Server) handleSystemState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.readModel.SystemState())
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.readModel.ActiveAssignments(r.Context())
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}
