package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cuemby/skynet-control/pkg/gatewayclient"
	"github.com/cuemby/skynet-control/pkg/queue"
	"github.com/cuemby/skynet-control/pkg/types"
)

type enqueueRequest struct {
	ID            string          `json:"id"`
	Action        string          `json:"action"`
	Params        json.RawMessage `json:"params,omitempty"`
	Priority      int             `json:"priority,omitempty"`
	Dependencies  []string        `json:"dependencies,omitempty"`
	RequiredFiles []string        `json:"required_files,omitempty"`
	GatewayID     string          `json:"gateway_id,omitempty"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	task, err := s.queue.Enqueue(r.Context(), queue.EnqueueInput{
		ID:            req.ID,
		Action:        req.Action,
		Params:        req.Params,
		Priority:      req.Priority,
		Dependencies:  req.Dependencies,
		RequiredFiles: req.RequiredFiles,
		GatewayID:     req.GatewayID,
	})
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

type claimRequest struct {
	WorkerID string `json:"worker_id"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	if req.WorkerID == "" {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "worker_id is required"))
		return
	}
	task, err := s.queue.ClaimNext(r.Context(), req.WorkerID)
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	if task == nil {
		writeJSON(w, http.StatusOK, map[string]any{"claimed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claimed": true, "task": task})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	preview, err := s.readModel.NextTaskPreview(r.Context(), r.URL.Query().Get("agent_id"))
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" {
		status = string(types.CanonicalTaskStatus(status))
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	tasks, err := s.queue.ListTasks(r.Context(), status, limit)
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

type startRequest struct {
	WorkerID   string `json:"worker_id"`
	ClaimToken string `json:"claim_token"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	ok, err := s.queue.MarkRunning(r.Context(), r.PathValue("id"), req.WorkerID, req.ClaimToken)
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	if !ok {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_transition", "task is not claimed by this worker/token"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type completeRequest struct {
	WorkerID   string          `json:"worker_id"`
	ClaimToken string          `json:"claim_token"`
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	ok, err := s.queue.Complete(r.Context(), r.PathValue("id"), req.WorkerID, req.ClaimToken, req.Success, req.Result, types.TruncateError(req.Error))
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	if !ok {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_transition", "task is not active under this worker/token"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type releaseRequest struct {
	WorkerID      string `json:"worker_id"`
	ClaimToken    string `json:"claim_token"`
	Reason        string `json:"reason,omitempty"`
	BackToPending bool   `json:"back_to_pending"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	ok, err := s.queue.Release(r.Context(), r.PathValue("id"), req.WorkerID, req.ClaimToken, req.Reason, req.BackToPending)
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	if !ok {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_transition", "task is not active under this worker/token"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// routeTaskRequest is a one-shot route: pick a healthy gateway and forward
// a single action synchronously, bypassing the queue entirely. The task_id
// is echoed through to the gateway for correlation but no task row is
// touched.
type routeTaskRequest struct {
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params,omitempty"`
	GatewayID string          `json:"gateway_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Confirmed bool            `json:"confirmed"`
}

type routeTaskResponse struct {
	TaskID      string          `json:"task_id,omitempty"`
	GatewayID   string          `json:"gateway_id"`
	GatewayHost string          `json:"gateway_host"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func (s *Server) handleRouteTask(w http.ResponseWriter, r *http.Request) {
	var req routeTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	if req.Action == "" {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "action is required"))
		return
	}

	gw, err := s.registry.Select(req.GatewayID)
	if err != nil {
		writeError(w, classifyError(err))
		return
	}

	resp, err := s.gatewayClient.Action(r.Context(), gw.GatewayID, gw.Host, types.GatewayActionRequest{
		Action:    req.Action,
		Params:    req.Params,
		Confirmed: req.Confirmed,
		TaskID:    req.TaskID,
	})
	if err != nil {
		s.registry.HeartbeatGateway(gw.GatewayID, types.GatewayDegraded)
		writeError(w, newAPIError(http.StatusBadGateway, "gateway_error", err.Error()))
		return
	}

	success, errMsg := gatewayclient.ClassifyResult(resp)
	if success {
		s.registry.HeartbeatGateway(gw.GatewayID, types.GatewayOnline)
	} else {
		s.registry.HeartbeatGateway(gw.GatewayID, types.GatewayDegraded)
	}

	out := routeTaskResponse{
		TaskID:      req.TaskID,
		GatewayID:   gw.GatewayID,
		GatewayHost: gw.Host,
		Status:      resp.Status,
		Error:       errMsg,
	}
	if resp.Result != nil {
		out.Result, _ = json.Marshal(resp.Result)
	}
	writeJSON(w, http.StatusOK, out)
}
