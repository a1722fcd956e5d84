package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleFileOwnership(w http.ResponseWriter, r *http.Request) {
	owned, err := s.readModel.FileOwnership(r.Context())
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ownership": owned})
}

type fileOwnershipClaimRequest struct {
	TaskID     string `json:"task_id"`
	ClaimToken string `json:"claim_token"`
	FilePath   string `json:"file_path"`
}

func (s *Server) handleFileOwnershipClaim(w http.ResponseWriter, r *http.Request) {
	var req fileOwnershipClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	if req.TaskID == "" || req.ClaimToken == "" || req.FilePath == "" {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "task_id, claim_token, and file_path are required"))
		return
	}

	ok, conflictOwner, err := s.queue.ClaimFile(r.Context(), req.TaskID, req.ClaimToken, req.FilePath)
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{
			"ok":            false,
			"owner_task_id": conflictOwner,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
