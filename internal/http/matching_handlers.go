package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

type MatchingService interface {
	StartMatching(context.Context, *models.MatchingRunRequest) (*models.OrchestrationInstance, error)
	GetInstance(context.Context, string) (*models.OrchestrationInstance, error)
}

// runMatching answers 202 while the run proceeds in the background and 200 for a run that already finished.
func (rtr *router) runMatching(w http.ResponseWriter, r *http.Request) {
	var req models.MatchingRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rtr.handleError(w, newResponseError(ErrCodeBadRequest, "bad json request"))
		return
	}

	inst, err := rtr.matchingService.StartMatching(r.Context(), &req)
	if err != nil {
		rtr.handleError(w, err)
		return
	}
	status := http.StatusOK
	if inst.Status == models.InstanceStatusRunning {
		status = http.StatusAccepted
	}
	rtr.responseJSON(w, status, models.MatchingRunResponse{Instance: *inst})
}

func (rtr *router) getMatchingStatus(w http.ResponseWriter, r *http.Request) {
	inst, err := rtr.matchingService.GetInstance(r.Context(), r.URL.Query().Get("instance_id"))
	if err != nil {
		rtr.handleError(w, err)
		return
	}
	rtr.responseJSON(w, http.StatusOK, models.MatchingRunResponse{Instance: *inst})
}
