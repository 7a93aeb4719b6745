package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

type PairUpService interface {
	SetPaused(context.Context, *models.SetPausedRequest) (*models.TeamUserPairUpMappingEntity, error)
	GetUserMappings(context.Context, string) ([]*models.TeamUserPairUpMappingEntity, error)
}

func (rtr *router) setPaused(w http.ResponseWriter, r *http.Request) {
	var req models.SetPausedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rtr.handleError(w, newResponseError(ErrCodeBadRequest, "bad json request"))
		return
	}

	m, err := rtr.pairUpService.SetPaused(r.Context(), &req)
	if err != nil {
		rtr.handleError(w, err)
		return
	}
	rtr.responseJSON(w, http.StatusOK, models.PairUpMappingResponse{Mapping: *m})
}

func (rtr *router) getUserMappings(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	mappings, err := rtr.pairUpService.GetUserMappings(r.Context(), userID)
	if err != nil {
		rtr.handleError(w, err)
		return
	}
	rtr.responseJSON(w, http.StatusOK, models.UserPairUpMappingsResponse{UserID: userID, Mappings: mappings})
}
