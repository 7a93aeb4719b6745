package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

type ResourceGroupService interface {
	RegisterGroup(context.Context, *models.ResourceGroupCreateRequest) (*models.ResourceGroupEntity, error)
	ListGroups(context.Context, string) ([]*models.ResourceGroupEntity, error)
	GetGroup(context.Context, string) (*models.ResourceGroupEntity, error)
	SetApproval(context.Context, *models.SetApprovalRequest) (*models.ResourceGroupEntity, error)
}

func (rtr *router) registerGroup(w http.ResponseWriter, r *http.Request) {
	var req models.ResourceGroupCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rtr.handleError(w, newResponseError(ErrCodeBadRequest, "bad json request"))
		return
	}

	g, err := rtr.groupService.RegisterGroup(r.Context(), &req)
	if err != nil {
		rtr.handleError(w, err)
		return
	}
	rtr.responseJSON(w, http.StatusCreated, models.ResourceGroupResponse{Group: *g})
}

func (rtr *router) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := rtr.groupService.ListGroups(r.Context(), r.URL.Query().Get("frequency"))
	if err != nil {
		rtr.handleError(w, err)
		return
	}
	rtr.responseJSON(w, http.StatusOK, models.ResourceGroupListResponse{Groups: groups})
}

func (rtr *router) getGroup(w http.ResponseWriter, r *http.Request) {
	g, err := rtr.groupService.GetGroup(r.Context(), r.URL.Query().Get("row_key"))
	if err != nil {
		rtr.handleError(w, err)
		return
	}
	rtr.responseJSON(w, http.StatusOK, models.ResourceGroupResponse{Group: *g})
}

func (rtr *router) setGroupApproval(w http.ResponseWriter, r *http.Request) {
	var req models.SetApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rtr.handleError(w, newResponseError(ErrCodeBadRequest, "bad json request"))
		return
	}

	g, err := rtr.groupService.SetApproval(r.Context(), &req)
	if err != nil {
		rtr.handleError(w, err)
		return
	}
	rtr.responseJSON(w, http.StatusOK, models.ResourceGroupResponse{Group: *g})
}
