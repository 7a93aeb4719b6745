package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

type router struct {
	groupService    ResourceGroupService
	pairUpService   PairUpService
	matchingService MatchingService
	log             *slog.Logger
}

func SetupRouter(
	mux *http.ServeMux,
	groupService ResourceGroupService,
	pairUpService PairUpService,
	matchingService MatchingService,
	log *slog.Logger,
) error {
	if mux == nil {
		return errors.New("mux cannot be nil")
	}
	if groupService == nil {
		return errors.New("resource group service cannot be nil")
	}
	if pairUpService == nil {
		return errors.New("pair-up service cannot be nil")
	}
	if matchingService == nil {
		return errors.New("matching service cannot be nil")
	}
	if log == nil {
		return errors.New("logger cannot be nil")
	}
	r := router{
		groupService:    groupService,
		pairUpService:   pairUpService,
		matchingService: matchingService,
		log:             log,
	}
	mux.HandleFunc("GET /ping", r.panicMiddleware(r.loggingMiddleware(r.ping)))
	mux.HandleFunc("POST /groups/add", r.panicMiddleware(r.loggingMiddleware(r.registerGroup)))
	mux.HandleFunc("GET /groups/list", r.panicMiddleware(r.loggingMiddleware(r.listGroups)))
	mux.HandleFunc("GET /groups/get", r.panicMiddleware(r.loggingMiddleware(r.getGroup)))
	mux.HandleFunc("POST /groups/setApproval", r.panicMiddleware(r.loggingMiddleware(r.setGroupApproval)))
	mux.HandleFunc("POST /pairup/setIsPaused", r.panicMiddleware(r.loggingMiddleware(r.setPaused)))
	mux.HandleFunc("GET /pairup/get", r.panicMiddleware(r.loggingMiddleware(r.getUserMappings)))
	mux.HandleFunc("POST /matching/run", r.panicMiddleware(r.loggingMiddleware(r.runMatching)))
	mux.HandleFunc("GET /matching/status", r.panicMiddleware(r.loggingMiddleware(r.getMatchingStatus)))
	return nil
}

func (rtr *router) responseJSON(w http.ResponseWriter, statusCode int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		rtr.log.Error("failed to encode response", slog.Any("error", err))
	}
}

func (rtr *router) ping(w http.ResponseWriter, r *http.Request) {
	rtr.responseJSON(w, http.StatusOK, models.PingResponse{Status: "ok", Message: "diconnect pair-up"})
}
