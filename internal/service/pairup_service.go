package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
	"github.com/cloudyy74/diconnect-pairup/internal/storage"
)

type PairUpRepository interface {
	SetPaused(ctx context.Context, userID, teamID string, isPaused bool, now time.Time) (*models.TeamUserPairUpMappingEntity, error)
	GetUserMappings(ctx context.Context, userID string) ([]*models.TeamUserPairUpMappingEntity, error)
}

// PairUpService lets users pause and resume pair-up matching per team.
type PairUpService struct {
	mappings PairUpRepository
	log      *slog.Logger
	now      func() time.Time
}

func NewPairUpService(mappings PairUpRepository, log *slog.Logger) (*PairUpService, error) {
	if mappings == nil {
		return nil, errors.New("pair-up repository cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &PairUpService{
		mappings: mappings,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *PairUpService) SetPaused(ctx context.Context, req *models.SetPausedRequest) (*models.TeamUserPairUpMappingEntity, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty body", ErrValidation)
	}
	userID := strings.TrimSpace(req.UserID)
	teamID := strings.TrimSpace(req.TeamID)
	if userID == "" || teamID == "" {
		return nil, fmt.Errorf("%w: user_id and team_id are required", ErrValidation)
	}

	m, err := s.mappings.SetPaused(ctx, userID, teamID, req.IsPaused, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrMappingNotFound) {
			return nil, fmt.Errorf("set paused: %w", ErrMappingNotFound)
		}
		return nil, fmt.Errorf("set paused: %w", err)
	}
	s.log.Info("pair-up pause state changed",
		slog.String("user_id", userID),
		slog.String("team_id", teamID),
		slog.Bool("is_paused", m.IsPaused),
	)
	return m, nil
}

func (s *PairUpService) GetUserMappings(ctx context.Context, userID string) ([]*models.TeamUserPairUpMappingEntity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	mappings, err := s.mappings.GetUserMappings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user mappings: %w", err)
	}
	return mappings, nil
}
