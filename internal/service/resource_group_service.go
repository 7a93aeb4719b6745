package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
	"github.com/cloudyy74/diconnect-pairup/internal/pairup"
	"github.com/cloudyy74/diconnect-pairup/internal/storage"
	"github.com/cloudyy74/diconnect-pairup/pkg/rowkey"
)

type ResourceGroupRepository interface {
	CreateGroup(ctx context.Context, g models.ResourceGroupEntity) error
	ListGroups(ctx context.Context) ([]*models.ResourceGroupEntity, error)
	GetGroup(ctx context.Context, partitionKey, rowKey string) (*models.ResourceGroupEntity, error)
	GetGroupsForMatching(ctx context.Context, frequency models.MatchingFrequency) ([]*models.ResourceGroupEntity, error)
	SetApprovalStatus(ctx context.Context, rowKey string, status models.ApprovalStatus, now time.Time) (*models.ResourceGroupEntity, error)
}

type ResourceGroupService struct {
	groups ResourceGroupRepository
	log    *slog.Logger
	now    func() time.Time
}

func NewResourceGroupService(groups ResourceGroupRepository, log *slog.Logger) (*ResourceGroupService, error) {
	if groups == nil {
		return nil, errors.New("resource group repository cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &ResourceGroupService{
		groups: groups,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// RegisterGroup stores a new resource group pending approval. Teams groups must
// carry a parsable team deep link; pair-up matching is only available to them.
func (s *ResourceGroupService) RegisterGroup(ctx context.Context, req *models.ResourceGroupCreateRequest) (*models.ResourceGroupEntity, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty body", ErrValidation)
	}
	name := strings.TrimSpace(req.GroupName)
	if name == "" {
		return nil, fmt.Errorf("%w: group_name is required", ErrValidation)
	}
	if req.GroupType != models.GroupTypeTeams && req.GroupType != models.GroupTypeExternal {
		return nil, fmt.Errorf("%w: unknown group_type %d", ErrValidation, req.GroupType)
	}

	frequency := models.FrequencyWeekly
	if strings.TrimSpace(req.MatchingFrequency) != "" {
		f, err := models.ParseMatchingFrequency(req.MatchingFrequency)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		frequency = f
	}

	now := s.now()
	g := models.ResourceGroupEntity{
		PartitionKey:             models.ResourceGroupPartitionKey,
		RowKey:                   rowkey.MostRecentToOldest(now),
		GroupType:                req.GroupType,
		GroupName:                name,
		GroupDescription:         strings.TrimSpace(req.GroupDescription),
		GroupLink:                strings.TrimSpace(req.GroupLink),
		ImageLink:                strings.TrimSpace(req.ImageLink),
		Location:                 strings.TrimSpace(req.Location),
		IncludeInSearchResults:   req.IncludeInSearchResults,
		IsProfileMatchingEnabled: req.IsProfileMatchingEnabled,
		MatchingFrequency:        frequency,
		ApprovalStatus:           models.ApprovalPending,
		CreatedByObjectID:        strings.TrimSpace(req.CreatedByObjectID),
		CreatedOn:                now,
		UpdatedOn:                now,
	}

	switch g.GroupType {
	case models.GroupTypeTeams:
		link, err := pairup.ParseTeamLink(g.GroupLink)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		g.TeamID = link.TeamID
		g.GroupID = link.GroupID
	case models.GroupTypeExternal:
		if g.IsProfileMatchingEnabled {
			return nil, fmt.Errorf("%w: pair-up matching requires a Teams group", ErrValidation)
		}
	}

	if err := s.groups.CreateGroup(ctx, g); err != nil {
		if errors.Is(err, storage.ErrGroupExists) {
			return nil, fmt.Errorf("register group: %w", ErrGroupExists)
		}
		return nil, fmt.Errorf("register group: %w", err)
	}
	s.log.Info("resource group registered",
		slog.String("row_key", g.RowKey),
		slog.String("group_name", g.GroupName),
		slog.String("team_id", g.TeamID),
	)
	return &g, nil
}

// ListGroups lists every group, or only the approved matching groups of a frequency when one is given.
func (s *ResourceGroupService) ListGroups(ctx context.Context, frequency string) ([]*models.ResourceGroupEntity, error) {
	if strings.TrimSpace(frequency) == "" {
		groups, err := s.groups.ListGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("list groups: %w", err)
		}
		return groups, nil
	}

	f, err := models.ParseMatchingFrequency(frequency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	groups, err := s.groups.GetGroupsForMatching(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (s *ResourceGroupService) GetGroup(ctx context.Context, rowKey string) (*models.ResourceGroupEntity, error) {
	rowKey = strings.TrimSpace(rowKey)
	if rowKey == "" {
		return nil, fmt.Errorf("%w: row_key is required", ErrValidation)
	}
	g, err := s.groups.GetGroup(ctx, models.ResourceGroupPartitionKey, rowKey)
	if err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			return nil, fmt.Errorf("get group: %w", ErrGroupNotFound)
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *ResourceGroupService) SetApproval(ctx context.Context, req *models.SetApprovalRequest) (*models.ResourceGroupEntity, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty body", ErrValidation)
	}
	rowKey := strings.TrimSpace(req.RowKey)
	if rowKey == "" {
		return nil, fmt.Errorf("%w: row_key is required", ErrValidation)
	}
	if req.ApprovalStatus < models.ApprovalPending || req.ApprovalStatus > models.ApprovalRejected {
		return nil, fmt.Errorf("%w: unknown approval_status %d", ErrValidation, req.ApprovalStatus)
	}

	g, err := s.groups.SetApprovalStatus(ctx, rowKey, req.ApprovalStatus, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			return nil, fmt.Errorf("set approval: %w", ErrGroupNotFound)
		}
		return nil, fmt.Errorf("set approval: %w", err)
	}
	s.log.Info("resource group approval changed", slog.String("row_key", rowKey), slog.Int("approval_status", int(g.ApprovalStatus)))
	return g, nil
}
