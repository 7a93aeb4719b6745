package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
	"github.com/cloudyy74/diconnect-pairup/pkg/postgres"
)

var (
	ErrGroupExists   = errors.New("resource group already exists")
	ErrGroupNotFound = errors.New("resource group not found")
)

const resourceGroupColumns = `partition_key, row_key, group_type, group_name, group_description, group_link,
image_link, location, include_in_search_results, is_profile_matching_enabled, matching_frequency,
team_id, group_id, approval_status, created_by_object_id, created_on, updated_on`

type ResourceGroupStorage struct {
	db  *postgres.Postgres
	log *slog.Logger
}

func NewResourceGroupStorage(db *postgres.Postgres, log *slog.Logger) (*ResourceGroupStorage, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &ResourceGroupStorage{
		db:  db,
		log: log,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResourceGroup(row rowScanner) (*models.ResourceGroupEntity, error) {
	var g models.ResourceGroupEntity
	err := row.Scan(
		&g.PartitionKey, &g.RowKey, &g.GroupType, &g.GroupName, &g.GroupDescription, &g.GroupLink,
		&g.ImageLink, &g.Location, &g.IncludeInSearchResults, &g.IsProfileMatchingEnabled, &g.MatchingFrequency,
		&g.TeamID, &g.GroupID, &g.ApprovalStatus, &g.CreatedByObjectID, &g.CreatedOn, &g.UpdatedOn,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *ResourceGroupStorage) CreateGroup(ctx context.Context, g models.ResourceGroupEntity) error {
	exec := querierFromCtx(ctx, s.db.DB)
	_, err := exec.ExecContext(
		ctx,
		`insert into resource_groups (`+resourceGroupColumns+`)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		g.PartitionKey, g.RowKey, int(g.GroupType), g.GroupName, g.GroupDescription, g.GroupLink,
		g.ImageLink, g.Location, g.IncludeInSearchResults, g.IsProfileMatchingEnabled, int(g.MatchingFrequency),
		g.TeamID, g.GroupID, int(g.ApprovalStatus), g.CreatedByObjectID, g.CreatedOn, g.UpdatedOn,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("insert resource group: %w", ErrGroupExists)
		}
		s.log.Error("failed to create resource group", slog.Any("error", err), slog.String("group_name", g.GroupName))
		return fmt.Errorf("insert resource group: %w", err)
	}
	return nil
}

func (s *ResourceGroupStorage) GetGroup(ctx context.Context, partitionKey, rowKey string) (*models.ResourceGroupEntity, error) {
	exec := querierFromCtx(ctx, s.db.DB)
	row := exec.QueryRowContext(
		ctx,
		`select `+resourceGroupColumns+` from resource_groups where partition_key = $1 and row_key = $2`,
		partitionKey,
		rowKey,
	)
	g, err := scanResourceGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get resource group: %w", ErrGroupNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get resource group: %w", err)
	}
	return g, nil
}

// GetGroupsForMatching returns approved groups with matching enabled for the frequency.
func (s *ResourceGroupStorage) GetGroupsForMatching(ctx context.Context, frequency models.MatchingFrequency) ([]*models.ResourceGroupEntity, error) {
	exec := querierFromCtx(ctx, s.db.DB)
	rows, err := exec.QueryContext(
		ctx,
		`select `+resourceGroupColumns+`
from resource_groups
where matching_frequency = $1
  and is_profile_matching_enabled
  and approval_status = $2
order by row_key`,
		int(frequency),
		int(models.ApprovalApproved),
	)
	if err != nil {
		s.log.Error("failed to get groups for matching", slog.Any("error", err), slog.String("frequency", frequency.String()))
		return nil, fmt.Errorf("get groups for matching: %w", err)
	}
	return collectResourceGroups(rows)
}

func (s *ResourceGroupStorage) SetApprovalStatus(ctx context.Context, rowKey string, status models.ApprovalStatus, now time.Time) (*models.ResourceGroupEntity, error) {
	exec := querierFromCtx(ctx, s.db.DB)
	row := exec.QueryRowContext(
		ctx,
		`
update resource_groups set approval_status = $1, updated_on = $2
where partition_key = $3 and row_key = $4
returning `+resourceGroupColumns,
		int(status),
		now,
		models.ResourceGroupPartitionKey,
		rowKey,
	)
	g, err := scanResourceGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("set approval status: %w", ErrGroupNotFound)
	}
	if err != nil {
		s.log.Error("failed to set approval status", slog.Any("error", err), slog.String("row_key", rowKey))
		return nil, fmt.Errorf("set approval status: %w", err)
	}
	return g, nil
}

func (s *ResourceGroupStorage) ListGroups(ctx context.Context) ([]*models.ResourceGroupEntity, error) {
	exec := querierFromCtx(ctx, s.db.DB)
	rows, err := exec.QueryContext(ctx, `select `+resourceGroupColumns+` from resource_groups order by row_key`)
	if err != nil {
		s.log.Error("failed to list resource groups", slog.Any("error", err))
		return nil, fmt.Errorf("list resource groups: %w", err)
	}
	return collectResourceGroups(rows)
}

func collectResourceGroups(rows *sql.Rows) ([]*models.ResourceGroupEntity, error) {
	defer rows.Close()

	groups := make([]*models.ResourceGroupEntity, 0)
	for rows.Next() {
		g, err := scanResourceGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource groups: %w", err)
	}
	return groups, nil
}
