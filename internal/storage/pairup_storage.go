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

var ErrMappingNotFound = errors.New("pair-up mapping not found")

type PairUpStorage struct {
	db  *postgres.Postgres
	log *slog.Logger
}

func NewPairUpStorage(db *postgres.Postgres, log *slog.Logger) (*PairUpStorage, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &PairUpStorage{
		db:  db,
		log: log,
	}, nil
}

// InsertMapping adds an unpaused mapping and keeps an existing row untouched.
// It reports whether a row was inserted.
func (s *PairUpStorage) InsertMapping(ctx context.Context, userID, teamID string, now time.Time) (bool, error) {
	exec := querierFromCtx(ctx, s.db.DB)
	res, err := exec.ExecContext(
		ctx,
		`
insert into team_user_pairup_mappings (user_object_id, team_id, is_paused, updated_on)
values ($1, $2, false, $3)
on conflict (user_object_id, team_id) do nothing`,
		userID,
		teamID,
		now,
	)
	if err != nil {
		s.log.Error("failed to insert pair-up mapping", slog.Any("error", err), slog.String("user_id", userID), slog.String("team_id", teamID))
		return false, fmt.Errorf("insert pair-up mapping: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *PairUpStorage) DeleteMapping(ctx context.Context, userID, teamID string) error {
	exec := querierFromCtx(ctx, s.db.DB)
	if _, err := exec.ExecContext(
		ctx,
		`delete from team_user_pairup_mappings where user_object_id = $1 and team_id = $2`,
		userID,
		teamID,
	); err != nil {
		s.log.Error("failed to delete pair-up mapping", slog.Any("error", err), slog.String("user_id", userID), slog.String("team_id", teamID))
		return fmt.Errorf("delete pair-up mapping: %w", err)
	}
	return nil
}

func (s *PairUpStorage) GetTeamMappings(ctx context.Context, teamID string) ([]*models.TeamUserPairUpMappingEntity, error) {
	return s.queryMappings(ctx, `
select user_object_id, team_id, is_paused, updated_on
from team_user_pairup_mappings
where team_id = $1
order by user_object_id
`, teamID)
}

// GetActiveTeamMappings returns the team's rows with is_paused = false.
func (s *PairUpStorage) GetActiveTeamMappings(ctx context.Context, teamID string) ([]*models.TeamUserPairUpMappingEntity, error) {
	return s.queryMappings(ctx, `
select user_object_id, team_id, is_paused, updated_on
from team_user_pairup_mappings
where team_id = $1
  and not is_paused
order by user_object_id
`, teamID)
}

func (s *PairUpStorage) GetUserMappings(ctx context.Context, userID string) ([]*models.TeamUserPairUpMappingEntity, error) {
	return s.queryMappings(ctx, `
select user_object_id, team_id, is_paused, updated_on
from team_user_pairup_mappings
where user_object_id = $1
order by team_id
`, userID)
}

func (s *PairUpStorage) queryMappings(ctx context.Context, query string, arg string) ([]*models.TeamUserPairUpMappingEntity, error) {
	exec := querierFromCtx(ctx, s.db.DB)
	rows, err := exec.QueryContext(ctx, query, arg)
	if err != nil {
		s.log.Error("failed to query pair-up mappings", slog.Any("error", err))
		return nil, fmt.Errorf("query pair-up mappings: %w", err)
	}
	defer rows.Close()

	mappings := make([]*models.TeamUserPairUpMappingEntity, 0)
	for rows.Next() {
		var m models.TeamUserPairUpMappingEntity
		if err := rows.Scan(&m.UserObjectID, &m.TeamID, &m.IsPaused, &m.UpdatedOn); err != nil {
			return nil, fmt.Errorf("scan pair-up mapping: %w", err)
		}
		mappings = append(mappings, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pair-up mappings: %w", err)
	}
	return mappings, nil
}

func (s *PairUpStorage) SetPaused(ctx context.Context, userID, teamID string, isPaused bool, now time.Time) (*models.TeamUserPairUpMappingEntity, error) {
	exec := querierFromCtx(ctx, s.db.DB)
	var m models.TeamUserPairUpMappingEntity
	err := exec.QueryRowContext(
		ctx,
		`
update team_user_pairup_mappings set is_paused = $1, updated_on = $2
where user_object_id = $3 and team_id = $4
returning user_object_id, team_id, is_paused, updated_on`,
		isPaused,
		now,
		userID,
		teamID,
	).Scan(&m.UserObjectID, &m.TeamID, &m.IsPaused, &m.UpdatedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("set paused: %w", ErrMappingNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("set paused: %w", err)
	}
	return &m, nil
}
