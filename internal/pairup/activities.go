package pairup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

type GroupRepository interface {
	GetGroupsForMatching(ctx context.Context, frequency models.MatchingFrequency) ([]*models.ResourceGroupEntity, error)
}

type MappingRepository interface {
	GetTeamMappings(ctx context.Context, teamID string) ([]*models.TeamUserPairUpMappingEntity, error)
	GetActiveTeamMappings(ctx context.Context, teamID string) ([]*models.TeamUserPairUpMappingEntity, error)
	InsertMapping(ctx context.Context, userID, teamID string, now time.Time) (bool, error)
	DeleteMapping(ctx context.Context, userID, teamID string) error
}

type TxManager interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

type Directory interface {
	ListGroupMembers(ctx context.Context, groupID string) ([]models.DirectoryUser, error)
	GetUser(ctx context.Context, userID string) (*models.DirectoryUser, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

type SyncMembersInput struct {
	TeamID  string `json:"team_id"`
	GroupID string `json:"group_id"`
}

type SyncMembersResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

type ActiveUsersInput struct {
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
}

type SendMatchesInput struct {
	NotificationID string                   `json:"notification_id"`
	TeamID         string                   `json:"team_id"`
	TeamName       string                   `json:"team_name"`
	Users          []models.TeamUserMapping `json:"users"`
}

// Activities holds the side-effecting steps of the pair-up preparation.
type Activities struct {
	groups     GroupRepository
	mappings   MappingRepository
	tx         TxManager
	directory  Directory
	publisher  Publisher
	batchTopic string
	log        *slog.Logger
	now        func() time.Time
}

func NewActivities(
	groups GroupRepository,
	mappings MappingRepository,
	tx TxManager,
	directory Directory,
	publisher Publisher,
	batchTopic string,
	log *slog.Logger,
) (*Activities, error) {
	if groups == nil {
		return nil, errors.New("group repository cannot be nil")
	}
	if mappings == nil {
		return nil, errors.New("mapping repository cannot be nil")
	}
	if tx == nil {
		return nil, errors.New("tx manager cannot be nil")
	}
	if directory == nil {
		return nil, errors.New("directory cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if batchTopic == "" {
		return nil, errors.New("batch topic cannot be empty")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Activities{
		groups:     groups,
		mappings:   mappings,
		tx:         tx,
		directory:  directory,
		publisher:  publisher,
		batchTopic: batchTopic,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func decodeInput(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return backoff.Permanent(fmt.Errorf("decode activity input: %w", err))
	}
	return nil
}

// GetResourceGroupEntities lists the approved, matching-enabled groups for a frequency token.
func (a *Activities) GetResourceGroupEntities(ctx context.Context, raw json.RawMessage) (any, error) {
	var token string
	if err := decodeInput(raw, &token); err != nil {
		return nil, err
	}
	frequency, err := models.ParseMatchingFrequency(token)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	groups, err := a.groups.GetGroupsForMatching(ctx, frequency)
	if err != nil {
		return nil, fmt.Errorf("get groups for matching: %w", err)
	}
	return groups, nil
}

// SyncPairUpMembers makes the team's mapping rows match the directory group:
// new members get an unpaused row, rows of departed members are removed.
func (a *Activities) SyncPairUpMembers(ctx context.Context, raw json.RawMessage) (any, error) {
	var in SyncMembersInput
	if err := decodeInput(raw, &in); err != nil {
		return nil, err
	}

	members, err := a.directory.ListGroupMembers(ctx, in.GroupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}

	var res SyncMembersResult
	err = a.tx.Run(ctx, func(ctx context.Context) error {
		existing, err := a.mappings.GetTeamMappings(ctx, in.TeamID)
		if err != nil {
			return err
		}

		current := make(map[string]struct{}, len(members))
		now := a.now()
		for _, m := range members {
			current[m.ID] = struct{}{}
			inserted, err := a.mappings.InsertMapping(ctx, m.ID, in.TeamID, now)
			if err != nil {
				return err
			}
			if inserted {
				res.Added++
			}
		}

		for _, row := range existing {
			if _, ok := current[row.UserObjectID]; ok {
				continue
			}
			if err := a.mappings.DeleteMapping(ctx, row.UserObjectID, in.TeamID); err != nil {
				return err
			}
			res.Removed++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync pair-up members: %w", err)
	}

	a.log.Info("pair-up members synced",
		slog.String("team_id", in.TeamID),
		slog.Int("members", len(members)),
		slog.Int("added", res.Added),
		slog.Int("removed", res.Removed),
	)
	return res, nil
}

// GetActivePairUpUsers returns the team's unpaused users with their directory profile.
// Users whose profile cannot be fetched are skipped.
func (a *Activities) GetActivePairUpUsers(ctx context.Context, raw json.RawMessage) (any, error) {
	var in ActiveUsersInput
	if err := decodeInput(raw, &in); err != nil {
		return nil, err
	}

	rows, err := a.mappings.GetActiveTeamMappings(ctx, in.TeamID)
	if err != nil {
		return nil, fmt.Errorf("get active team mappings: %w", err)
	}

	users := make([]models.TeamUserMapping, 0, len(rows))
	for _, row := range rows {
		if row.IsPaused {
			continue
		}
		profile, err := a.directory.GetUser(ctx, row.UserObjectID)
		if err != nil {
			a.log.Warn("skipping user without directory profile",
				slog.String("team_id", in.TeamID),
				slog.String("user_id", row.UserObjectID),
				slog.Any("error", err),
			)
			continue
		}
		users = append(users, models.TeamUserMapping{
			UserGivenName:     profile.GivenName,
			UserPrincipalName: profile.UserPrincipalName,
			UserObjectID:      row.UserObjectID,
			TeamID:            in.TeamID,
			TeamName:          in.TeamName,
		})
	}
	return users, nil
}

// SendPairUpMatches publishes the team's active users as one batch keyed by team id.
func (a *Activities) SendPairUpMatches(ctx context.Context, raw json.RawMessage) (any, error) {
	var in SendMatchesInput
	if err := decodeInput(raw, &in); err != nil {
		return nil, err
	}
	if len(in.Users) == 0 {
		return "", nil
	}

	msg := models.PairUpBatchMessage{
		PairUpNotificationID: in.NotificationID,
		TeamID:               in.TeamID,
		TeamName:             in.TeamName,
		Users:                make([]models.UserData, 0, len(in.Users)),
	}
	for _, u := range in.Users {
		msg.Users = append(msg.Users, models.UserDataFromMapping(u))
	}

	if err := a.publisher.Publish(ctx, a.batchTopic, in.TeamID, msg); err != nil {
		return nil, fmt.Errorf("publish pair-up batch: %w", err)
	}
	return msg.PairUpNotificationID, nil
}
