package models

import "time"

// TeamUserPairUpMappingEntity is one user's opt-in state for a team's pair-up matching.
// UserObjectID is the partition key, TeamID the row key.
type TeamUserPairUpMappingEntity struct {
	UserObjectID string    `json:"user_id"`
	TeamID       string    `json:"team_id"`
	IsPaused     bool      `json:"is_paused"`
	UpdatedOn    time.Time `json:"updated_on"`
}

// TeamUserMapping pairs a synced user's directory profile with the team context.
// It is never persisted.
type TeamUserMapping struct {
	UserGivenName     string `json:"user_given_name"`
	UserPrincipalName string `json:"user_principal_name"`
	UserObjectID      string `json:"user_object_id"`
	TeamID            string `json:"team_id"`
	TeamName          string `json:"team_name"`
}

type DirectoryUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"display_name"`
	GivenName         string `json:"given_name"`
	UserPrincipalName string `json:"user_principal_name"`
}

type SetPausedRequest struct {
	UserID   string `json:"user_id"`
	TeamID   string `json:"team_id"`
	IsPaused bool   `json:"is_paused"`
}

type PairUpMappingResponse struct {
	Mapping TeamUserPairUpMappingEntity `json:"mapping"`
}

type UserPairUpMappingsResponse struct {
	UserID   string                         `json:"user_id"`
	Mappings []*TeamUserPairUpMappingEntity `json:"mappings"`
}
