package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrUnknownFrequency = errors.New("unknown matching frequency")

const ResourceGroupPartitionKey = "Group"

type MatchingFrequency int

const (
	FrequencyWeekly MatchingFrequency = iota
	FrequencyMonthly
)

func (f MatchingFrequency) String() string {
	switch f {
	case FrequencyWeekly:
		return "Weekly"
	case FrequencyMonthly:
		return "Monthly"
	default:
		return "MatchingFrequency(" + strconv.Itoa(int(f)) + ")"
	}
}

func (f MatchingFrequency) Valid() bool {
	return f == FrequencyWeekly || f == FrequencyMonthly
}

// ParseMatchingFrequency accepts the enum name (case-insensitive) or its numeric value.
func ParseMatchingFrequency(s string) (MatchingFrequency, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "weekly":
		return FrequencyWeekly, nil
	case "monthly":
		return FrequencyMonthly, nil
	}
	if n, err := strconv.Atoi(s); err == nil && MatchingFrequency(n).Valid() {
		return MatchingFrequency(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
}

func (f MatchingFrequency) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFrequency, int(f))
	}
	return []byte(f.String()), nil
}

func (f *MatchingFrequency) UnmarshalText(text []byte) error {
	parsed, err := ParseMatchingFrequency(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

type GroupType int

const (
	GroupTypeTeams GroupType = iota + 1
	GroupTypeExternal
)

type ApprovalStatus int

const (
	ApprovalPending ApprovalStatus = iota
	ApprovalApproved
	ApprovalRejected
)

// ResourceGroupEntity is an employee resource group row keyed by (PartitionKey, RowKey).
type ResourceGroupEntity struct {
	PartitionKey             string            `json:"partition_key"`
	RowKey                   string            `json:"row_key"`
	GroupType                GroupType         `json:"group_type"`
	GroupName                string            `json:"group_name"`
	GroupDescription         string            `json:"group_description"`
	GroupLink                string            `json:"group_link"`
	ImageLink                string            `json:"image_link"`
	Location                 string            `json:"location"`
	IncludeInSearchResults   bool              `json:"include_in_search_results"`
	IsProfileMatchingEnabled bool              `json:"is_profile_matching_enabled"`
	MatchingFrequency        MatchingFrequency `json:"matching_frequency"`
	TeamID                   string            `json:"team_id"`
	GroupID                  string            `json:"group_id"`
	ApprovalStatus           ApprovalStatus    `json:"approval_status"`
	CreatedByObjectID        string            `json:"created_by_object_id"`
	CreatedOn                time.Time         `json:"created_on"`
	UpdatedOn                time.Time         `json:"updated_on"`
}

type ResourceGroupCreateRequest struct {
	GroupType                GroupType `json:"group_type"`
	GroupName                string    `json:"group_name"`
	GroupDescription         string    `json:"group_description"`
	GroupLink                string    `json:"group_link"`
	ImageLink                string    `json:"image_link"`
	Location                 string    `json:"location"`
	IncludeInSearchResults   bool      `json:"include_in_search_results"`
	IsProfileMatchingEnabled bool      `json:"is_profile_matching_enabled"`
	MatchingFrequency        string    `json:"matching_frequency"`
	CreatedByObjectID        string    `json:"created_by_object_id"`
}

type ResourceGroupResponse struct {
	Group ResourceGroupEntity `json:"group"`
}

type ResourceGroupListResponse struct {
	Groups []*ResourceGroupEntity `json:"groups"`
}

type SetApprovalRequest struct {
	RowKey         string         `json:"row_key"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
}
